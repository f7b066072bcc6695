// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// openPTY allocates a PTY master/slave pair using the Linux devpts interface.
// Returns the master as an *os.File and the filesystem path to the slave.
func openPTY() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}

	slavePath = fmt.Sprintf("/dev/pts/%d", ptyNumber)
	return master, slavePath, nil
}

// setWindowSize pushes rows/cols onto a PTY master so the child sees
// the caller's terminal geometry.
func setWindowSize(master *os.File, rows, cols int) error {
	size := &unix.Winsize{Row: uint16(rows), Col: uint16(cols)}
	return unix.IoctlSetWinsize(int(master.Fd()), unix.TIOCSWINSZ, size)
}

// ptyRelay copies bytes between the caller's terminal and the PTY
// master while the child runs, tracking window resizes. When stdin is
// a terminal it is placed in raw mode for the duration; restore is the
// caller's cleanup hook and is safe to call more than once.
func ptyRelay(master *os.File, stdin io.Reader, stdout io.Writer) (restore func(), err error) {
	restore = func() {}

	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fd := int(file.Fd())
		if cols, rows, sizeErr := term.GetSize(fd); sizeErr == nil {
			setWindowSize(master, rows, cols)
		}
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr != nil {
			return restore, fmt.Errorf("set raw mode: %w", rawErr)
		}
		restore = func() { term.Restore(fd, oldState) }

		resize := make(chan os.Signal, 1)
		signal.Notify(resize, unix.SIGWINCH)
		go func() {
			for range resize {
				if cols, rows, sizeErr := term.GetSize(fd); sizeErr == nil {
					setWindowSize(master, rows, cols)
				}
			}
		}()
		previousRestore := restore
		restore = func() {
			signal.Stop(resize)
			close(resize)
			previousRestore()
		}
	}

	go io.Copy(master, stdin)
	go io.Copy(stdout, master)
	return restore, nil
}
