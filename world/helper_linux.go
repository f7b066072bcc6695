// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package world

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/substrate-foundation/substrate/lib/codec"
)

// The helper is this binary re-exec'd inside a fresh user+mount
// namespace. The parent passes a CBOR task on fd 3 and, for session
// tasks, receives failure reports on the fd 4 status pipe. The status
// pipe closes (close-on-exec, or explicitly in the supervised FUSE
// path) exactly when the user command starts: EOF with no bytes means
// the mount plan was applied and the command is running.
const (
	helperEnvVar   = "SUBSTRATE_WORLD_HELPER"
	helperTaskFD   = 3
	helperStatusFD = 4

	helperOpProbe   = "probe"
	helperOpSession = "session"
)

// helperTask is the instruction block for one helper invocation.
type helperTask struct {
	Op      string    `cbor:"op"`
	Plan    MountPlan `cbor:"plan"`
	FuseBin string    `cbor:"fuse_bin,omitempty"`
	Argv    []string  `cbor:"argv,omitempty"`
	Dir     string    `cbor:"dir,omitempty"`
	Env     []string  `cbor:"env,omitempty"`
}

// helperProbeOutcome is what a probe helper reports on stdout.
type helperProbeOutcome struct {
	Reason ProbeReason `cbor:"reason"`
	Detail string      `cbor:"detail,omitempty"`
}

// helperStatus is a session helper's failure report on the status
// pipe. Stage distinguishes mount construction failures from exec
// failures, which map to different error classes in the parent.
type helperStatus struct {
	Stage   string `cbor:"stage"` // "mount" or "exec"
	Message string `cbor:"message"`
}

// MaybeRunHelper is the re-exec hook. Every binary that runs world
// sessions calls it first thing in main; when the process is a helper
// re-exec it never returns. The hook pattern (rather than a separate
// helper binary) guarantees the helper is always present and always
// version-matched with its parent.
func MaybeRunHelper() {
	if os.Getenv(helperEnvVar) == "" {
		return
	}
	os.Unsetenv(helperEnvVar)

	taskFile := os.NewFile(helperTaskFD, "world-helper-task")
	if taskFile == nil {
		fmt.Fprintln(os.Stderr, "substrate-world-helper: task fd missing")
		os.Exit(125)
	}
	var task helperTask
	if err := codec.NewDecoder(taskFile).Decode(&task); err != nil {
		fmt.Fprintf(os.Stderr, "substrate-world-helper: decoding task: %v\n", err)
		os.Exit(125)
	}
	taskFile.Close()

	switch task.Op {
	case helperOpProbe:
		runProbeHelper(&task)
		os.Exit(0)
	case helperOpSession:
		runSessionHelper(&task)
		// runSessionHelper only returns on failure and has already
		// reported on the status pipe.
		os.Exit(125)
	default:
		fmt.Fprintf(os.Stderr, "substrate-world-helper: unknown op %q\n", task.Op)
		os.Exit(125)
	}
}

// runProbeHelper builds the throwaway mount described by the task,
// performs the write-then-enumerate round trip, and reports the
// outcome on stdout. Kernel mounts die with this process's namespace;
// a FUSE mount is held by its fuse-overlayfs child and is torn down
// explicitly before exit.
func runProbeHelper(task *helperTask) {
	outcome := helperProbeOutcome{Reason: ReasonHealthy}

	fuseCmd, err := applyMountPlan(&task.Plan, task.FuseBin)
	if err != nil {
		outcome = helperProbeOutcome{Reason: ReasonUnavailable, Detail: err.Error()}
	} else if err := enumerationRoundTrip(task.Plan.TargetDir); err != nil {
		outcome = helperProbeOutcome{Reason: ReasonEnumerationBroken, Detail: err.Error()}
	}
	teardownFuse(fuseCmd, task.Plan.TargetDir)

	if err := codec.NewEncoder(os.Stdout).Encode(outcome); err != nil {
		fmt.Fprintf(os.Stderr, "substrate-world-helper: encoding probe outcome: %v\n", err)
		os.Exit(125)
	}
}

// enumerationRoundTrip creates a probe file and confirms it appears in
// the directory enumeration — not via a direct stat. This targets the
// failure class where an overlay mounts and resolves individual paths
// but directory listings return stale or empty results.
func enumerationRoundTrip(dir string) error {
	probePath := filepath.Join(dir, EnumerationProbeFile)
	if err := os.WriteFile(probePath, []byte("probe"), 0600); err != nil {
		return fmt.Errorf("creating probe file: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("enumerating %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.Name() == EnumerationProbeFile {
			return nil
		}
	}
	return fmt.Errorf("probe file %s missing from directory enumeration", EnumerationProbeFile)
}

// runSessionHelper applies the mount plan and starts the user command.
// Failures are reported on the status pipe so the parent can tell
// "mount construction failed" from "child could not start" without
// guessing at exit codes.
//
// With a kernel mount (or none) the helper execs the command and never
// returns: the mount dies with the namespace. A FUSE mount is held by
// the fuse-overlayfs child, which would outlive an exec'd command and
// pin the namespace, so the helper stays resident, supervises the
// command, and tears the mount down when it exits.
func runSessionHelper(task *helperTask) {
	statusPipe := os.NewFile(helperStatusFD, "world-helper-status")
	report := func(stage string, err error) {
		if statusPipe == nil {
			fmt.Fprintf(os.Stderr, "substrate-world-helper: %s: %v\n", stage, err)
			return
		}
		encodeErr := codec.NewEncoder(statusPipe).Encode(helperStatus{Stage: stage, Message: err.Error()})
		if encodeErr != nil {
			fmt.Fprintf(os.Stderr, "substrate-world-helper: reporting %s failure: %v\n", stage, encodeErr)
		}
		statusPipe.Close()
	}

	// The status pipe must vanish when the command starts: its EOF is
	// the parent's "isolation complete, command started" signal, and
	// the child command must not inherit it. The exec path closes it
	// implicitly, the supervised path explicitly.
	if statusPipe != nil {
		unix.CloseOnExec(helperStatusFD)
	}

	var fuseCmd *exec.Cmd
	if task.Plan.Strategy != "" {
		var err error
		fuseCmd, err = applyMountPlan(&task.Plan, task.FuseBin)
		if err != nil {
			report("mount", err)
			return
		}
	}

	// Prefer the requested working directory (it may only exist inside
	// the merged view); fall back to the project root.
	if task.Dir != "" {
		if err := os.Chdir(task.Dir); err != nil {
			if task.Plan.TargetDir == "" {
				teardownFuse(fuseCmd, task.Plan.TargetDir)
				report("exec", fmt.Errorf("chdir %s: %w", task.Dir, err))
				return
			}
			if err := os.Chdir(task.Plan.TargetDir); err != nil {
				teardownFuse(fuseCmd, task.Plan.TargetDir)
				report("exec", fmt.Errorf("chdir %s: %w", task.Plan.TargetDir, err))
				return
			}
		}
	}

	binary, err := lookPath(task.Argv[0], task.Env)
	if err != nil {
		teardownFuse(fuseCmd, task.Plan.TargetDir)
		report("exec", err)
		return
	}

	if fuseCmd != nil {
		superviseCommand(task, binary, fuseCmd, statusPipe, report)
		return
	}

	if err := syscall.Exec(binary, task.Argv, task.Env); err != nil {
		report("exec", fmt.Errorf("exec %s: %w", binary, err))
	}
}

// superviseCommand runs the user command as a child while the
// fuse-overlayfs process holds the mount, then unmounts and reaps the
// FUSE child. The helper's own exit code is the command's, so the
// parent's wait logic is identical for both strategies.
func superviseCommand(task *helperTask, binary string, fuseCmd *exec.Cmd, statusPipe *os.File, report func(string, error)) {
	child := exec.Command(binary)
	child.Args = task.Argv
	child.Env = task.Env
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	// The helper is the session leader when a PTY is attached; the
	// command inherits the controlling terminal through its stdio.
	child.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}

	if err := child.Start(); err != nil {
		teardownFuse(fuseCmd, task.Plan.TargetDir)
		report("exec", fmt.Errorf("exec %s: %w", binary, err))
		return
	}
	if statusPipe != nil {
		statusPipe.Close()
	}

	waitErr := child.Wait()
	teardownFuse(fuseCmd, task.Plan.TargetDir)

	if waitErr == nil {
		os.Exit(0)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			os.Exit(code)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			os.Exit(128 + int(status.Signal()))
		}
	}
	fmt.Fprintf(os.Stderr, "substrate-world-helper: waiting for command: %v\n", waitErr)
	os.Exit(125)
}

// teardownFuse unmounts a FUSE target and reaps the fuse-overlayfs
// child. Nil cmd (kernel strategy, or mount never reached) is a no-op.
// The unmount lets the foreground process exit on its own; the kill is
// the backstop when the unmount is refused.
func teardownFuse(cmd *exec.Cmd, targetDir string) {
	if cmd == nil {
		return
	}
	if targetDir != "" {
		_ = unix.Unmount(targetDir, unix.MNT_DETACH)
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}

// applyMountPlan materializes the plan inside the current (private)
// mount namespace. For the FUSE strategy the returned command is the
// running fuse-overlayfs process holding the mount; the caller owns
// its teardown. Kernel mounts return nil.
func applyMountPlan(plan *MountPlan, fuseBin string) (*exec.Cmd, error) {
	// Stop mount events from propagating to the host table. The
	// namespace starts as a copy of the host's, typically with shared
	// propagation.
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return nil, fmt.Errorf("making mounts private: %w", err)
	}

	switch plan.Strategy {
	case StrategyKernelOverlay:
		return nil, mountKernelOverlay(plan)
	case StrategyFuseOverlay:
		return mountFuseOverlay(plan, fuseBin)
	}
	return nil, fmt.Errorf("unknown strategy %q", plan.Strategy)
}

// mountKernelOverlay mounts the overlay at the staging directory and
// move-mounts it onto the target. The move (not a bind) is the
// single-mountpoint construction: after it, the staging path holds
// nothing and the target is the only reference to the merged tree.
func mountKernelOverlay(plan *MountPlan) error {
	options := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		plan.LowerDir, plan.UpperDir, plan.WorkDir)

	var flags uintptr
	if plan.FsMode == FsReadOnly {
		flags |= unix.MS_RDONLY
	}

	if err := unix.Mount("overlay", plan.StagingDir, "overlay", flags, options); err != nil {
		return fmt.Errorf("mounting overlay at staging %s: %w", plan.StagingDir, err)
	}
	if err := unix.Mount(plan.StagingDir, plan.TargetDir, "", unix.MS_MOVE, ""); err != nil {
		// Leave nothing half-built behind on the failure path.
		_ = unix.Unmount(plan.StagingDir, unix.MNT_DETACH)
		return fmt.Errorf("move-mounting overlay onto %s: %w", plan.TargetDir, err)
	}
	return nil
}

// fuseSuperMagic identifies a FUSE filesystem in statfs results.
const fuseSuperMagic = 0x65735546

// fuseMountArgs builds the fuse-overlayfs argument list. Foreground
// (-f) is mandatory: a daemonized fuse-overlayfs is unkillable from
// here (no pid, reparented) and would outlive the session, pinning the
// namespace and the mount.
func fuseMountArgs(plan *MountPlan) []string {
	options := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		plan.LowerDir, plan.UpperDir, plan.WorkDir)
	if plan.FsMode == FsReadOnly {
		options += ",ro"
	}
	return []string{"-f", "-o", options, plan.TargetDir}
}

// mountFuseOverlay attaches fuse-overlayfs directly at the target
// path: a single mountpoint by construction, so no move step is
// needed. The process runs in the foreground under this helper, which
// dies with it (Pdeathsig), and the returned command is the caller's
// handle for teardown.
func mountFuseOverlay(plan *MountPlan, fuseBin string) (*exec.Cmd, error) {
	if fuseBin == "" {
		located, err := exec.LookPath("fuse-overlayfs")
		if err != nil {
			return nil, fmt.Errorf("fuse-overlayfs not found: %w", err)
		}
		fuseBin = located
	}

	var output bytes.Buffer
	cmd := exec.Command(fuseBin, fuseMountArgs(plan)...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting fuse-overlayfs: %w", err)
	}

	if err := waitForFuseMount(plan.TargetDir); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		detail := strings.TrimSpace(output.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %s", err, detail)
		}
		return nil, err
	}
	return cmd, nil
}

// waitForFuseMount polls until the FUSE mount is registered. Without
// this the child command can race the mount and briefly see the real
// project tree.
func waitForFuseMount(path string) error {
	const (
		maxAttempts   = 50
		sleepInterval = 20 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		var stat unix.Statfs_t
		if err := unix.Statfs(path, &stat); err == nil && stat.Type == fuseSuperMagic {
			return nil
		}
		time.Sleep(sleepInterval)
	}
	return fmt.Errorf("timeout waiting for FUSE mount at %s", path)
}

// lookPath resolves a command name against the PATH carried in env
// rather than the helper's own environment.
func lookPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	var pathValue string
	for _, entry := range env {
		if value, ok := strings.CutPrefix(entry, "PATH="); ok {
			pathValue = value
		}
	}
	for _, dir := range filepath.SplitList(pathValue) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: command not found in PATH", name)
}

// namespaceAttr returns the clone configuration for helper re-exec:
// always a new mount namespace, plus a single-mapping user namespace
// when not running as root (the mapped uid holds CAP_SYS_ADMIN inside
// it, which is what permits the overlay mounts).
func namespaceAttr() *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS,
	}
	if os.Geteuid() != 0 {
		attr.Cloneflags |= syscall.CLONE_NEWUSER
		attr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: os.Getuid(), HostID: os.Getuid(), Size: 1},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: os.Getgid(), HostID: os.Getgid(), Size: 1},
		}
		attr.GidMappingsEnableSetgroups = false
	}
	return attr
}

// helperCommand builds the re-exec command for a task. statusWrite
// reports session failures; nil for probe tasks.
func helperCommand(task *helperTask, statusWrite *os.File) (*exec.Cmd, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating own binary for helper re-exec: %w", err)
	}

	payload, err := codec.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encoding helper task: %w", err)
	}
	taskRead, taskWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating helper task pipe: %w", err)
	}
	// Tasks are far below the pipe buffer size; write-then-close
	// before start avoids a goroutine.
	if _, err := taskWrite.Write(payload); err != nil {
		taskRead.Close()
		taskWrite.Close()
		return nil, fmt.Errorf("writing helper task: %w", err)
	}
	taskWrite.Close()

	cmd := exec.Command(executable)
	cmd.Env = append(os.Environ(), helperEnvVar+"=1")
	cmd.ExtraFiles = []*os.File{taskRead} // fd 3
	if statusWrite != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, statusWrite) // fd 4
	}
	cmd.SysProcAttr = namespaceAttr()
	return cmd, nil
}
