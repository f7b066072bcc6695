// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package world

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// Capabilities describes what the host can contribute to world
// isolation. Detection is cheap and read-only; it informs the doctor
// report and the fingerprint for the strategy hint, never the
// per-session probe (a capability can look present and still fail the
// enumeration round trip).
type Capabilities struct {
	// OverlayfsRegistered is true when the kernel lists overlay in
	// /proc/filesystems.
	OverlayfsRegistered bool

	// UserNamespacesEnabled is true when unprivileged user namespaces
	// are permitted, which is what lets a non-root engine mount at
	// all.
	UserNamespacesEnabled bool

	// FuseDeviceAvailable is true when /dev/fuse exists.
	FuseDeviceAvailable bool

	// FuseOverlayfsAvailable is true when the fuse-overlayfs binary is
	// on PATH (or configured explicitly).
	FuseOverlayfsAvailable bool

	// FuseOverlayfsPath is the resolved binary path when available.
	FuseOverlayfsPath string

	// KernelRelease is the uname release string.
	KernelRelease string

	// Root is true when the engine runs with euid 0 and needs no user
	// namespace for mounting.
	Root bool
}

// DetectCapabilities probes the host.
func DetectCapabilities(config *Config) *Capabilities {
	capabilities := &Capabilities{
		Root: os.Geteuid() == 0,
	}

	if data, err := os.ReadFile("/proc/filesystems"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(strings.TrimPrefix(line, "nodev")) == "overlay" {
				capabilities.OverlayfsRegistered = true
				break
			}
		}
	}

	capabilities.UserNamespacesEnabled = userNamespacesEnabled()

	if _, err := os.Stat("/dev/fuse"); err == nil {
		capabilities.FuseDeviceAvailable = true
	}

	fuseBin := ""
	if config != nil {
		fuseBin = config.FuseOverlayfsBin
	}
	if fuseBin == "" {
		if located, err := exec.LookPath("fuse-overlayfs"); err == nil {
			fuseBin = located
		}
	} else if _, err := os.Stat(fuseBin); err != nil {
		fuseBin = ""
	}
	if fuseBin != "" {
		capabilities.FuseOverlayfsAvailable = true
		capabilities.FuseOverlayfsPath = fuseBin
	}

	var uname unix.Utsname
	if err := unix.Uname(&uname); err == nil {
		capabilities.KernelRelease = unix.ByteSliceToString(uname.Release[:])
	}

	return capabilities
}

// userNamespacesEnabled checks the sysctls that gate unprivileged user
// namespaces. Absent files mean no restriction.
func userNamespacesEnabled() bool {
	if data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone"); err == nil {
		if strings.TrimSpace(string(data)) == "0" {
			return false
		}
	}
	if data, err := os.ReadFile("/proc/sys/user/max_user_namespaces"); err == nil {
		if strings.TrimSpace(string(data)) == "0" {
			return false
		}
	}
	return true
}

// Fingerprint hashes the capability set into a stable key for the
// strategy hint cache. Two hosts (or the same host across a kernel or
// package change) with different isolation-relevant capabilities get
// different fingerprints, so a stale hint can never be mistaken for
// current truth.
func (c *Capabilities) Fingerprint() string {
	canonical := fmt.Sprintf(
		"overlayfs=%t userns=%t fusedev=%t fusebin=%t kernel=%s root=%t",
		c.OverlayfsRegistered,
		c.UserNamespacesEnabled,
		c.FuseDeviceAvailable,
		c.FuseOverlayfsAvailable,
		c.KernelRelease,
		c.Root,
	)
	digest := blake3.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", digest[:16])
}
