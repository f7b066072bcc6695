// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package world

import (
	"golang.org/x/sys/unix"
)

// LandlockSupport reports the kernel's Landlock availability. This is
// an optional, best-effort capability: it appears in the doctor report
// and probe diagnostics but never participates in strategy selection
// or the fallback decision.
type LandlockSupport struct {
	Supported bool   `json:"supported"`
	ABI       int    `json:"abi,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// DetectLandlock queries the Landlock ABI version without creating a
// ruleset. The raw syscall is used directly: with a nil attr and the
// version flag, landlock_create_ruleset returns the highest supported
// ABI instead of a ruleset fd.
func DetectLandlock() LandlockSupport {
	abi, _, errno := unix.Syscall(unix.SYS_LANDLOCK_CREATE_RULESET, 0, 0, unix.LANDLOCK_CREATE_RULESET_VERSION)
	if errno != 0 {
		return LandlockSupport{Supported: false, Reason: "landlock syscall unavailable: " + errno.Error()}
	}
	if int(abi) < 1 {
		return LandlockSupport{Supported: false, Reason: "landlock disabled by kernel configuration"}
	}
	return LandlockSupport{Supported: true, ABI: int(abi)}
}
