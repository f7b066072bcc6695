// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"time"
)

// Strategy identifies a filesystem isolation strategy.
type Strategy string

const (
	// StrategyKernelOverlay is the in-kernel overlay filesystem. It is
	// the primary strategy: cheapest, and whiteouts are first-class.
	StrategyKernelOverlay Strategy = "kernel-overlay"

	// StrategyFuseOverlay is fuse-overlayfs, a user-space overlay
	// process. Used when the kernel overlay is unavailable or fails
	// the enumeration probe.
	StrategyFuseOverlay Strategy = "fuse-overlay"
)

// StrategyOrder returns the fixed strategy attempt order. Selection
// must be reproducible: given identical probe outcomes, the same
// strategy wins on every run, so no other ordering is permitted.
func StrategyOrder() []Strategy {
	return []Strategy{StrategyKernelOverlay, StrategyFuseOverlay}
}

// ParseStrategy converts a wire or flag string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyKernelOverlay, StrategyFuseOverlay:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown filesystem strategy %q", s)
}

// ProbeReason classifies the outcome of a strategy probe.
type ProbeReason string

const (
	// ReasonHealthy means the throwaway mount was constructed and the
	// write-then-enumerate round trip passed.
	ReasonHealthy ProbeReason = "healthy"

	// ReasonUnavailable means the mount could not be constructed at
	// all: missing kernel support, missing binary, or permission
	// denied.
	ReasonUnavailable ProbeReason = "unavailable"

	// ReasonEnumerationBroken means the mount succeeded but the probe
	// file did not appear in the directory listing. Individual-path
	// lookups may still work on such a mount, which is exactly why the
	// probe enumerates instead of stat-ing.
	ReasonEnumerationBroken ProbeReason = "enumeration-broken"
)

// ProbeResult is the immutable outcome of probing one strategy. Results
// are scoped to a single command invocation and never cached across
// invocations: host conditions (FUSE device contention, module
// loading) can change between commands.
type ProbeResult struct {
	Strategy  Strategy
	Healthy   bool
	Reason    ProbeReason
	Detail    string // failure detail, empty when healthy
	StartedAt time.Time
	Duration  time.Duration
}

// Constants for the enumeration probe contract. The probe file name is
// part of the wire-visible diagnostic output, so it is versioned.
const (
	EnumerationProbeID   = "enumeration_v1"
	EnumerationProbeFile = ".substrate_enum_probe"
)
