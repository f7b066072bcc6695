// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import "fmt"

// Mode is the policy engine's resolved enforcement mode. The policy
// DSL, file schema, and precedence rules live in the policy resolver;
// this package consumes only the decision.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeObserve  Mode = "observe"
	ModeEnforce  Mode = "enforce"
)

// ParseMode converts a resolved policy mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDisabled, ModeObserve, ModeEnforce:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown policy mode %q", s)
}

// FsMode is the writable/read-only hint for the merged view.
type FsMode string

const (
	FsWritable FsMode = "writable"
	FsReadOnly FsMode = "read-only"
)

// ParseFsMode converts a filesystem-mode hint string.
func ParseFsMode(s string) (FsMode, error) {
	switch FsMode(s) {
	case FsWritable, FsReadOnly:
		return FsMode(s), nil
	}
	return "", fmt.Errorf("unknown filesystem mode %q", s)
}

// Policy is the externally-resolved decision this engine enforces.
type Policy struct {
	// Mode controls whether world execution is attempted at all.
	Mode Mode

	// RequiresWorld makes isolation mandatory: when true and no
	// strategy is healthy, the command is never spawned (fail-closed).
	// When false, the session degrades to the host filesystem with
	// exactly one warning.
	RequiresWorld bool

	// FsMode hints whether the merged view carries a writable upper
	// layer or is mounted read-only.
	FsMode FsMode
}

// Outcome is a session's final decision.
type Outcome string

const (
	// OutcomeReady: a healthy strategy was selected and the mount plan
	// is in force.
	OutcomeReady Outcome = "ready"

	// OutcomeFailClosed: isolation was required but not enforceable;
	// the command was never spawned.
	OutcomeFailClosed Outcome = "fail-closed"

	// OutcomeDegradeToHost: isolation was optional and unavailable;
	// the command ran unguarded on the host filesystem.
	OutcomeDegradeToHost Outcome = "degrade-to-host"
)

// FallbackNoViableStrategy is the fallback_reason recorded on the
// trace when a session degrades to the host.
const FallbackNoViableStrategy = "no_viable_strategy"

// DegradeWarning is the exact user-visible line emitted once per
// invocation on degrade-to-host. The literal string is part of the
// contract; downstream tooling greps for it.
const DegradeWarning = "substrate: warn: world unavailable; falling back to host"
