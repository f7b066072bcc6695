// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"errors"
	"fmt"
)

// FailureKind classifies world failures so automation can branch on
// "not provisioned", "transient/unreachable", "not supported", and
// "ordinary spawn failure" independently.
type FailureKind string

const (
	// FailureUnavailable: a strategy cannot be attempted at all.
	// Recovered locally by advancing the fallback chain; surfaced only
	// when the chain is exhausted.
	FailureUnavailable FailureKind = "unavailable"

	// FailureEnumerationBroken: a strategy mounts but fails the
	// directory-listing correctness probe. Recovered like
	// FailureUnavailable.
	FailureEnumerationBroken FailureKind = "enumeration-broken"

	// FailureSpawn: isolation succeeded but the child process could
	// not start. Surfaced immediately with the OS-level detail, never
	// auto-retried.
	FailureSpawn FailureKind = "spawn-failure"

	// FailureAgentUnreachable: the guest bridge could not complete a
	// request within its timeout. A transport fact, never an
	// "unsupported" verdict.
	FailureAgentUnreachable FailureKind = "agent-unreachable"

	// FailurePolicyRefusal: the policy requires a world and no
	// strategy is healthy. The command is never spawned.
	FailurePolicyRefusal FailureKind = "policy-refusal"
)

// Exit codes per failure kind. Distinct on purpose: scripts branch on
// them. 126 matches the shell convention for "found but cannot
// execute"; the remainder follow sysexits where one fits.
const (
	ExitPolicyRefusal    = 77 // EX_NOPERM: isolation required, not enforceable
	ExitAgentUnreachable = 69 // EX_UNAVAILABLE: guest transport failed
	ExitUnsupported      = 72 // EX_OSFILE: no viable strategy on this host
	ExitSpawnFailure     = 126
)

// ErrNoStrategy is the sentinel wrapped by errors produced when the
// fallback chain is exhausted.
var ErrNoStrategy = errors.New("no viable filesystem strategy")

// Error is a classified world failure.
type Error struct {
	Kind FailureKind
	// Op names the operation that failed ("probe", "build", "run",
	// "agent status", ...).
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("world %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("world %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// failure builds a classified error.
func failure(kind FailureKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the FailureKind from err, or "" when err carries no
// classification.
func KindOf(err error) FailureKind {
	var worldError *Error
	if errors.As(err, &worldError) {
		return worldError.Kind
	}
	return ""
}

// ExitCode maps an error to the process exit code contract. Unknown
// errors map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case FailurePolicyRefusal:
		return ExitPolicyRefusal
	case FailureAgentUnreachable:
		return ExitAgentUnreachable
	case FailureUnavailable, FailureEnumerationBroken:
		return ExitUnsupported
	case FailureSpawn:
		return ExitSpawnFailure
	}
	return 1
}
