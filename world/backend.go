// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"context"
	"io"
	"time"
)

// Backend is the capability seam between the session logic and the
// kernel doing the isolating. Two implementations exist: the native
// Linux engine in this package, and the guest-agent bridge used when
// commands execute inside a virtualized guest. The implementation is
// chosen once per process, not per call and not by runtime type
// inspection.
type Backend interface {
	// Probe verifies a strategy with a throwaway mount in a scratch
	// area and a write-then-enumerate round trip. Failures are
	// encoded in the result; the error return is reserved for
	// mechanics (cancellation, transport).
	Probe(ctx context.Context, strategy Strategy) (ProbeResult, error)

	// Build lays out the mount plan for a session. No mount exists
	// until Run enters the session namespace.
	Build(ctx context.Context, sessionID string, strategy Strategy, projectRoot string, fsMode FsMode) (*MountPlan, error)

	// Run executes the command under the plan. A nil plan runs the
	// command directly on the host (degrade-to-host). The plan is
	// applied strictly before the child starts, identically for
	// direct-exec and PTY-attached callers.
	Run(ctx context.Context, plan *MountPlan, spec *CommandSpec) (*ExecutionResult, error)

	// Report produces the doctor report: host readiness and world
	// readiness as separate blocks.
	Report(ctx context.Context) (*DoctorReport, error)
}

// CommandSpec describes the child command. The caller owns argv, cwd,
// environment, and stdio; the engine owns everything about isolation.
type CommandSpec struct {
	Argv []string

	// Dir is the working directory. It may exist only inside the
	// merged view; when it cannot be entered the project root is used.
	Dir string

	// Env is the complete child environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive drives the child through a pseudo-terminal. The
	// enforcement point is unchanged; only stdio wiring differs.
	Interactive bool
}

// ExecutionResult reports a completed child command.
type ExecutionResult struct {
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}
