// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package worldapi

import (
	"time"

	"github.com/substrate-foundation/substrate/world"
)

// ProtocolVersion is the wire protocol version. The agent rejects
// requests carrying a different version rather than guessing at field
// semantics.
const ProtocolVersion = 1

// Request operations.
const (
	// OpProbe verifies one strategy on the agent's host.
	OpProbe = "probe"

	// OpBuild lays out a session mount plan on the agent's host.
	OpBuild = "build"

	// OpStatus returns the agent's doctor report.
	OpStatus = "status"
)

// Request is a CBOR-encoded request from the bridge to the world agent.
type Request struct {
	// Version is the protocol version; must equal ProtocolVersion.
	Version int `cbor:"version"`

	// Op is the operation: "probe", "build", or "status".
	Op string `cbor:"op"`

	// Strategy names the strategy to probe (for probe) or build (for
	// build).
	Strategy string `cbor:"strategy,omitempty"`

	// SessionID scopes a build's scratch directories (for build).
	SessionID string `cbor:"session_id,omitempty"`

	// ProjectRoot is the project path as seen by the agent (for
	// build). Path translation between host and guest views is the
	// caller's concern; the agent takes this path literally.
	ProjectRoot string `cbor:"project_root,omitempty"`

	// FsMode is "writable" or "read-only" (for build).
	FsMode string `cbor:"fs_mode,omitempty"`
}

// ProbeOutcome is the wire form of a strategy probe result.
type ProbeOutcome struct {
	Strategy string    `cbor:"strategy"`
	Healthy  bool      `cbor:"healthy"`
	Reason   string    `cbor:"reason"`
	Detail   string    `cbor:"detail,omitempty"`
	Started  time.Time `cbor:"started"`
	Duration int64     `cbor:"duration_us"`
}

// Plan is the wire form of a mount plan. Paths are agent-side paths.
type Plan struct {
	Strategy    string `cbor:"strategy"`
	TargetDir   string `cbor:"target_dir"`
	LowerDir    string `cbor:"lower_dir"`
	UpperDir    string `cbor:"upper_dir"`
	WorkDir     string `cbor:"work_dir"`
	StagingDir  string `cbor:"staging_dir"`
	ScratchRoot string `cbor:"scratch_root"`
	FsMode      string `cbor:"fs_mode"`
}

// Response is the agent's CBOR-encoded reply.
type Response struct {
	// OK reports whether the operation itself completed. A probe that
	// finds a strategy unhealthy is still OK: true — the verdict is in
	// Probe.
	OK bool `cbor:"ok"`

	// Error is the failure detail when OK is false.
	Error string `cbor:"error,omitempty"`

	// Probe is the probe verdict (for probe).
	Probe *ProbeOutcome `cbor:"probe,omitempty"`

	// Plan is the built mount plan (for build).
	Plan *Plan `cbor:"plan,omitempty"`

	// Report is the doctor report (for status).
	Report *world.DoctorReport `cbor:"report,omitempty"`
}

// ProbeOutcomeFromResult converts an engine probe result to its wire
// form.
func ProbeOutcomeFromResult(result world.ProbeResult) *ProbeOutcome {
	return &ProbeOutcome{
		Strategy: string(result.Strategy),
		Healthy:  result.Healthy,
		Reason:   string(result.Reason),
		Detail:   result.Detail,
		Started:  result.StartedAt,
		Duration: result.Duration.Microseconds(),
	}
}

// Result converts a wire probe outcome back to the engine type.
func (p *ProbeOutcome) Result() world.ProbeResult {
	return world.ProbeResult{
		Strategy:  world.Strategy(p.Strategy),
		Healthy:   p.Healthy,
		Reason:    world.ProbeReason(p.Reason),
		Detail:    p.Detail,
		StartedAt: p.Started,
		Duration:  time.Duration(p.Duration) * time.Microsecond,
	}
}

// PlanFromMountPlan converts an engine mount plan to its wire form.
func PlanFromMountPlan(plan *world.MountPlan) *Plan {
	if plan == nil {
		return nil
	}
	return &Plan{
		Strategy:    string(plan.Strategy),
		TargetDir:   plan.TargetDir,
		LowerDir:    plan.LowerDir,
		UpperDir:    plan.UpperDir,
		WorkDir:     plan.WorkDir,
		StagingDir:  plan.StagingDir,
		ScratchRoot: plan.ScratchRoot,
		FsMode:      string(plan.FsMode),
	}
}

// MountPlan converts a wire plan back to the engine type.
func (p *Plan) MountPlan() *world.MountPlan {
	return &world.MountPlan{
		Strategy:    world.Strategy(p.Strategy),
		TargetDir:   p.TargetDir,
		LowerDir:    p.LowerDir,
		UpperDir:    p.UpperDir,
		WorkDir:     p.WorkDir,
		StagingDir:  p.StagingDir,
		ScratchRoot: p.ScratchRoot,
		FsMode:      world.FsMode(p.FsMode),
	}
}
