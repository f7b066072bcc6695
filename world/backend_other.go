// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package world

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// MaybeRunHelper is a no-op off Linux; no namespace helper exists.
func MaybeRunHelper() {}

var errUnsupportedPlatform = errors.New("world isolation requires Linux")

// unsupportedBackend reports every strategy unavailable. Host
// execution still works, so a degrade-to-host policy behaves the same
// everywhere.
type unsupportedBackend struct{}

// NewNativeBackend returns a backend with no isolation strategies.
func NewNativeBackend(config *Config, logger *slog.Logger) Backend {
	return unsupportedBackend{}
}

func (unsupportedBackend) Probe(ctx context.Context, strategy Strategy) (ProbeResult, error) {
	now := time.Now()
	return ProbeResult{
		Strategy:  strategy,
		Reason:    ReasonUnavailable,
		Detail:    errUnsupportedPlatform.Error(),
		StartedAt: now,
	}, nil
}

func (unsupportedBackend) Build(ctx context.Context, sessionID string, strategy Strategy, projectRoot string, fsMode FsMode) (*MountPlan, error) {
	return nil, failure(FailureUnavailable, "build", errUnsupportedPlatform)
}

func (unsupportedBackend) Run(ctx context.Context, plan *MountPlan, spec *CommandSpec) (*ExecutionResult, error) {
	if plan != nil {
		return nil, failure(FailureUnavailable, "run", errUnsupportedPlatform)
	}
	if spec == nil || len(spec.Argv) == 0 {
		return nil, failure(FailureSpawn, "run", errors.New("empty command"))
	}
	startedAt := time.Now()
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, failure(FailureSpawn, "run", err)
	}
	return &ExecutionResult{
		ExitCode:  cmd.ProcessState.ExitCode(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}, nil
}

func (unsupportedBackend) Report(ctx context.Context) (*DoctorReport, error) {
	report := &DoctorReport{
		SchemaVersion: DoctorReportVersion,
		CollectedAt:   time.Now().UTC(),
	}
	for _, strategy := range StrategyOrder() {
		report.Strategies = append(report.Strategies, StrategyReadiness{
			Strategy: strategy,
			Reason:   ReasonUnavailable,
			Detail:   errUnsupportedPlatform.Error(),
		})
	}
	return report, nil
}
