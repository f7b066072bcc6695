// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package world

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/substrate-foundation/substrate/lib/codec"
)

// nativeBackend is the in-process Linux engine: it probes, mounts, and
// executes through the re-exec helper, all on this host.
type nativeBackend struct {
	config *Config
	logger *slog.Logger
}

// NewNativeBackend returns the native Linux backend.
func NewNativeBackend(config *Config, logger *slog.Logger) Backend {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &nativeBackend{config: config, logger: logger}
}

// Probe constructs a throwaway mount of the strategy in a scratch area
// and runs the write-then-enumerate round trip inside the helper's
// namespace. The scratch area never touches a real project tree.
func (b *nativeBackend) Probe(ctx context.Context, strategy Strategy) (ProbeResult, error) {
	startedAt := time.Now()
	result := ProbeResult{Strategy: strategy, StartedAt: startedAt}
	finish := func(reason ProbeReason, detail string) (ProbeResult, error) {
		result.Reason = reason
		result.Detail = detail
		result.Healthy = reason == ReasonHealthy
		result.Duration = time.Since(startedAt)
		b.logger.Debug("strategy probe",
			"strategy", strategy,
			"probe", EnumerationProbeID,
			"reason", reason,
			"duration", result.Duration,
		)
		return result, nil
	}

	// The FUSE strategy cannot be attempted without its binary; no
	// point paying for a namespace to learn that.
	fuseBin := ""
	if strategy == StrategyFuseOverlay {
		fuseBin = b.config.FuseOverlayfsBin
		if fuseBin == "" {
			located, err := exec.LookPath("fuse-overlayfs")
			if err != nil {
				return finish(ReasonUnavailable, "fuse-overlayfs binary not found")
			}
			fuseBin = located
		} else if _, err := os.Stat(fuseBin); err != nil {
			return finish(ReasonUnavailable, fmt.Sprintf("fuse-overlayfs binary %s: %v", fuseBin, err))
		}
	}

	plan, scratchRoot, err := probeLayout(b.config.BaseDir, strategy)
	if err != nil {
		return result, fmt.Errorf("laying out probe scratch: %w", err)
	}
	defer os.RemoveAll(scratchRoot)

	task := &helperTask{Op: helperOpProbe, Plan: *plan, FuseBin: fuseBin}
	cmd, err := helperCommand(task, nil)
	if err != nil {
		return result, err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := runWithContext(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// Helper could not even start (clone refused) or exited on its
		// own error path: the strategy is unattemptable here.
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return finish(ReasonUnavailable, detail)
	}

	var outcome helperProbeOutcome
	if err := codec.Unmarshal(stdout.Bytes(), &outcome); err != nil {
		return result, fmt.Errorf("decoding probe outcome: %w", err)
	}
	return finish(outcome.Reason, outcome.Detail)
}

// probeLayout creates a self-contained scratch tree for one probe:
// lower (seeded), upper, work, staging, and a merged target. The
// layout mirrors a real session's topology, staging move included, so
// the probe exercises the construction a session will actually use.
func probeLayout(baseDir string, strategy Strategy) (*MountPlan, string, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, "", fmt.Errorf("creating scratch base %s: %w", baseDir, err)
	}
	scratchRoot, err := os.MkdirTemp(baseDir, "probe-")
	if err != nil {
		return nil, "", fmt.Errorf("creating probe scratch: %w", err)
	}

	plan := &MountPlan{
		Strategy:    strategy,
		TargetDir:   filepath.Join(scratchRoot, "merged"),
		LowerDir:    filepath.Join(scratchRoot, "lower"),
		UpperDir:    filepath.Join(scratchRoot, "upper"),
		WorkDir:     filepath.Join(scratchRoot, "work"),
		StagingDir:  filepath.Join(scratchRoot, "staging"),
		ScratchRoot: scratchRoot,
		FsMode:      FsWritable,
	}
	for _, dir := range []string{plan.TargetDir, plan.LowerDir, plan.UpperDir, plan.WorkDir, plan.StagingDir} {
		if err := os.Mkdir(dir, 0700); err != nil {
			os.RemoveAll(scratchRoot)
			return nil, "", fmt.Errorf("creating probe directory %s: %w", dir, err)
		}
	}
	// A non-empty lower layer: the enumeration check must see new
	// writes alongside pre-existing entries, the shape a real project
	// presents.
	seed := filepath.Join(plan.LowerDir, "seed")
	if err := os.WriteFile(seed, []byte("seed"), 0600); err != nil {
		os.RemoveAll(scratchRoot)
		return nil, "", fmt.Errorf("seeding probe lower layer: %w", err)
	}
	return plan, scratchRoot, nil
}

// Build lays out the session's mount plan and records the winning
// strategy in the hint file. The hint write is best effort: it loses
// races and disk errors silently, because it is advisory.
func (b *nativeBackend) Build(ctx context.Context, sessionID string, strategy Strategy, projectRoot string, fsMode FsMode) (*MountPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := buildPlan(b.config.BaseDir, sessionID, strategy, projectRoot, fsMode)
	if err != nil {
		return nil, err
	}

	if b.config.HintPath != "" {
		fingerprint := DetectCapabilities(b.config).Fingerprint()
		if hint, ok := LoadHint(b.config.HintPath, fingerprint); ok && hint.Strategy != strategy {
			b.logger.Debug("strategy selection changed",
				"previous", hint.Strategy,
				"selected", strategy,
			)
		}
		if err := SaveHint(b.config.HintPath, fingerprint, strategy); err != nil {
			b.logger.Debug("saving strategy hint", "error", err)
		}
	}
	return plan, nil
}

// Run executes the command. With a plan, the child enters the helper's
// namespace and the command is exec'd only after the mount plan is
// fully applied; without one, the command runs directly on the host.
// Direct-exec and PTY-attached invocations go through the same helper
// path and differ only in stdio wiring.
func (b *nativeBackend) Run(ctx context.Context, plan *MountPlan, spec *CommandSpec) (*ExecutionResult, error) {
	if spec == nil || len(spec.Argv) == 0 {
		return nil, failure(FailureSpawn, "run", errors.New("empty command"))
	}
	if plan == nil {
		return b.runOnHost(ctx, spec)
	}

	startedAt := time.Now()
	task := &helperTask{
		Op:      helperOpSession,
		Plan:    *plan,
		FuseBin: b.config.FuseOverlayfsBin,
		Argv:    spec.Argv,
		Dir:     spec.Dir,
		Env:     spec.Env,
	}

	statusRead, statusWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating helper status pipe: %w", err)
	}
	cmd, err := helperCommand(task, statusWrite)
	if err != nil {
		statusRead.Close()
		statusWrite.Close()
		return nil, err
	}

	var restoreTerminal func()
	if spec.Interactive {
		master, slavePath, err := openPTY()
		if err != nil {
			statusRead.Close()
			statusWrite.Close()
			return nil, failure(FailureSpawn, "run", err)
		}
		slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
		if err != nil {
			master.Close()
			statusRead.Close()
			statusWrite.Close()
			return nil, failure(FailureSpawn, "run", fmt.Errorf("open PTY slave: %w", err))
		}
		defer master.Close()
		defer slave.Close()

		cmd.Stdin = slave
		cmd.Stdout = slave
		cmd.Stderr = slave
		cmd.SysProcAttr.Setsid = true
		cmd.SysProcAttr.Setctty = true
		cmd.SysProcAttr.Ctty = 0 // fd 0 in child = slave PTY

		restoreTerminal, err = ptyRelay(master, spec.Stdin, spec.Stdout)
		if err != nil {
			statusRead.Close()
			statusWrite.Close()
			return nil, err
		}
		defer restoreTerminal()
	} else {
		cmd.Stdin = spec.Stdin
		cmd.Stdout = spec.Stdout
		cmd.Stderr = spec.Stderr
	}

	if err := cmd.Start(); err != nil {
		statusRead.Close()
		statusWrite.Close()
		for _, extra := range cmd.ExtraFiles {
			extra.Close()
		}
		return nil, failure(FailureSpawn, "run", err)
	}
	// The parent's copies of the helper-side fds must close or the
	// status pipe never reaches EOF. statusWrite sits in ExtraFiles.
	for _, extra := range cmd.ExtraFiles {
		extra.Close()
	}

	// EOF with no bytes means the mount plan was applied and the exec
	// replaced the helper image. Any bytes are a failure report.
	statusBytes, _ := io.ReadAll(statusRead)
	statusRead.Close()
	if len(statusBytes) > 0 {
		cmd.Wait()
		var status helperStatus
		if err := codec.Unmarshal(statusBytes, &status); err != nil {
			return nil, failure(FailureSpawn, "run",
				fmt.Errorf("garbled helper status: %q", statusBytes))
		}
		if status.Stage == "mount" {
			return nil, failure(FailureUnavailable, "run",
				fmt.Errorf("applying mount plan: %s", status.Message))
		}
		return nil, failure(FailureSpawn, "run", errors.New(status.Message))
	}

	exitCode, err := waitWithContext(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{
		ExitCode:  exitCode,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}, nil
}

// runOnHost executes the command with no isolation at all, the
// degrade-to-host path. The session has already emitted its warning.
func (b *nativeBackend) runOnHost(ctx context.Context, spec *CommandSpec) (*ExecutionResult, error) {
	startedAt := time.Now()
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if err := cmd.Start(); err != nil {
		return nil, failure(FailureSpawn, "run", err)
	}
	exitCode, err := waitWithContext(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{
		ExitCode:  exitCode,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}, nil
}

// Report probes every strategy live and pairs the verdicts with the
// static host capabilities, so a reader can see when the two disagree
// (module present but mount refused, binary present but FUSE broken).
func (b *nativeBackend) Report(ctx context.Context) (*DoctorReport, error) {
	capabilities := DetectCapabilities(b.config)
	landlock := DetectLandlock()

	report := &DoctorReport{
		SchemaVersion: DoctorReportVersion,
		CollectedAt:   time.Now().UTC(),
		Host: HostReadiness{
			KernelRelease:          capabilities.KernelRelease,
			Root:                   capabilities.Root,
			OverlayfsRegistered:    capabilities.OverlayfsRegistered,
			UserNamespacesEnabled:  capabilities.UserNamespacesEnabled,
			FuseDeviceAvailable:    capabilities.FuseDeviceAvailable,
			FuseOverlayfsAvailable: capabilities.FuseOverlayfsAvailable,
			FuseOverlayfsPath:      capabilities.FuseOverlayfsPath,
			LandlockSupported:      landlock.Supported,
			LandlockABI:            landlock.ABI,
		},
	}

	for _, strategy := range StrategyOrder() {
		result, err := b.Probe(ctx, strategy)
		if err != nil {
			return nil, err
		}
		report.Strategies = append(report.Strategies, StrategyReadiness{
			Strategy: result.Strategy,
			Healthy:  result.Healthy,
			Reason:   result.Reason,
			Detail:   result.Detail,
		})
		if result.Healthy && report.Selected == "" {
			report.Selected = strategy
			report.OK = true
		}
	}
	return report, nil
}

// runWithContext runs a started-from-scratch command to completion,
// killing it when the context ends. The command's error is returned
// as-is for the caller to classify.
func runWithContext(ctx context.Context, cmd *exec.Cmd) error {
	startErr := cmd.Start()
	for _, extra := range cmd.ExtraFiles {
		extra.Close()
	}
	if startErr != nil {
		return startErr
	}
	_, err := waitOrKill(ctx, cmd)
	return err
}

// waitWithContext waits for a started command and extracts its exit
// code. Context cancellation kills the process group and returns the
// context error.
func waitWithContext(ctx context.Context, cmd *exec.Cmd) (int, error) {
	waitErr, err := waitOrKill(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal()), nil
		}
	}
	return 0, waitErr
}

// waitOrKill separates "the command finished with waitErr" from "the
// context ended first".
func waitOrKill(ctx context.Context, cmd *exec.Cmd) (waitErr error, err error) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case waitErr = <-done:
		return waitErr, nil
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	}
}
