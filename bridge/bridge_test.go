// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/substrate-foundation/substrate/world"
	"github.com/substrate-foundation/substrate/worldagent"
)

// scriptedBackend is the fake engine behind a real agent socket.
type scriptedBackend struct {
	probeHealthy bool
	probeReason  world.ProbeReason
}

func (b *scriptedBackend) Probe(ctx context.Context, strategy world.Strategy) (world.ProbeResult, error) {
	return world.ProbeResult{
		Strategy: strategy,
		Healthy:  b.probeHealthy,
		Reason:   b.probeReason,
		Detail:   "scripted",
	}, nil
}

func (b *scriptedBackend) Build(ctx context.Context, sessionID string, strategy world.Strategy, projectRoot string, fsMode world.FsMode) (*world.MountPlan, error) {
	return &world.MountPlan{Strategy: strategy, TargetDir: projectRoot, FsMode: fsMode}, nil
}

func (b *scriptedBackend) Run(ctx context.Context, plan *world.MountPlan, spec *world.CommandSpec) (*world.ExecutionResult, error) {
	return &world.ExecutionResult{}, nil
}

func (b *scriptedBackend) Report(ctx context.Context) (*world.DoctorReport, error) {
	return &world.DoctorReport{SchemaVersion: world.DoctorReportVersion, OK: b.probeHealthy}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func startAgent(t *testing.T, backend world.Backend) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "agent.sock")
	listener, err := worldagent.ListenSocket(socketPath)
	if err != nil {
		t.Fatalf("ListenSocket: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go worldagent.NewService(backend, quietLogger()).Serve(ctx, listener)
	return socketPath
}

func TestBridgeProbeHealthy(t *testing.T) {
	t.Parallel()

	socketPath := startAgent(t, &scriptedBackend{probeHealthy: true, probeReason: world.ReasonHealthy})
	client := &Client{SocketPath: socketPath, Timeout: 2 * time.Second, Logger: quietLogger()}

	result, err := client.Probe(context.Background(), world.StrategyKernelOverlay)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !result.Healthy || result.Strategy != world.StrategyKernelOverlay {
		t.Errorf("result = %+v", result)
	}
}

func TestBridgeUnhealthyIsNotUnreachable(t *testing.T) {
	t.Parallel()

	// A reachable agent reporting "nothing works" must stay in the
	// unsupported lane; only transport failures are unreachable.
	socketPath := startAgent(t, &scriptedBackend{probeHealthy: false, probeReason: world.ReasonUnavailable})
	client := &Client{SocketPath: socketPath, Timeout: 2 * time.Second, Logger: quietLogger()}

	result, err := client.Probe(context.Background(), world.StrategyFuseOverlay)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.Healthy {
		t.Fatal("unhealthy verdict arrived healthy")
	}
	if result.Reason != world.ReasonUnavailable {
		t.Errorf("Reason = %q", result.Reason)
	}
}

func TestBridgeUnreachableSocket(t *testing.T) {
	t.Parallel()

	client := &Client{
		SocketPath: filepath.Join(t.TempDir(), "nobody-home.sock"),
		Timeout:    500 * time.Millisecond,
		Logger:     quietLogger(),
	}

	_, err := client.Probe(context.Background(), world.StrategyKernelOverlay)
	if err == nil {
		t.Fatal("Probe succeeded with no agent")
	}
	if world.KindOf(err) != world.FailureAgentUnreachable {
		t.Fatalf("kind = %q, want agent-unreachable", world.KindOf(err))
	}
	if world.ExitCode(err) != world.ExitAgentUnreachable {
		t.Errorf("exit code = %d, want %d", world.ExitCode(err), world.ExitAgentUnreachable)
	}
}

func TestBridgeBuild(t *testing.T) {
	t.Parallel()

	socketPath := startAgent(t, &scriptedBackend{probeHealthy: true, probeReason: world.ReasonHealthy})
	client := &Client{SocketPath: socketPath, Timeout: 2 * time.Second, Logger: quietLogger()}

	plan, err := client.Build(context.Background(), "wld_bridge", world.StrategyKernelOverlay, "/workspace/project", world.FsReadOnly)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.TargetDir != "/workspace/project" || plan.FsMode != world.FsReadOnly {
		t.Errorf("plan = %+v", plan)
	}
}

func TestBridgeRunRefuses(t *testing.T) {
	t.Parallel()

	client := &Client{SocketPath: "/nowhere.sock", Logger: quietLogger()}
	_, err := client.Run(context.Background(), nil, &world.CommandSpec{Argv: []string{"true"}})
	if err == nil {
		t.Fatal("bridge Run succeeded")
	}
	// Wiring error, not a transport verdict: it must not read as
	// unreachable.
	if world.KindOf(err) == world.FailureAgentUnreachable {
		t.Error("bridge Run classified as agent-unreachable")
	}
}

func TestBridgeReport(t *testing.T) {
	t.Parallel()

	socketPath := startAgent(t, &scriptedBackend{probeHealthy: true, probeReason: world.ReasonHealthy})
	client := &Client{SocketPath: socketPath, Timeout: 2 * time.Second, Logger: quietLogger()}

	report, err := client.Report(context.Background())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !report.OK || report.SchemaVersion != world.DoctorReportVersion {
		t.Errorf("report = %+v", report)
	}
}

func TestBridgeWorksWithFallbackController(t *testing.T) {
	t.Parallel()

	// The bridge satisfies the controller's Prober seam: a full
	// decision can be driven across the socket.
	socketPath := startAgent(t, &scriptedBackend{probeHealthy: true, probeReason: world.ReasonHealthy})
	client := &Client{SocketPath: socketPath, Timeout: 2 * time.Second, Logger: quietLogger()}

	controller := &world.Controller{Prober: client, Policy: world.Policy{Mode: world.ModeEnforce}}
	decision, err := controller.Decide(context.Background())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Outcome != world.OutcomeReady {
		t.Errorf("outcome = %q", decision.Outcome)
	}
}
