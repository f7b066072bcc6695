// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeBackend drives sessions from a probe script without touching the
// kernel.
type fakeBackend struct {
	probes   map[Strategy]ProbeResult
	baseDir  string
	runCalls int
	ranPlan  *MountPlan
	exitCode int
}

func (b *fakeBackend) Probe(ctx context.Context, strategy Strategy) (ProbeResult, error) {
	return b.probes[strategy], nil
}

func (b *fakeBackend) Build(ctx context.Context, sessionID string, strategy Strategy, projectRoot string, fsMode FsMode) (*MountPlan, error) {
	return buildPlan(b.baseDir, sessionID, strategy, projectRoot, fsMode)
}

func (b *fakeBackend) Run(ctx context.Context, plan *MountPlan, spec *CommandSpec) (*ExecutionResult, error) {
	b.runCalls++
	b.ranPlan = plan
	return &ExecutionResult{ExitCode: b.exitCode, StartedAt: time.Now()}, nil
}

func (b *fakeBackend) Report(ctx context.Context) (*DoctorReport, error) {
	return &DoctorReport{SchemaVersion: DoctorReportVersion}, nil
}

func allHealthy() map[Strategy]ProbeResult {
	return map[Strategy]ProbeResult{
		StrategyKernelOverlay: {Strategy: StrategyKernelOverlay, Healthy: true, Reason: ReasonHealthy},
		StrategyFuseOverlay:   {Strategy: StrategyFuseOverlay, Healthy: true, Reason: ReasonHealthy},
	}
}

func noneHealthy() map[Strategy]ProbeResult {
	return map[Strategy]ProbeResult{
		StrategyKernelOverlay: {Strategy: StrategyKernelOverlay, Reason: ReasonUnavailable},
		StrategyFuseOverlay:   {Strategy: StrategyFuseOverlay, Reason: ReasonUnavailable},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func newTestSession(t *testing.T, backend Backend, policy Policy, warnOutput *bytes.Buffer) *Session {
	t.Helper()
	session, err := NewSession(SessionConfig{
		ProjectRoot: t.TempDir(),
		Policy:      policy,
		Config:      &Config{BaseDir: t.TempDir(), AgentTimeout: DefaultAgentTimeout},
		Backend:     backend,
		Logger:      quietLogger(),
		WarnOutput:  warnOutput,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

func TestSessionResolveReady(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{probes: allHealthy(), baseDir: t.TempDir()}
	warnings := &bytes.Buffer{}
	session := newTestSession(t, backend, Policy{Mode: ModeEnforce, FsMode: FsWritable}, warnings)

	if err := session.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if session.Outcome() != OutcomeReady {
		t.Fatalf("outcome = %q, want ready", session.Outcome())
	}
	if session.SelectedStrategy() != StrategyKernelOverlay {
		t.Errorf("strategy = %q", session.SelectedStrategy())
	}
	if session.Plan() == nil {
		t.Fatal("no plan after ready resolve")
	}
	if warnings.Len() != 0 {
		t.Errorf("ready session produced a warning: %q", warnings.String())
	}

	result, err := session.Run(context.Background(), &CommandSpec{Argv: []string{"true"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result == nil || backend.runCalls != 1 {
		t.Fatalf("run calls = %d", backend.runCalls)
	}
	if backend.ranPlan == nil {
		t.Error("Run received a nil plan for a ready session")
	}
}

func TestSessionFailClosed(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{probes: noneHealthy(), baseDir: t.TempDir()}
	warnings := &bytes.Buffer{}
	session := newTestSession(t, backend, Policy{Mode: ModeEnforce, RequiresWorld: true}, warnings)

	err := session.Resolve(context.Background())
	if err == nil {
		t.Fatal("Resolve succeeded with no viable strategy and a required world")
	}
	if KindOf(err) != FailurePolicyRefusal {
		t.Errorf("kind = %q, want policy-refusal", KindOf(err))
	}
	if ExitCode(err) != ExitPolicyRefusal {
		t.Errorf("exit code = %d, want %d", ExitCode(err), ExitPolicyRefusal)
	}
	if !errors.Is(err, ErrNoStrategy) {
		t.Error("refusal does not wrap ErrNoStrategy")
	}
	if !strings.Contains(err.Error(), "doctor") {
		t.Errorf("refusal %q does not point at doctor", err.Error())
	}
	if warnings.Len() != 0 {
		t.Errorf("fail-closed session emitted the degrade warning: %q", warnings.String())
	}

	// The command is never spawned, even if the caller ignores the
	// resolve error.
	if _, err := session.Run(context.Background(), &CommandSpec{Argv: []string{"true"}}); err == nil {
		t.Fatal("Run succeeded on a fail-closed session")
	}
	if backend.runCalls != 0 {
		t.Errorf("backend.Run called %d times on a fail-closed session", backend.runCalls)
	}
}

func TestSessionDegradeWarnsExactlyOnce(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{probes: noneHealthy(), baseDir: t.TempDir()}
	warnings := &bytes.Buffer{}
	session := newTestSession(t, backend, Policy{Mode: ModeEnforce}, warnings)

	if err := session.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if session.Outcome() != OutcomeDegradeToHost {
		t.Fatalf("outcome = %q, want degrade-to-host", session.Outcome())
	}

	// The warning is the exact contract line, once, regardless of how
	// many commands the session runs.
	for i := 0; i < 3; i++ {
		if _, err := session.Run(context.Background(), &CommandSpec{Argv: []string{"true"}}); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if got := warnings.String(); got != DegradeWarning+"\n" {
		t.Errorf("warnings = %q, want exactly one contract line", got)
	}
	if backend.ranPlan != nil {
		t.Error("degraded session passed a plan to Run")
	}
}

func TestSessionDisabledModeIsSilent(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{probes: noneHealthy(), baseDir: t.TempDir()}
	warnings := &bytes.Buffer{}
	session := newTestSession(t, backend, Policy{Mode: ModeDisabled}, warnings)

	if err := session.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if session.Outcome() != OutcomeDegradeToHost {
		t.Fatalf("outcome = %q", session.Outcome())
	}
	if len(session.Probes()) != 0 {
		t.Errorf("disabled mode probed: %v", session.Probes())
	}
	if warnings.Len() != 0 {
		t.Errorf("disabled mode warned: %q", warnings.String())
	}
}

func TestSessionResolveOnlyOnce(t *testing.T) {
	t.Parallel()

	session := newTestSession(t,
		&fakeBackend{probes: allHealthy(), baseDir: t.TempDir()},
		Policy{Mode: ModeEnforce}, &bytes.Buffer{})

	if err := session.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := session.Resolve(context.Background()); err == nil {
		t.Fatal("second Resolve succeeded")
	}
}

func TestSessionTeardownOnce(t *testing.T) {
	t.Parallel()

	session := newTestSession(t,
		&fakeBackend{probes: allHealthy(), baseDir: t.TempDir()},
		Policy{Mode: ModeEnforce}, &bytes.Buffer{})
	if err := session.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}

	scratch := session.Plan().ScratchRoot
	if err := session.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("scratch root survives teardown")
	}
	// Second call is a no-op reporting the first result.
	if err := session.Teardown(); err != nil {
		t.Errorf("second Teardown = %v", err)
	}
}

func TestSessionDiff(t *testing.T) {
	t.Parallel()

	session := newTestSession(t,
		&fakeBackend{probes: allHealthy(), baseDir: t.TempDir()},
		Policy{Mode: ModeEnforce}, &bytes.Buffer{})
	if err := session.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}

	upper := session.Plan().UpperDir
	if err := os.WriteFile(filepath.Join(upper, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	diff, err := session.Diff()
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diff.Writes) != 1 || diff.Writes[0] != "new.txt" {
		t.Errorf("Writes = %v", diff.Writes)
	}
}

func TestSessionTraceRecord(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{probes: noneHealthy(), baseDir: t.TempDir()}
	session := newTestSession(t, backend, Policy{Mode: ModeEnforce}, &bytes.Buffer{})
	if err := session.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}

	record := session.Trace(&ExecutionResult{ExitCode: 0, StartedAt: time.Now()})
	if record.SessionID != session.ID() {
		t.Errorf("SessionID = %q, want %q", record.SessionID, session.ID())
	}
	if record.Decision != string(OutcomeDegradeToHost) {
		t.Errorf("Decision = %q", record.Decision)
	}
	if record.FallbackReason != FallbackNoViableStrategy {
		t.Errorf("FallbackReason = %q", record.FallbackReason)
	}
	if len(record.Probes) != 2 {
		t.Errorf("Probes = %v, want both strategies", record.Probes)
	}
}

func TestSessionIDShape(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newSessionID()
		if !strings.HasPrefix(id, "wld_") || len(id) != len("wld_")+16 {
			t.Fatalf("session ID %q has wrong shape", id)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}
