// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/substrate-foundation/substrate/lib/trace"
)

// SessionConfig configures one world session.
type SessionConfig struct {
	// ProjectRoot is the real project path the merged view will occupy.
	ProjectRoot string

	// Policy is the externally-resolved policy decision.
	Policy Policy

	// Config carries engine settings (scratch root, agent socket).
	// Nil means defaults.
	Config *Config

	// Backend performs the probing, mounting, and execution. Nil
	// selects the process-wide default for this host.
	Backend Backend

	// Logger receives structured session events. Nil uses
	// slog.Default().
	Logger *slog.Logger

	// WarnOutput receives the degrade-to-host warning line. Nil means
	// os.Stderr. The warning is user-visible contract output, not
	// logging, which is why it bypasses Logger.
	WarnOutput io.Writer
}

// Session is the unit of isolation for one command execution. Sessions
// are independent: each owns its scratch directories and namespace, so
// concurrent sessions share nothing mutable. A session moves strictly
// through resolve → run → teardown; teardown runs exactly once no
// matter how the session ends.
type Session struct {
	id          string
	projectRoot string
	policy      Policy
	config      *Config
	backend     Backend
	logger      *slog.Logger
	warnOutput  io.Writer

	resolved  bool
	decision  Decision
	plan      *MountPlan
	startedAt time.Time

	warnOnce     sync.Once
	teardownOnce sync.Once
	teardownErr  error
}

// NewSession creates a session. No probing or mounting happens until
// Resolve.
func NewSession(config SessionConfig) (*Session, error) {
	if config.ProjectRoot == "" {
		return nil, fmt.Errorf("project root is required")
	}
	if config.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	engineConfig := config.Config
	if engineConfig == nil {
		engineConfig = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	warnOutput := config.WarnOutput
	if warnOutput == nil {
		warnOutput = os.Stderr
	}

	return &Session{
		id:          newSessionID(),
		projectRoot: config.ProjectRoot,
		policy:      config.Policy,
		config:      engineConfig,
		backend:     config.Backend,
		logger:      logger,
		warnOutput:  warnOutput,
	}, nil
}

// newSessionID returns a fresh world identifier.
func newSessionID() string {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// Entropy exhaustion does not exist on the kernels we run on;
		// a zero ID would still be scoped by the per-session scratch
		// directory, but fail loudly anyway.
		panic("world: reading session ID entropy: " + err.Error())
	}
	return "wld_" + hex.EncodeToString(raw[:])
}

// ID returns the session identifier used in scratch paths and traces.
func (s *Session) ID() string { return s.id }

// Resolve runs the fallback controller and, on a ready outcome,
// builds the mount plan. It returns a policy-refusal error when
// isolation is required but unenforceable; the command is never
// spawned in that case and no filesystem side effect has occurred
// beyond the probes' own scratch areas (already removed).
func (s *Session) Resolve(ctx context.Context) error {
	if s.resolved {
		return fmt.Errorf("session %s already resolved", s.id)
	}
	s.resolved = true
	s.startedAt = time.Now()
	s.logger = s.logger.With("session", s.id)

	// A disabled policy means world execution is not attempted at
	// all: straight to the host, no probes, no warning.
	if s.policy.Mode == ModeDisabled {
		s.decision = Decision{Outcome: OutcomeDegradeToHost}
		return nil
	}

	controller := &Controller{Prober: s.backend, Policy: s.policy}
	decision, err := controller.Decide(ctx)
	if err != nil {
		return err
	}
	s.decision = decision

	switch decision.Outcome {
	case OutcomeReady:
		plan, err := s.backend.Build(ctx, s.id, decision.Strategy, s.projectRoot, s.policy.FsMode)
		if err != nil {
			return err
		}
		s.plan = plan
		s.logger.Info("world ready",
			"strategy", decision.Strategy,
			"project_root", s.projectRoot,
		)
		return nil

	case OutcomeFailClosed:
		return failure(FailurePolicyRefusal, "resolve",
			fmt.Errorf("%w and policy requires a world (%s); run \"substrate-world doctor\" for diagnosis",
				ErrNoStrategy, describeProbes(decision.Probes)))

	case OutcomeDegradeToHost:
		s.warnOnce.Do(func() {
			fmt.Fprintln(s.warnOutput, DegradeWarning)
		})
		s.logger.Warn("degrading to host execution",
			"fallback_reason", decision.FallbackReason,
		)
		return nil
	}
	return fmt.Errorf("unknown outcome %q", decision.Outcome)
}

// describeProbes summarizes probe failures for the refusal message.
func describeProbes(probes []ProbeResult) string {
	summary := ""
	for i, probe := range probes {
		if i > 0 {
			summary += ", "
		}
		summary += fmt.Sprintf("%s: %s", probe.Strategy, probe.Reason)
	}
	if summary == "" {
		return "no strategies probed"
	}
	return summary
}

// Run executes the command under the resolved plan. The child is
// never started before mount construction has fully completed; a
// fail-closed session refuses here as well, in case the caller
// ignored the Resolve error.
func (s *Session) Run(ctx context.Context, spec *CommandSpec) (*ExecutionResult, error) {
	if !s.resolved {
		return nil, fmt.Errorf("session %s not resolved", s.id)
	}
	if s.decision.Outcome == OutcomeFailClosed {
		return nil, failure(FailurePolicyRefusal, "run",
			fmt.Errorf("%w; command not spawned", ErrNoStrategy))
	}
	return s.backend.Run(ctx, s.plan, spec)
}

// Outcome returns the session decision.
func (s *Session) Outcome() Outcome { return s.decision.Outcome }

// SelectedStrategy returns the winning strategy, or "" when the
// session is degraded or fail-closed.
func (s *Session) SelectedStrategy() Strategy { return s.decision.Strategy }

// Probes returns the ordered strategy attempts for this invocation.
func (s *Session) Probes() []ProbeResult { return s.decision.Probes }

// Plan returns the active mount plan, nil when no world is in force.
func (s *Session) Plan() *MountPlan { return s.plan }

// Diff computes the upper-layer filesystem diff. Call before
// Teardown; a session without a plan has an empty diff.
func (s *Session) Diff() (*FsDiff, error) {
	if s.plan == nil {
		return &FsDiff{}, nil
	}
	return ComputeDiff(s.plan.UpperDir, DefaultDiffLimits())
}

// Teardown releases the session: every mount referencing the scratch
// directories died with the session namespace, and the scratch tree is
// removed here. Safe to call from any exit path; only the first call
// does work.
func (s *Session) Teardown() error {
	s.teardownOnce.Do(func() {
		s.teardownErr = removeScratch(s.plan)
		if s.teardownErr != nil {
			s.logger.Error("session teardown", "error", s.teardownErr)
		}
	})
	return s.teardownErr
}

// Trace builds the per-command trace record for this session.
func (s *Session) Trace(result *ExecutionResult) trace.Record {
	record := trace.Record{
		SessionID:      s.id,
		ProjectRoot:    s.projectRoot,
		Strategy:       string(s.decision.Strategy),
		Decision:       string(s.decision.Outcome),
		FallbackReason: s.decision.FallbackReason,
		StartedAt:      s.startedAt,
	}
	for _, probe := range s.decision.Probes {
		record.Probes = append(record.Probes, trace.ProbeStep{
			Strategy: string(probe.Strategy),
			Reason:   string(probe.Reason),
			Detail:   probe.Detail,
			Duration: probe.Duration,
		})
	}
	if result != nil {
		record.Duration = result.StartedAt.Add(result.Duration).Sub(s.startedAt)
	} else {
		record.Duration = time.Since(s.startedAt)
	}
	return record
}
