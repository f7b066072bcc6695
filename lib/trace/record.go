// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"log/slog"
	"time"
)

// ProbeStep is one strategy attempt in the fallback chain, in attempt
// order.
type ProbeStep struct {
	Strategy string        `json:"strategy"`
	Reason   string        `json:"reason"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Record holds the world-execution fields attached to a command's
// trace entry.
type Record struct {
	SessionID   string `json:"session_id"`
	ProjectRoot string `json:"project_root"`

	// Strategy is the selected strategy, empty when no world was used.
	Strategy string `json:"strategy,omitempty"`

	// Decision is the session outcome: ready, fail-closed, or
	// degrade-to-host.
	Decision string `json:"decision"`

	// FallbackReason is set when the session degraded to the host.
	FallbackReason string `json:"fallback_reason,omitempty"`

	// Probes is the full ordered list of strategy attempts.
	Probes []ProbeStep `json:"probes"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// LogValue projects the record onto a slog group so callers can attach
// it with a single attr: logger.Info("command done", "world", record).
func (r Record) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("session_id", r.SessionID),
		slog.String("decision", r.Decision),
	}
	if r.Strategy != "" {
		attrs = append(attrs, slog.String("strategy", r.Strategy))
	}
	if r.FallbackReason != "" {
		attrs = append(attrs, slog.String("fallback_reason", r.FallbackReason))
	}
	probeAttrs := make([]any, 0, len(r.Probes))
	for _, probe := range r.Probes {
		probeAttrs = append(probeAttrs, slog.Group(probe.Strategy,
			slog.String("reason", probe.Reason),
			slog.Duration("duration", probe.Duration),
		))
	}
	if len(probeAttrs) > 0 {
		attrs = append(attrs, slog.Group("probes", probeAttrs...))
	}
	attrs = append(attrs, slog.Duration("duration", r.Duration))
	return slog.GroupValue(attrs...)
}
