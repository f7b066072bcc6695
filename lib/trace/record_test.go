// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestRecordLogValue(t *testing.T) {
	t.Parallel()

	record := Record{
		SessionID:      "wld_0011223344556677",
		ProjectRoot:    "/workspace/project",
		Decision:       "degrade-to-host",
		FallbackReason: "no_viable_strategy",
		Probes: []ProbeStep{
			{Strategy: "kernel-overlay", Reason: "unavailable", Duration: 5 * time.Millisecond},
			{Strategy: "fuse-overlay", Reason: "unavailable", Duration: 7 * time.Millisecond},
		},
		Duration: 120 * time.Millisecond,
	}

	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))
	logger.Info("command done", "world", record)

	var entry map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	group, ok := entry["world"].(map[string]any)
	if !ok {
		t.Fatalf("no world group in %v", entry)
	}
	if group["session_id"] != "wld_0011223344556677" {
		t.Errorf("session_id = %v", group["session_id"])
	}
	if group["decision"] != "degrade-to-host" {
		t.Errorf("decision = %v", group["decision"])
	}
	if group["fallback_reason"] != "no_viable_strategy" {
		t.Errorf("fallback_reason = %v", group["fallback_reason"])
	}
	probes, ok := group["probes"].(map[string]any)
	if !ok {
		t.Fatalf("no probes group in %v", group)
	}
	if _, ok := probes["kernel-overlay"]; !ok {
		t.Error("kernel-overlay probe missing from log projection")
	}
}

func TestRecordOmitsEmptyStrategy(t *testing.T) {
	t.Parallel()

	record := Record{SessionID: "wld_x", Decision: "ready", Strategy: "kernel-overlay"}

	var buffer bytes.Buffer
	slog.New(slog.NewJSONHandler(&buffer, nil)).Info("done", "world", record)
	var entry map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	group := entry["world"].(map[string]any)
	if group["strategy"] != "kernel-overlay" {
		t.Errorf("strategy = %v", group["strategy"])
	}
	if _, present := group["fallback_reason"]; present {
		t.Error("empty fallback_reason was logged")
	}
}
