// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHintRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hints", "strategy-hint.yaml")
	if err := SaveHint(path, "fp-abc", StrategyFuseOverlay); err != nil {
		t.Fatalf("SaveHint: %v", err)
	}

	hint, ok := LoadHint(path, "fp-abc")
	if !ok {
		t.Fatal("LoadHint found no hint for matching fingerprint")
	}
	if hint.Strategy != StrategyFuseOverlay {
		t.Errorf("Strategy = %q, want fuse-overlay", hint.Strategy)
	}
	if hint.RecordedAt.IsZero() {
		t.Error("RecordedAt is zero")
	}
}

func TestHintFingerprintMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "strategy-hint.yaml")
	if err := SaveHint(path, "fp-old-kernel", StrategyKernelOverlay); err != nil {
		t.Fatalf("SaveHint: %v", err)
	}

	// A hint recorded under different host capabilities is stale and
	// must not surface.
	if _, ok := LoadHint(path, "fp-new-kernel"); ok {
		t.Fatal("LoadHint returned a hint for a different fingerprint")
	}
}

func TestHintMissingFile(t *testing.T) {
	t.Parallel()

	if _, ok := LoadHint(filepath.Join(t.TempDir(), "absent.yaml"), "fp"); ok {
		t.Fatal("LoadHint returned a hint from a missing file")
	}
}

func TestHintMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "strategy-hint.yaml")
	if err := os.WriteFile(path, []byte("{{{not yaml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, ok := LoadHint(path, "fp"); ok {
		t.Fatal("LoadHint returned a hint from a malformed file")
	}
}

func TestSaveHintOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "strategy-hint.yaml")
	if err := SaveHint(path, "fp", StrategyKernelOverlay); err != nil {
		t.Fatal(err)
	}
	if err := SaveHint(path, "fp", StrategyFuseOverlay); err != nil {
		t.Fatal(err)
	}
	hint, ok := LoadHint(path, "fp")
	if !ok || hint.Strategy != StrategyFuseOverlay {
		t.Fatalf("hint = %+v ok=%v, want latest strategy", hint, ok)
	}
}
