// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateOverlayPath(t *testing.T) {
	t.Parallel()

	valid := []string{
		"/workspace/project",
		"/tmp/with spaces/upper",
		"/tmp/unicode-日本語",
	}
	for _, path := range valid {
		if err := validateOverlayPath(path, "test"); err != nil {
			t.Errorf("validateOverlayPath(%q) = %v, want nil", path, err)
		}
	}

	invalid := []string{
		"/tmp/evil,upperdir=/etc",
		"/tmp/null\x00byte",
		"/tmp/new\nline",
	}
	for _, path := range invalid {
		if err := validateOverlayPath(path, "test"); err == nil {
			t.Errorf("validateOverlayPath(%q) = nil, want error", path)
		}
	}
}

func TestBuildPlanLayout(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	projectRoot := t.TempDir()

	plan, err := buildPlan(baseDir, "wld_test", StrategyKernelOverlay, projectRoot, FsWritable)
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}

	if plan.TargetDir != projectRoot {
		t.Errorf("TargetDir = %q, want project root %q", plan.TargetDir, projectRoot)
	}
	if plan.LowerDir != projectRoot {
		t.Errorf("LowerDir = %q, want project root", plan.LowerDir)
	}
	if plan.ScratchRoot != filepath.Join(baseDir, "wld_test") {
		t.Errorf("ScratchRoot = %q", plan.ScratchRoot)
	}

	// Scratch directories exist with owner-only permissions.
	for _, dir := range []string{plan.UpperDir, plan.WorkDir, plan.StagingDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("scratch dir %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if mode := info.Mode().Perm(); mode != 0700 {
			t.Errorf("%s mode = %o, want 0700", dir, mode)
		}
		if !strings.HasPrefix(dir, plan.ScratchRoot) {
			t.Errorf("%s escapes scratch root %s", dir, plan.ScratchRoot)
		}
	}
}

func TestBuildPlanRejectsMissingProject(t *testing.T) {
	t.Parallel()

	_, err := buildPlan(t.TempDir(), "wld_test", StrategyKernelOverlay, "/does/not/exist", FsWritable)
	if err == nil {
		t.Fatal("buildPlan accepted a missing project root")
	}
}

func TestBuildPlanRejectsFileProject(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := buildPlan(t.TempDir(), "wld_test", StrategyKernelOverlay, file, FsWritable)
	if err == nil {
		t.Fatal("buildPlan accepted a non-directory project root")
	}
}

func TestBuildPlanRejectsCommaPath(t *testing.T) {
	t.Parallel()

	baseDir := filepath.Join(t.TempDir(), "evil,dir")
	if err := os.Mkdir(baseDir, 0700); err != nil {
		t.Fatal(err)
	}
	_, err := buildPlan(baseDir, "wld_test", StrategyKernelOverlay, t.TempDir(), FsWritable)
	if err == nil {
		t.Fatal("buildPlan accepted a comma in the scratch path")
	}
	if !strings.Contains(err.Error(), "comma") {
		t.Errorf("err = %v, want comma injection message", err)
	}
}

func TestRemoveScratch(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	plan, err := buildPlan(baseDir, "wld_test", StrategyKernelOverlay, t.TempDir(), FsWritable)
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if err := removeScratch(plan); err != nil {
		t.Fatalf("removeScratch: %v", err)
	}
	if _, err := os.Stat(plan.ScratchRoot); !os.IsNotExist(err) {
		t.Errorf("scratch root still present after removeScratch")
	}

	// Nil and empty plans are no-ops.
	if err := removeScratch(nil); err != nil {
		t.Errorf("removeScratch(nil) = %v", err)
	}
	if err := removeScratch(&MountPlan{}); err != nil {
		t.Errorf("removeScratch(empty) = %v", err)
	}
}
