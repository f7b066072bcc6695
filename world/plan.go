// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountPlan describes one session's overlay topology. Exactly one plan
// is active per session. All scratch paths live under ScratchRoot,
// which the session removes on teardown.
type MountPlan struct {
	Strategy Strategy

	// TargetDir is the real project root. Inside the session's mount
	// namespace the merged view occupies this literal path, so
	// absolute-path references resolve through the overlay.
	TargetDir string

	// LowerDir is the read-only lower layer (the project tree itself).
	LowerDir string

	// UpperDir receives every write made inside the session.
	UpperDir string

	// WorkDir is the overlay work directory (kernel requirement).
	WorkDir string

	// StagingDir is where the kernel overlay is first mounted before
	// being move-mounted onto TargetDir. A move leaves exactly one
	// mountpoint; bind-mounting a staging overlay onto the project
	// path can leave two mountpoints referencing the same merged tree,
	// which triggers enumeration bugs on some kernel/filesystem
	// combinations. Unused by the FUSE strategy, which attaches
	// directly at TargetDir.
	StagingDir string

	// ScratchRoot is the per-session directory containing all of the
	// above scratch paths.
	ScratchRoot string

	// FsMode controls whether the merged view is writable.
	FsMode FsMode
}

// validateOverlayPath rejects paths that would corrupt overlay mount
// options. Both the kernel overlay and fuse-overlayfs use commas to
// separate options, so a path containing a comma could inject
// additional options ("lowerdir=/tmp,upperdir=/etc").
func validateOverlayPath(path, fieldName string) error {
	if strings.Contains(path, ",") {
		return fmt.Errorf("%s path %q contains a comma, which cannot be escaped in overlay mount options", fieldName, path)
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("%s path %q contains invalid characters (null or newline)", fieldName, path)
	}
	return nil
}

// buildPlan lays out a session's scratch directories and returns the
// plan. No mounts happen here: mounting is the helper's job, inside
// the session namespace.
func buildPlan(baseDir, sessionID string, strategy Strategy, projectRoot string, fsMode FsMode) (*MountPlan, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	info, err := os.Stat(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", projectRoot)
	}

	scratchRoot := filepath.Join(baseDir, sessionID)
	plan := &MountPlan{
		Strategy:    strategy,
		TargetDir:   projectRoot,
		LowerDir:    projectRoot,
		UpperDir:    filepath.Join(scratchRoot, "upper"),
		WorkDir:     filepath.Join(scratchRoot, "work"),
		StagingDir:  filepath.Join(scratchRoot, "staging"),
		ScratchRoot: scratchRoot,
		FsMode:      fsMode,
	}

	for _, candidate := range []struct{ name, path string }{
		{"lower", plan.LowerDir},
		{"upper", plan.UpperDir},
		{"work", plan.WorkDir},
		{"staging", plan.StagingDir},
	} {
		if err := validateOverlayPath(candidate.path, candidate.name); err != nil {
			return nil, err
		}
	}

	// 0700: scratch contains a copy of whatever the command writes;
	// other local users have no business reading it.
	for _, dir := range []string{plan.UpperDir, plan.WorkDir, plan.StagingDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating overlay directory %s: %w", dir, err)
		}
	}
	return plan, nil
}

// removeScratch deletes a plan's scratch tree. Called during session
// teardown, after the namespace (and with it every mount referencing
// these directories) is gone.
func removeScratch(plan *MountPlan) error {
	if plan == nil || plan.ScratchRoot == "" {
		return nil
	}
	if err := os.RemoveAll(plan.ScratchRoot); err != nil {
		return fmt.Errorf("removing session scratch %s: %w", plan.ScratchRoot, err)
	}
	return nil
}
