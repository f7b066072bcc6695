// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FsDiff summarizes a session's upper layer: what the command wrote,
// what it deleted, and whether the summary hit its caps. Downstream
// consumers decide what to do with the diff (sync, review, discard);
// this engine only reports it.
type FsDiff struct {
	// Writes are project-relative paths of files created or modified
	// in the session.
	Writes []string `json:"writes"`

	// Deletions are project-relative paths removed in the session,
	// recovered from overlay whiteout entries.
	Deletions []string `json:"deletions"`

	// Dirs are project-relative directories created in the session.
	Dirs []string `json:"dirs"`

	// Truncated is true when any cap was hit; the diff is then a
	// prefix, not a full account.
	Truncated bool `json:"truncated"`
}

// DiffLimits caps diff computation so a command that writes a million
// files cannot balloon the trace.
type DiffLimits struct {
	MaxTrackedFiles int
	MaxTrackedDirs  int
	MaxTotalBytes   int64
}

// DefaultDiffLimits mirrors the limits the trace pipeline expects.
func DefaultDiffLimits() DiffLimits {
	return DiffLimits{
		MaxTrackedFiles: 1000,
		MaxTrackedDirs:  100,
		MaxTotalBytes:   10 * 1024 * 1024,
	}
}

// whiteoutPrefix marks deletions in overlay implementations that
// cannot create 0:0 character devices in the upper layer.
const whiteoutPrefix = ".wh."

// ComputeDiff walks an upper layer and classifies its entries. The
// upper directory may not exist (command wrote nothing); that is an
// empty diff, not an error.
func ComputeDiff(upperDir string, limits DiffLimits) (*FsDiff, error) {
	diff := &FsDiff{}
	if _, err := os.Stat(upperDir); os.IsNotExist(err) {
		return diff, nil
	}

	var totalBytes int64
	err := filepath.WalkDir(upperDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == upperDir {
			return nil
		}
		relative, err := filepath.Rel(upperDir, path)
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if len(diff.Dirs) >= limits.MaxTrackedDirs {
				diff.Truncated = true
				return fs.SkipDir
			}
			diff.Dirs = append(diff.Dirs, relative)
			return nil
		}

		if len(diff.Writes)+len(diff.Deletions) >= limits.MaxTrackedFiles {
			diff.Truncated = true
			return fs.SkipAll
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		// Whiteouts: a character device in the upper layer (kernel
		// overlayfs) or a .wh.-prefixed name (user-space overlay
		// implementations without mknod).
		base := filepath.Base(relative)
		switch {
		case info.Mode()&os.ModeCharDevice != 0:
			diff.Deletions = append(diff.Deletions, relative)
		case strings.HasPrefix(base, whiteoutPrefix):
			original := filepath.Join(filepath.Dir(relative), strings.TrimPrefix(base, whiteoutPrefix))
			diff.Deletions = append(diff.Deletions, original)
		default:
			totalBytes += info.Size()
			if limits.MaxTotalBytes > 0 && totalBytes > limits.MaxTotalBytes {
				diff.Truncated = true
				return fs.SkipAll
			}
			diff.Writes = append(diff.Writes, relative)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("computing upper-layer diff: %w", err)
	}

	sort.Strings(diff.Writes)
	sort.Strings(diff.Deletions)
	sort.Strings(diff.Dirs)
	return diff, nil
}
