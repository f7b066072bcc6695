// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ExportArchive streams the session's upper layer as a zstd-compressed
// tar archive. Whiteout entries are preserved under their on-disk names
// so a consumer can replay deletions. Symlinks are archived as links,
// never followed.
func ExportArchive(upperDir string, w io.Writer) error {
	if _, err := os.Stat(upperDir); os.IsNotExist(err) {
		// Nothing written: emit a valid empty archive.
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		tw := tar.NewWriter(zw)
		if err := tw.Close(); err != nil {
			return err
		}
		return zw.Close()
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(upperDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == upperDir {
			return nil
		}
		relative, err := filepath.Rel(upperDir, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relative)
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(tw, file)
		file.Close()
		return copyErr
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return fmt.Errorf("archiving upper layer: %w", walkErr)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}
