// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// PruneOptions controls dated-backup retention.
type PruneOptions struct {
	// Retain is how many newest dated backups to keep. Must be >= 1
	// so the rollback source is never pruned away.
	Retain int

	// Archive, when set, packs each pruned backup into
	// <name>.tar.zst beside the backup root before removal.
	Archive bool
}

// Prune removes dated backups beyond the retention count, oldest
// first. Rotation's one-backup-per-date invariant is untouched; this
// only bounds how many dates accumulate. Returns the paths removed.
func Prune(backupRoot, productionBase string, options PruneOptions, logger *slog.Logger) ([]string, error) {
	if options.Retain < 1 {
		return nil, fmt.Errorf("prune: retain must be at least 1, got %d", options.Retain)
	}

	backups, err := ListBackups(backupRoot, productionBase)
	if err != nil {
		return nil, err
	}

	excess := len(backups) - options.Retain
	if excess <= 0 {
		logger.Info("no backups to prune",
			"present", len(backups), "retain", options.Retain)
		return nil, nil
	}

	var removed []string
	for _, backup := range backups[:excess] {
		if options.Archive {
			archivePath := backup + ".tar.zst"
			if err := archiveTree(backup, archivePath); err != nil {
				return removed, fmt.Errorf("archiving %s: %w", backup, err)
			}
			logger.Info("backup archived", "backup", backup, "archive", archivePath)
		}
		if err := os.RemoveAll(backup); err != nil {
			return removed, fmt.Errorf("removing %s: %w", backup, err)
		}
		logger.Info("backup pruned", "backup", backup)
		removed = append(removed, backup)
	}
	return removed, nil
}

// archiveTree writes the directory as a zstd-compressed tarball. The
// archive is written to a temp name and renamed into place so a
// partial write is never mistaken for a complete archive.
func archiveTree(root, archivePath string) error {
	tmpPath := archivePath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	compressor, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return err
	}
	tarWriter := tar.NewWriter(compressor)

	baseName := filepath.Base(root)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		linkTarget := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if linkTarget, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(baseName, relPath))

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		source, err := os.Open(path)
		if err != nil {
			return err
		}
		defer source.Close()
		_, err = io.Copy(tarWriter, source)
		return err
	})
	if err != nil {
		tarWriter.Close()
		compressor.Close()
		file.Close()
		return err
	}

	if err := tarWriter.Close(); err != nil {
		compressor.Close()
		file.Close()
		return err
	}
	if err := compressor.Close(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, archivePath)
}
