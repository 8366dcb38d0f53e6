// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"syscall"

	"github.com/gyantal/RqCore/lib/digest"
)

// Rotator performs the directory-level promotion: the current
// production directory becomes a dated backup, and a fresh production
// directory is materialized from the staging tree.
type Rotator struct {
	logger *slog.Logger
}

// NewRotator returns a Rotator.
func NewRotator(logger *slog.Logger) *Rotator {
	return &Rotator{logger: logger}
}

// BackupPath returns the dated backup path for a production directory:
// <backupRoot>/<production basename>_<dateStamp>.
func BackupPath(production, backupRoot, dateStamp string) string {
	return filepath.Join(backupRoot, filepath.Base(production)+"_"+dateStamp)
}

// Rotate moves production aside as the dated backup and repopulates it
// from staging.
//
// A backup already present for the date is deleted first — the last
// rotation of a day wins. The production move is a single rename on
// the same filesystem; across filesystems it falls back to
// copy-verify-delete, where the original is only removed after a tree
// digest confirms the backup copy is complete, so a deployable copy of
// the service is never lost mid-rotation.
//
// All failures surface as *RotateError; there is no retry.
func (r *Rotator) Rotate(staging, production, backupRoot, dateStamp string) error {
	if _, err := os.Stat(staging); err != nil {
		return &RotateError{Kind: StagingMissing, Path: staging, Err: err}
	}
	if _, err := os.Stat(production); err != nil {
		return &RotateError{Kind: ProductionMissing, Path: production, Err: err}
	}

	backup := BackupPath(production, backupRoot, dateStamp)
	if _, err := os.Stat(backup); err == nil {
		r.logger.Info("overwriting same-day backup", "backup", backup)
		if err := os.RemoveAll(backup); err != nil {
			return &RotateError{Kind: BackupFailed, Path: backup, Err: err}
		}
	}

	if err := r.moveAside(production, backup); err != nil {
		return err
	}
	r.logger.Info("production moved to backup", "production", production, "backup", backup)

	if err := os.MkdirAll(production, 0o755); err != nil {
		return &RotateError{Kind: CopyFailed, Path: production, Err: err}
	}
	if err := copyTree(staging, production); err != nil {
		return &RotateError{Kind: CopyFailed, Path: production, Err: err}
	}

	r.logger.Info("staging tree promoted", "staging", staging, "production", production)
	return nil
}

// moveAside renames production to backup, falling back to
// copy-verify-delete when the rename crosses filesystems. Failures
// before the original is deleted report BackupFailed, so the caller
// knows production is still intact.
func (r *Rotator) moveAside(production, backup string) error {
	err := os.Rename(production, backup)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return &RotateError{Kind: BackupFailed, Path: backup, Err: err}
	}

	r.logger.Warn("backup crosses filesystems, using copy fallback",
		"production", production, "backup", backup)

	if err := r.copyBackup(production, backup); err != nil {
		// Remove the partial copy so a later rollback can never
		// mistake it for a restorable production state.
		if removeErr := os.RemoveAll(backup); removeErr != nil {
			r.logger.Error("removing partial backup copy failed",
				"backup", backup, "error", removeErr)
		}
		return err
	}

	if err := os.RemoveAll(production); err != nil {
		return &RotateError{Kind: CopyFailed, Path: production, Err: err}
	}
	return nil
}

// copyBackup materializes backup as a verified copy of production. The
// caller deletes the original only after a nil return; every failure
// here leaves production untouched.
func (r *Rotator) copyBackup(production, backup string) error {
	if err := os.MkdirAll(backup, 0o755); err != nil {
		return &RotateError{Kind: BackupFailed, Path: backup, Err: err}
	}
	if err := copyTree(production, backup); err != nil {
		return &RotateError{Kind: BackupFailed, Path: backup, Err: err}
	}

	// Only delete the original once the copy provably matches it.
	originalDigest, err := digest.Tree(production)
	if err != nil {
		return &RotateError{Kind: BackupFailed, Path: production, Err: err}
	}
	backupDigest, err := digest.Tree(backup)
	if err != nil {
		return &RotateError{Kind: BackupFailed, Path: backup, Err: err}
	}
	if originalDigest != backupDigest {
		return &RotateError{Kind: BackupFailed, Path: backup,
			Err: fmt.Errorf("backup copy digest mismatch: %s != %s", backupDigest, originalDigest)}
	}
	return nil
}

// Rollback re-promotes the newest dated backup to the production path.
// Any partial production directory left by a failed rotation is
// removed first. Used after a rotation or start failure, once the old
// instance is already down.
func (r *Rotator) Rollback(production, backupRoot string) error {
	backups, err := ListBackups(backupRoot, filepath.Base(production))
	if err != nil {
		return fmt.Errorf("listing backups for rollback: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no dated backup of %s to roll back to", filepath.Base(production))
	}
	newest := backups[len(backups)-1]

	if _, err := os.Stat(production); err == nil {
		if err := os.RemoveAll(production); err != nil {
			return fmt.Errorf("removing partial production directory: %w", err)
		}
	}

	if err := os.Rename(newest, production); err != nil {
		return fmt.Errorf("re-promoting backup %s: %w", newest, err)
	}
	r.logger.Warn("rolled back to previous production state", "backup", newest)
	return nil
}

// backupNamePattern matches dated backup basenames for a given
// production basename, e.g. prod_20260825.
func backupNamePattern(productionBase string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(productionBase) + `_\d{8}$`)
}

// ListBackups returns the dated backups of the named production
// directory under backupRoot, sorted oldest first. Date stamps sort
// lexically because they are fixed-width YYYYMMDD.
func ListBackups(backupRoot, productionBase string) ([]string, error) {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		return nil, fmt.Errorf("reading backup root %s: %w", backupRoot, err)
	}

	pattern := backupNamePattern(productionBase)
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() && pattern.MatchString(entry.Name()) {
			backups = append(backups, filepath.Join(backupRoot, entry.Name()))
		}
	}
	sort.Strings(backups)
	return backups, nil
}

// copyTree recursively copies the contents of src into dst, preserving
// relative structure, file modes, and symlinks. dst must exist.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		target := filepath.Join(dst, relPath)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return err
			}
			// MkdirAll applies the mode through the umask.
			return os.Chmod(target, info.Mode().Perm())

		case info.Mode()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)

		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	// O_CREATE applies perm through the umask, but the fallback's
	// digest verification compares mode bits exactly.
	if err := destination.Chmod(perm); err != nil {
		destination.Close()
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return destination.Close()
}
