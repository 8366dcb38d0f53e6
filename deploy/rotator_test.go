// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/gyantal/RqCore/lib/digest"
)

// writeTree materializes files under root; keys are slash-separated
// relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func readTreeFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func testRotator() *Rotator {
	return NewRotator(slog.New(slog.DiscardHandler))
}

func TestRotatePromotesStagingAndDatesBackup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	production := filepath.Join(root, "prod")
	writeTree(t, staging, map[string]string{"bin/svc": "v2", "conf/app.yaml": "port: 80"})
	writeTree(t, production, map[string]string{"bin/svc": "v1"})

	if err := testRotator().Rotate(staging, production, root, "20260825"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// New production holds the staged content.
	if got := readTreeFile(t, filepath.Join(production, "bin", "svc")); got != "v2" {
		t.Errorf("production bin/svc = %q, want v2", got)
	}
	if got := readTreeFile(t, filepath.Join(production, "conf", "app.yaml")); got != "port: 80" {
		t.Errorf("production conf/app.yaml = %q", got)
	}

	// The dated backup holds the prior production content.
	backup := filepath.Join(root, "prod_20260825")
	if got := readTreeFile(t, filepath.Join(backup, "bin", "svc")); got != "v1" {
		t.Errorf("backup bin/svc = %q, want v1", got)
	}

	// Staging is untouched.
	if got := readTreeFile(t, filepath.Join(staging, "bin", "svc")); got != "v2" {
		t.Errorf("staging bin/svc = %q, want v2 (staging must not be consumed)", got)
	}

	backups, err := ListBackups(root, "prod")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 || backups[0] != backup {
		t.Errorf("backups = %v, want [%s]", backups, backup)
	}
}

func TestRotateSameDayOverwritesBackup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	production := filepath.Join(root, "prod")
	writeTree(t, staging, map[string]string{"bin/svc": "v2"})
	writeTree(t, production, map[string]string{"bin/svc": "v1"})
	rotator := testRotator()

	if err := rotator.Rotate(staging, production, root, "20260825"); err != nil {
		t.Fatalf("first Rotate: %v", err)
	}

	// Second rotation the same day: the backup must end up holding v2
	// (the state production had just before this rotation), not v1.
	writeTree(t, staging, map[string]string{"bin/svc": "v3"})
	if err := rotator.Rotate(staging, production, root, "20260825"); err != nil {
		t.Fatalf("second Rotate: %v", err)
	}

	backup := filepath.Join(root, "prod_20260825")
	if got := readTreeFile(t, filepath.Join(backup, "bin", "svc")); got != "v2" {
		t.Errorf("same-day backup bin/svc = %q, want v2 (last rotation wins)", got)
	}
	if got := readTreeFile(t, filepath.Join(production, "bin", "svc")); got != "v3" {
		t.Errorf("production bin/svc = %q, want v3", got)
	}

	backups, err := ListBackups(root, "prod")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("backups = %v, want exactly one per date", backups)
	}
}

func TestRotateBackupFailureLeavesProductionIntact(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	production := filepath.Join(root, "prod")
	writeTree(t, staging, map[string]string{"bin/svc": "v2"})
	writeTree(t, production, map[string]string{"bin/svc": "v1"})

	// The backup root is a plain file, so moving production aside
	// fails without ever crossing a filesystem.
	backupRoot := filepath.Join(root, "backups")
	if err := os.WriteFile(backupRoot, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := testRotator().Rotate(staging, production, backupRoot, "20260825")
	var rotateErr *RotateError
	if !errors.As(err, &rotateErr) || rotateErr.Kind != BackupFailed {
		t.Fatalf("error = %v, want RotateError{BackupFailed}", err)
	}

	// Production is still the intact, startable old tree.
	if got := readTreeFile(t, filepath.Join(production, "bin", "svc")); got != "v1" {
		t.Errorf("production bin/svc = %q, want v1", got)
	}
}

func TestRotateMissingStaging(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	production := filepath.Join(root, "prod")
	writeTree(t, production, map[string]string{"bin/svc": "v1"})

	err := testRotator().Rotate(filepath.Join(root, "staging"), production, root, "20260825")
	var rotateErr *RotateError
	if !errors.As(err, &rotateErr) || rotateErr.Kind != StagingMissing {
		t.Fatalf("error = %v, want RotateError{StagingMissing}", err)
	}

	// Production is untouched.
	if got := readTreeFile(t, filepath.Join(production, "bin", "svc")); got != "v1" {
		t.Errorf("production bin/svc = %q, want v1", got)
	}
}

func TestRotateMissingProduction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	writeTree(t, staging, map[string]string{"bin/svc": "v2"})

	err := testRotator().Rotate(staging, filepath.Join(root, "prod"), root, "20260825")
	var rotateErr *RotateError
	if !errors.As(err, &rotateErr) || rotateErr.Kind != ProductionMissing {
		t.Fatalf("error = %v, want RotateError{ProductionMissing}", err)
	}
}

func TestRotatePreservesModesAndSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	production := filepath.Join(root, "prod")
	writeTree(t, staging, map[string]string{"bin/svc": "v2"})
	writeTree(t, production, map[string]string{"bin/svc": "v1"})

	if err := os.Chmod(filepath.Join(staging, "bin", "svc"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.Symlink("bin/svc", filepath.Join(staging, "current")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if err := testRotator().Rotate(staging, production, root, "20260825"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	info, err := os.Stat(filepath.Join(production, "bin", "svc"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("promoted binary mode = %v, want 0755", info.Mode().Perm())
	}

	target, err := os.Readlink(filepath.Join(production, "current"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != "bin/svc" {
		t.Errorf("symlink target = %q, want bin/svc", target)
	}
}

func TestRotatePreservesUmaskMaskedModes(t *testing.T) {
	// Not parallel: the umask is process-wide.
	oldMask := syscall.Umask(0o022)
	defer syscall.Umask(oldMask)

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	production := filepath.Join(root, "prod")
	writeTree(t, staging, map[string]string{"conf/app.yaml": "port: 80"})
	writeTree(t, production, map[string]string{"bin/svc": "v1"})

	// Group-writable modes are exactly what a 022 umask masks.
	if err := os.Chmod(filepath.Join(staging, "conf", "app.yaml"), 0o664); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.Chmod(filepath.Join(staging, "conf"), 0o775); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if err := testRotator().Rotate(staging, production, root, "20260825"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	info, err := os.Stat(filepath.Join(production, "conf", "app.yaml"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o664 {
		t.Errorf("promoted file mode = %v, want 0664", info.Mode().Perm())
	}
	dirInfo, err := os.Stat(filepath.Join(production, "conf"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if dirInfo.Mode().Perm() != 0o775 {
		t.Errorf("promoted dir mode = %v, want 0775", dirInfo.Mode().Perm())
	}

	// The copy must digest-match its source, which is exactly what the
	// cross-filesystem fallback checks before deleting the original.
	stagingDigest, err := digest.Tree(staging)
	if err != nil {
		t.Fatalf("digest staging: %v", err)
	}
	productionDigest, err := digest.Tree(production)
	if err != nil {
		t.Fatalf("digest production: %v", err)
	}
	if stagingDigest != productionDigest {
		t.Errorf("promoted tree digest %s != staging digest %s",
			productionDigest, stagingDigest)
	}
}

func TestRollbackRepromotesNewestBackup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	production := filepath.Join(root, "prod")
	writeTree(t, filepath.Join(root, "prod_20260820"), map[string]string{"bin/svc": "old"})
	writeTree(t, filepath.Join(root, "prod_20260825"), map[string]string{"bin/svc": "newer"})
	// Partial production directory left by a failed rotation.
	writeTree(t, production, map[string]string{"bin/partial": "junk"})

	if err := testRotator().Rollback(production, root); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if got := readTreeFile(t, filepath.Join(production, "bin", "svc")); got != "newer" {
		t.Errorf("production bin/svc = %q, want content of newest backup", got)
	}
	if _, err := os.Stat(filepath.Join(production, "bin", "partial")); !os.IsNotExist(err) {
		t.Error("partial production content survived rollback")
	}
	// The consumed backup is gone; the older one remains.
	if _, err := os.Stat(filepath.Join(root, "prod_20260825")); !os.IsNotExist(err) {
		t.Error("newest backup still present after re-promotion")
	}
	if _, err := os.Stat(filepath.Join(root, "prod_20260820")); err != nil {
		t.Errorf("older backup disturbed: %v", err)
	}
}

func TestRollbackWithoutBackups(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := testRotator().Rollback(filepath.Join(root, "prod"), root); err == nil {
		t.Fatal("Rollback with no backups succeeded")
	}
}

func TestListBackupsIgnoresForeignEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{
		"prod_20260820", "prod_20260825", // dated backups
		"prod",           // live production
		"prod_backup",    // not a date stamp
		"prod_2026082",   // too short
		"other_20260825", // different base name
	} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	// A plain file with a matching name must not be listed.
	if err := os.WriteFile(filepath.Join(root, "prod_20260821"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	backups, err := ListBackups(root, "prod")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	want := []string{
		filepath.Join(root, "prod_20260820"),
		filepath.Join(root, "prod_20260825"),
	}
	if len(backups) != len(want) || backups[0] != want[0] || backups[1] != want[1] {
		t.Errorf("backups = %v, want %v", backups, want)
	}
}
