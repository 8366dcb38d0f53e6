// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"archive/tar"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	stamps := []string{"20260810", "20260815", "20260820", "20260825"}
	for _, stamp := range stamps {
		writeTree(t, filepath.Join(root, "prod_"+stamp), map[string]string{"bin/svc": stamp})
	}

	removed, err := Prune(root, "prod", PruneOptions{Retain: 2}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}

	want := []string{
		filepath.Join(root, "prod_20260810"),
		filepath.Join(root, "prod_20260815"),
	}
	if len(removed) != 2 || removed[0] != want[0] || removed[1] != want[1] {
		t.Errorf("removed = %v, want %v", removed, want)
	}

	remaining, err := ListBackups(root, "prod")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(remaining) != 2 ||
		remaining[0] != filepath.Join(root, "prod_20260820") ||
		remaining[1] != filepath.Join(root, "prod_20260825") {
		t.Errorf("remaining = %v, want the two newest", remaining)
	}
}

func TestPruneNothingToDo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, filepath.Join(root, "prod_20260825"), map[string]string{"bin/svc": "v1"})

	removed, err := Prune(root, "prod", PruneOptions{Retain: 14}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != nil {
		t.Errorf("removed = %v, want nil", removed)
	}
}

func TestPruneRejectsZeroRetention(t *testing.T) {
	t.Parallel()

	// Retain 0 would prune away the rollback source.
	if _, err := Prune(t.TempDir(), "prod", PruneOptions{Retain: 0}, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("Prune with Retain 0 succeeded")
	}
}

func TestPruneArchivesBeforeRemoval(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, filepath.Join(root, "prod_20260810"), map[string]string{
		"bin/svc":       "old binary",
		"conf/app.yaml": "port: 80",
	})
	writeTree(t, filepath.Join(root, "prod_20260825"), map[string]string{"bin/svc": "new"})

	removed, err := Prune(root, "prod", PruneOptions{Retain: 1, Archive: true},
		slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("removed = %v, want one entry", removed)
	}

	archivePath := filepath.Join(root, "prod_20260810.tar.zst")
	file, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()

	contents := map[string]string{}
	reader := tar.NewReader(decoder)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar entry: %v", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("tar read %s: %v", header.Name, err)
		}
		contents[header.Name] = string(data)
	}

	if contents["prod_20260810/bin/svc"] != "old binary" {
		t.Errorf("archive bin/svc = %q", contents["prod_20260810/bin/svc"])
	}
	if contents["prod_20260810/conf/app.yaml"] != "port: 80" {
		t.Errorf("archive conf/app.yaml = %q", contents["prod_20260810/conf/app.yaml"])
	}

	// No leftover temp file, and the pruned backup directory is gone.
	if _, err := os.Stat(archivePath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp archive left behind")
	}
	if _, err := os.Stat(filepath.Join(root, "prod_20260810")); !os.IsNotExist(err) {
		t.Error("pruned backup directory still present")
	}
}
