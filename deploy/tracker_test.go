// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// gitSetup runs a raw git command for test setup.
func gitSetup(t *testing.T, dir string, args ...string) string {
	t.Helper()

	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	command.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.local",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output))
}

// deployPair builds the full on-disk topology the tracker operates on:
// an upstream repository, a staging clone, and a production clone.
// Returns (upstream, staging, production).
func deployPair(t *testing.T) (string, string, string) {
	t.Helper()

	root := t.TempDir()
	upstream := filepath.Join(root, "upstream")
	staging := filepath.Join(root, "staging")
	production := filepath.Join(root, "prod")

	if err := os.Mkdir(upstream, 0o755); err != nil {
		t.Fatalf("mkdir upstream: %v", err)
	}
	gitSetup(t, upstream, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(upstream, "main.rs"), []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatalf("write main.rs: %v", err)
	}
	gitSetup(t, upstream, "add", "main.rs")
	gitSetup(t, upstream, "commit", "-m", "initial")

	for _, clone := range []string{staging, production} {
		command := exec.Command("git", "clone", upstream, clone)
		if output, err := command.CombinedOutput(); err != nil {
			t.Fatalf("git clone: %v\n%s", err, output)
		}
	}
	return upstream, staging, production
}

func newTestTracker(staging, production string) *RevisionTracker {
	return NewRevisionTracker(staging, production, slog.New(slog.DiscardHandler))
}

func TestSyncAndCompareUnchanged(t *testing.T) {
	t.Parallel()

	_, staging, production := deployPair(t)
	diff, err := newTestTracker(staging, production).SyncAndCompare(context.Background())
	if err != nil {
		t.Fatalf("SyncAndCompare: %v", err)
	}

	if diff.Changed {
		t.Errorf("diff = %+v, want unchanged", diff)
	}
	if diff.StagedID != diff.ProductionID || diff.StagedID == "" {
		t.Errorf("diff ids = %q/%q, want equal non-empty hashes", diff.StagedID, diff.ProductionID)
	}
}

func TestSyncAndCompareDetectsNewUpstreamCommit(t *testing.T) {
	t.Parallel()

	upstream, staging, production := deployPair(t)

	if err := os.WriteFile(filepath.Join(upstream, "main.rs"),
		[]byte("fn main() { println!(\"v2\"); }\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	gitSetup(t, upstream, "commit", "-am", "v2")
	newHead := gitSetup(t, upstream, "rev-parse", "HEAD")

	diff, err := newTestTracker(staging, production).SyncAndCompare(context.Background())
	if err != nil {
		t.Fatalf("SyncAndCompare: %v", err)
	}

	if !diff.Changed {
		t.Errorf("diff = %+v, want changed after upstream commit", diff)
	}
	// The pull advanced staging to the new upstream head; production
	// still holds the old one.
	if diff.StagedID != newHead {
		t.Errorf("StagedID = %q, want %q", diff.StagedID, newHead)
	}
	if diff.ProductionID == newHead {
		t.Error("production head advanced; the tracker must not touch production")
	}
}

func TestSyncAndCompareDirtyStaging(t *testing.T) {
	t.Parallel()

	_, staging, production := deployPair(t)
	if err := os.WriteFile(filepath.Join(staging, "scratch.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := newTestTracker(staging, production).SyncAndCompare(context.Background())
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("error = %v, want *SyncError for dirty staging", err)
	}
}

func TestSyncAndCompareMissingProduction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, staging, _ := deployPair(t)

	_, err := newTestTracker(staging, filepath.Join(root, "prod")).SyncAndCompare(context.Background())
	if err == nil {
		t.Fatal("SyncAndCompare with missing production succeeded")
	}
	// Missing production is a bootstrap problem, not a sync failure.
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		t.Errorf("error = %v, want a plain error, not *SyncError", err)
	}
	if !strings.Contains(err.Error(), "deployed") {
		t.Errorf("error %q should point at the missing deployment", err)
	}
}
