// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyantal/RqCore/lib/git"
)

// RevisionDiff is the result of comparing the staged and production
// revision identifiers. Identifiers are opaque strings compared with
// case-sensitive equality; they are read fresh on every run, never
// cached.
type RevisionDiff struct {
	StagedID     string
	ProductionID string
	Changed      bool
}

// RevisionTracker synchronizes the staging tree with its upstream and
// decides whether it differs from production. It mutates only the
// staging tree; the production tree's HEAD is read without touching
// it.
type RevisionTracker struct {
	staging    *git.Repository
	production *git.Repository
	logger     *slog.Logger
}

// NewRevisionTracker returns a tracker over the two working trees.
func NewRevisionTracker(stagingDir, productionDir string, logger *slog.Logger) *RevisionTracker {
	return &RevisionTracker{
		staging:    git.NewRepository(stagingDir),
		production: git.NewRepository(productionDir),
		logger:     logger,
	}
}

// SyncAndCompare pulls the staging tree and compares its HEAD with
// production's. A dirty staging tree or a failed pull produces a
// *SyncError; a missing or unreadable production tree is a plain
// error, since production is a bootstrap responsibility and not
// something the tracker repairs.
func (t *RevisionTracker) SyncAndCompare(ctx context.Context) (RevisionDiff, error) {
	dirty, err := t.staging.IsDirty(ctx)
	if err != nil {
		return RevisionDiff{}, &SyncError{Err: err}
	}
	if dirty {
		return RevisionDiff{}, &SyncError{
			Err: fmt.Errorf("staging tree %s has uncommitted changes", t.staging.Dir()),
		}
	}

	output, err := t.staging.Pull(ctx)
	if err != nil {
		return RevisionDiff{}, &SyncError{Output: output, Err: err}
	}
	t.logger.Info("staging tree synchronized", "output", output)

	stagedID, err := t.staging.Head(ctx)
	if err != nil {
		return RevisionDiff{}, &SyncError{Err: err}
	}

	productionID, err := t.production.Head(ctx)
	if err != nil {
		return RevisionDiff{}, fmt.Errorf("reading production revision (is %s deployed?): %w",
			t.production.Dir(), err)
	}

	diff := RevisionDiff{
		StagedID:     stagedID,
		ProductionID: productionID,
		Changed:      stagedID != productionID,
	}
	t.logger.Info("revision comparison",
		"staged", diff.StagedID,
		"production", diff.ProductionID,
		"changed", diff.Changed,
	)
	return diff, nil
}
