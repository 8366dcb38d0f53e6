// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the deployment
// pipeline. The revision tracker uses it to synchronize the staging
// tree with its upstream and to read the revision identifiers that
// decide whether a deploy is needed. All commands target a specific
// working tree via the -C flag, which every Repository method injects
// automatically — there is no default repository.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in the error on
// failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Pull fast-forwards the working tree from its upstream. Returns the
// combined stdout and stderr output because git writes fetch progress
// to stderr. --ff-only ensures a diverged tree fails loudly instead of
// creating a merge commit in the staging copy.
func (r *Repository) Pull(ctx context.Context) (string, error) {
	var combined bytes.Buffer
	command := exec.CommandContext(ctx, "git", "-C", r.dir, "pull", "--ff-only")
	command.Stdout = &combined
	command.Stderr = &combined

	if err := command.Run(); err != nil {
		return strings.TrimSpace(combined.String()), fmt.Errorf("git pull --ff-only in %s: %w (%s)",
			r.dir, err, strings.TrimSpace(combined.String()))
	}
	return strings.TrimSpace(combined.String()), nil
}

// Head returns the full commit hash of the working tree's HEAD.
func (r *Repository) Head(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// IsDirty reports whether the working tree has uncommitted changes,
// including untracked files. A dirty staging tree means a pull could
// conflict, so the tracker refuses to sync it.
func (r *Repository) IsDirty(ctx context.Context) (bool, error) {
	output, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, and Stderr before
// starting the process. The -C flag targeting this repository is
// automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}
