// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// BuildRunner invokes the configured build argv against a deployment
// tree, and optionally a test argv gating promotion. The original
// pipeline disables the test phase by policy (empty testCommand), but
// the gate stays wired so enabling it is a config change, not a code
// change.
type BuildRunner struct {
	buildCommand []string
	testCommand  []string
	buildDir     string // relative to the tree root
	logger       *slog.Logger
}

// NewBuildRunner returns a runner for the given argvs. buildDir is the
// directory the commands run in, relative to the tree root passed to
// Build.
func NewBuildRunner(buildCommand, testCommand []string, buildDir string, logger *slog.Logger) *BuildRunner {
	return &BuildRunner{
		buildCommand: buildCommand,
		testCommand:  testCommand,
		buildDir:     buildDir,
		logger:       logger,
	}
}

// Build runs the build command in the tree, then the test command when
// one is configured. A non-zero build exit produces a *BuildError and
// a non-zero test exit a *TestError, both carrying the captured
// combined output. No timeout is imposed beyond ctx.
func (b *BuildRunner) Build(ctx context.Context, treeRoot string) error {
	output, err := b.runCommand(ctx, treeRoot, b.buildCommand)
	if err != nil {
		return &BuildError{Output: output, Err: err}
	}
	b.logger.Info("build succeeded", "command", strings.Join(b.buildCommand, " "))

	if len(b.testCommand) == 0 {
		return nil
	}

	output, err = b.runCommand(ctx, treeRoot, b.testCommand)
	if err != nil {
		return &TestError{Output: output, Err: err}
	}
	b.logger.Info("tests passed", "command", strings.Join(b.testCommand, " "))
	return nil
}

func (b *BuildRunner) runCommand(ctx context.Context, treeRoot string, argv []string) (string, error) {
	dir := filepath.Join(treeRoot, filepath.FromSlash(b.buildDir))

	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.Dir = dir
	output, err := command.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s in %s: %w", strings.Join(argv, " "), dir, err)
	}
	return string(output), nil
}
