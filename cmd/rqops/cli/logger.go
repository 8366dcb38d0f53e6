// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger builds the logger every rqops command runs with. On a
// terminal it emits human-readable text; when stderr is redirected
// (cron, the scheduler's unit file, CI) it emits JSON lines so the
// deployment narrative stays machine-parseable.
//
// Commands scope it with With():
//
//	logger := cli.NewLogger(verbose).With("command", "deploy")
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
