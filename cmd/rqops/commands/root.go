// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the rqops command tree.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/lib/config"
)

// Root returns the rqops command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "rqops",
		Summary: "RqCore deployment operations",
		Description: "rqops deploys the RqCore service: it synchronizes the staging tree,\n" +
			"builds it, and promotes it to production with a dated backup of the\n" +
			"previous state, restarting the service under its reserved tmux\n" +
			"session. DNS and certificate reconciliation run as separate\n" +
			"subcommands, and schedule mode drives all of it in-process.",
		Subcommands: []*cli.Command{
			deployCommand(),
			statusCommand(),
			historyCommand(),
			pruneCommand(),
			scheduleCommand(),
			dnsCommand(),
			certCommand(),
			versionCommand(),
		},
	}
}

// commonFlags is the --config/--verbose pair every operational command
// carries.
type commonFlags struct {
	configPath string
	verbose    bool
}

// loadConfig resolves the configuration: the explicit --config path
// when given, otherwise RQOPS_CONFIG or the built-in defaults.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logger builds the command logger scoped with the command name.
func (f *commonFlags) logger(command string) *slog.Logger {
	return cli.NewLogger(f.verbose).With("command", command)
}
