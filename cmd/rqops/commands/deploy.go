// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/deploy"
	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/lib/config"
	"github.com/gyantal/RqCore/lib/tmux"
)

func deployCommand() *cli.Command {
	var flags commonFlags

	return &cli.Command{
		Name:    "deploy",
		Summary: "run one deployment (sync, build, promote, restart)",
		Description: "deploy runs the pipeline once: pull the staging tree, compare its\n" +
			"revision with production, and when they differ build, stop the old\n" +
			"session, rotate production into a dated backup, promote staging, and\n" +
			"restart the service. Equal revisions are a logged no-op. The run\n" +
			"lease makes overlapping invocations fail fast.",
		Usage: "rqops deploy [flags]",
		Examples: []cli.Example{
			{Description: "zero-argument run with defaults rooted at ${HOME}/RQ", Command: "rqops deploy"},
			{Description: "typical crontab entry", Command: "30 5 * * * rqops deploy"},
		},
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("deploy")

			if err := cfg.EnsurePaths(); err != nil {
				return err
			}

			orchestrator, cleanup, err := buildOrchestrator(cfg, logger, clock.Real())
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := orchestrator.Run(ctx); err != nil {
				// The orchestrator already logged the abort in full.
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// buildOrchestrator wires the pipeline's collaborators from the
// configuration. The returned cleanup closes the ledger; a ledger that
// fails to open is logged and skipped — run recording is an audit
// trail, never a reason to refuse a deploy.
func buildOrchestrator(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*deploy.Orchestrator, func(), error) {
	readyTimeout, err := cfg.ReadyTimeout()
	if err != nil {
		return nil, nil, fmt.Errorf("ready_timeout: %w", err)
	}
	readyPoll, err := cfg.ReadyPoll()
	if err != nil {
		return nil, nil, fmt.Errorf("ready_poll: %w", err)
	}

	server := tmux.NewServer(cfg.Deploy.TmuxSocket, "")
	supervisor := deploy.NewSessionSupervisor(server, cfg.Deploy.Session,
		clk, readyTimeout, readyPoll, logger)

	cleanup := func() {}
	var recorder deploy.RunRecorder
	ledger, err := deploy.OpenLedger(cfg.Deploy.Ledger, logger)
	if err != nil {
		logger.Warn("ledger unavailable, runs will not be recorded", "error", err)
	} else {
		recorder = ledger
		cleanup = func() {
			if err := ledger.Close(); err != nil {
				logger.Warn("closing ledger", "error", err)
			}
		}
	}

	orchestrator := deploy.NewOrchestrator(deploy.OrchestratorOptions{
		Staging:    cfg.Deploy.Staging,
		Production: cfg.Deploy.Production,
		BackupRoot: cfg.Deploy.BackupRoot,
		Artifact:   cfg.Deploy.Artifact,
		LockPath:   cfg.Deploy.Lock,
		Tracker:    deploy.NewRevisionTracker(cfg.Deploy.Staging, cfg.Deploy.Production, logger),
		Builder:    deploy.NewBuildRunner(cfg.Deploy.BuildCommand, cfg.Deploy.TestCommand, cfg.Deploy.BuildDir, logger),
		Supervisor: supervisor,
		Rotator:    deploy.NewRotator(logger),
		Ledger:     recorder,
		Clock:      clk,
		Logger:     logger,
	})
	return orchestrator, cleanup, nil
}
