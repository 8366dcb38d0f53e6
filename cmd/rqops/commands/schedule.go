// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/schedule"
)

func scheduleCommand() *cli.Command {
	var flags commonFlags

	return &cli.Command{
		Name:    "schedule",
		Summary: "run the deploy, DNS, and cert jobs on their cron schedules",
		Description: "schedule runs in the foreground and triggers the configured jobs\n" +
			"in-process: the deploy pipeline, DNS reconciliation, and certificate\n" +
			"renewal, each on its own cron expression, plus a liveness heartbeat.\n" +
			"An empty cron expression disables that job. Triggered deploys take\n" +
			"the same run lease as `rqops deploy`, so an external cron entry and\n" +
			"schedule mode never run the pipeline concurrently.",
		Usage: "rqops schedule [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("schedule", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("schedule")

			if err := cfg.EnsurePaths(); err != nil {
				return err
			}

			var tasks []schedule.Task

			if cfg.Schedule.DeployCron != "" {
				task, err := schedule.NewCronTask("deploy", cfg.Schedule.DeployCron,
					func(ctx context.Context) error {
						// Fresh collaborators per run: the ledger handle
						// and tmux state must not go stale across days.
						orchestrator, cleanup, err := buildOrchestrator(cfg, logger, clock.Real())
						if err != nil {
							return err
						}
						defer cleanup()
						return orchestrator.Run(ctx)
					})
				if err != nil {
					return err
				}
				tasks = append(tasks, task)
			}

			if cfg.Schedule.DNSCron != "" {
				task, err := schedule.NewCronTask("dns-sync", cfg.Schedule.DNSCron,
					func(ctx context.Context) error {
						return newUpdater(cfg, logger).Sync(ctx)
					})
				if err != nil {
					return err
				}
				tasks = append(tasks, task)
			}

			if cfg.Schedule.CertCron != "" {
				task, err := schedule.NewCronTask("cert-renew", cfg.Schedule.CertCron,
					func(ctx context.Context) error {
						return newRenewer(cfg, logger).Renew(ctx)
					})
				if err != nil {
					return err
				}
				tasks = append(tasks, task)
			}

			heartbeatInterval, err := cfg.HeartbeatInterval()
			if err != nil {
				return err
			}
			heartbeat, err := schedule.NewIntervalTask("heartbeat", heartbeatInterval,
				func(ctx context.Context) error {
					logger.Info("heartbeat", "tasks", len(tasks))
					return nil
				})
			if err != nil {
				return err
			}
			tasks = append(tasks, heartbeat)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = schedule.NewScheduler(tasks, clock.Real(), logger).Run(ctx)
			if errors.Is(err, context.Canceled) {
				// Operator shutdown, not a failure.
				return nil
			}
			return err
		},
	}
}
