// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cert"
	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/lib/config"
)

func certCommand() *cli.Command {
	return &cli.Command{
		Name:    "cert",
		Summary: "TLS certificate renewal",
		Subcommands: []*cli.Command{
			certRenewCommand(),
		},
	}
}

func certRenewCommand() *cli.Command {
	var flags commonFlags

	return &cli.Command{
		Name:    "renew",
		Summary: "renew certificates at or below the expiry threshold",
		Description: "renew reads the CA CLI's certificate inventory, checks each\n" +
			"certificate's own expiry date, renews the ones at or below the\n" +
			"threshold, and installs the renewed key and chain for the service\n" +
			"with permissions tightened to 0600. Certificates are independent;\n" +
			"the exit status is non-zero if any renewal failed.",
		Usage: "rqops cert renew [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("renew", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("cert renew")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := newRenewer(cfg, logger).Renew(ctx); err != nil {
				logger.Error("certificate renewal failed", "error", err)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func newRenewer(cfg *config.Config, logger *slog.Logger) *cert.Renewer {
	return cert.NewRenewer(cert.RenewerOptions{
		StatusCommand: cfg.Cert.StatusCommand,
		RenewCommand:  cfg.Cert.RenewCommand,
		ThresholdDays: cfg.Cert.ThresholdDays,
		LiveDir:       cfg.Cert.LiveDir,
		InstallDir:    cfg.Cert.InstallDir,
		Clock:         clock.Real(),
		Logger:        logger,
	})
}
