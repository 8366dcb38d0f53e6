// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/dns"
	"github.com/gyantal/RqCore/lib/config"
)

func dnsCommand() *cli.Command {
	return &cli.Command{
		Name:    "dns",
		Summary: "DNS record reconciliation",
		Subcommands: []*cli.Command{
			dnsSyncCommand(),
		},
	}
}

func dnsSyncCommand() *cli.Command {
	var flags commonFlags

	return &cli.Command{
		Name:    "sync",
		Summary: "point the configured A records at the current WAN IP",
		Description: "sync probes the host's public IP and reconciles every domain in the\n" +
			"domain table against it: records that already match are left alone,\n" +
			"the rest are updated through the provider API. Domains are\n" +
			"independent; the exit status is non-zero if any domain failed.",
		Usage: "rqops dns sync [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("dns sync")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := newUpdater(cfg, logger).Sync(ctx); err != nil {
				logger.Error("DNS reconciliation failed", "error", err)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func newUpdater(cfg *config.Config, logger *slog.Logger) *dns.Updater {
	return dns.NewUpdater(dns.UpdaterOptions{
		ProbeURL:    cfg.DNS.ProbeURL,
		APIBase:     cfg.DNS.APIBase,
		TokenFile:   cfg.DNS.TokenFile,
		DomainsFile: cfg.DNS.DomainsFile,
		Logger:      logger,
	})
}
