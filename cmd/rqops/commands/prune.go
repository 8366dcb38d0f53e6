// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/deploy"
)

func pruneCommand() *cli.Command {
	var flags commonFlags
	var retain int
	var archive bool

	return &cli.Command{
		Name:    "prune",
		Summary: "remove dated backups beyond the retention count",
		Description: "prune removes the oldest dated backups of the production directory,\n" +
			"keeping the configured retention count. With --archive each pruned\n" +
			"backup is packed into <name>.tar.zst beside the deployment root\n" +
			"before removal.",
		Usage: "rqops prune [flags]",
		Examples: []cli.Example{
			{Description: "keep the 5 newest backups, archiving the rest", Command: "rqops prune --retain 5 --archive"},
		},
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("prune", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			set.IntVar(&retain, "retain", 0, "backups to keep (default from configuration)")
			set.BoolVar(&archive, "archive", false, "archive pruned backups to .tar.zst")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("prune")

			if retain == 0 {
				retain = cfg.Deploy.RetainBackups
			}

			removed, err := deploy.Prune(
				cfg.Deploy.BackupRoot,
				filepath.Base(cfg.Deploy.Production),
				deploy.PruneOptions{Retain: retain, Archive: archive},
				logger,
			)
			if err != nil {
				return err
			}
			logger.Info("prune finished", "removed", len(removed))
			return nil
		},
	}
}
