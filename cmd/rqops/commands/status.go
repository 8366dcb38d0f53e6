// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/deploy"
	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/lib/git"
	"github.com/gyantal/RqCore/lib/tmux"
)

func statusCommand() *cli.Command {
	var flags commonFlags
	var sync bool

	return &cli.Command{
		Name:    "status",
		Summary: "report staged vs production revisions and session state",
		Description: "status is a read-only report: the staged and production revision\n" +
			"identifiers, whether a deploy would promote, the service session's\n" +
			"state, and the most recent ledger entry. Nothing is modified unless\n" +
			"--sync pulls the staging tree first.",
		Usage: "rqops status [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("status", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			set.BoolVar(&sync, "sync", false, "pull the staging tree before comparing")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("status")
			ctx := context.Background()

			staging := git.NewRepository(cfg.Deploy.Staging)
			production := git.NewRepository(cfg.Deploy.Production)

			if sync {
				if _, err := staging.Pull(ctx); err != nil {
					return fmt.Errorf("pulling staging tree: %w", err)
				}
			}

			stagedID, err := staging.Head(ctx)
			if err != nil {
				return fmt.Errorf("reading staged revision: %w", err)
			}
			productionID, err := production.Head(ctx)
			if err != nil {
				return fmt.Errorf("reading production revision (is %s deployed?): %w",
					cfg.Deploy.Production, err)
			}

			server := tmux.NewServer(cfg.Deploy.TmuxSocket, "")
			readyTimeout, _ := cfg.ReadyTimeout()
			readyPoll, _ := cfg.ReadyPoll()
			supervisor := deploy.NewSessionSupervisor(server, cfg.Deploy.Session,
				clock.Real(), readyTimeout, readyPoll, logger)
			sessionState, err := supervisor.Find()
			if err != nil {
				return fmt.Errorf("inspecting session: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(w, "staged:\t%s\n", stagedID)
			fmt.Fprintf(w, "production:\t%s\n", productionID)
			fmt.Fprintf(w, "changed:\t%t\n", stagedID != productionID)
			fmt.Fprintf(w, "session:\t%s (%s)\n", cfg.Deploy.Session, sessionState)

			if ledger, err := deploy.OpenLedger(cfg.Deploy.Ledger, logger); err == nil {
				defer ledger.Close()
				if records, err := ledger.Recent(ctx, 1); err == nil && len(records) > 0 {
					last := records[0]
					fmt.Fprintf(w, "last run:\t%s %s (phase %s)\n",
						last.StartedAt.Local().Format(time.RFC3339), last.Outcome, last.Phase)
					if last.Error != "" {
						fmt.Fprintf(w, "last error:\t%s\n", last.Error)
					}
				}
			}
			return w.Flush()
		},
	}
}
