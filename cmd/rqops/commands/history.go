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
)

func historyCommand() *cli.Command {
	var flags commonFlags
	var limit int

	return &cli.Command{
		Name:    "history",
		Summary: "list recent deployment runs from the ledger",
		Usage:   "rqops history [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("history", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "configuration file path")
			set.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
			set.IntVarP(&limit, "limit", "n", 20, "number of runs to show")
			return set
		},
		Run: func(args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := flags.logger("history")

			ledger, err := deploy.OpenLedger(cfg.Deploy.Ledger, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			records, err := ledger.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tOUTCOME\tPHASE\tSTAGED\tPRODUCTION\tROLLBACK\tERROR")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					record.StartedAt.Local().Format(time.RFC3339),
					record.Outcome,
					record.Phase,
					shortID(record.StagedID),
					shortID(record.ProductionID),
					yesNo(record.RolledBack),
					truncate(record.Error, 60),
				)
			}
			return w.Flush()
		},
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	if id == "" {
		return "-"
	}
	return id
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	// Count and cut in runes so a multibyte character in the error
	// text is never split.
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
