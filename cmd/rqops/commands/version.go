// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/gyantal/RqCore/cmd/rqops/cli"
	"github.com/gyantal/RqCore/lib/version"
)

func versionCommand() *cli.Command {
	var full bool

	return &cli.Command{
		Name:    "version",
		Summary: "print the rqops version",
		Usage:   "rqops version [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("version", pflag.ContinueOnError)
			set.BoolVar(&full, "full", false, "include Go runtime and platform")
			return set
		},
		Run: func(args []string) error {
			if full {
				fmt.Println(version.Full())
			} else {
				fmt.Println(version.Info())
			}
			return nil
		},
	}
}
