// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Command rqops operates the RqCore deployment: revision-diff deploys
// with atomic promotion and dated backups, DNS and certificate
// reconciliation jobs, and an in-process scheduler tying them together.
package main

import (
	"fmt"
	"os"

	"github.com/gyantal/RqCore/cmd/rqops/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		// Commands that already wrote their own output return an
		// ExitError with the desired code; no redundant "error:" line.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
