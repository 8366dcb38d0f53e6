// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-tree framework for rqops: nested
// subcommands with lazily built pflag flag sets, tabwriter help output,
// and edit-distance suggestions for mistyped commands and flags.
package cli
