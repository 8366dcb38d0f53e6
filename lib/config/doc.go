// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for rqops.
//
// Configuration resolves in this order:
//   - an explicit --config path (LoadFile)
//   - the RQOPS_CONFIG environment variable (Load)
//   - built-in defaults rooted at ${HOME}/RQ (Load, with no variable
//     set)
//
// The defaults are a complete, working configuration — `rqops deploy`
// with no flags and no file deploys the standard layout. A config file
// overrides only the fields it names; everything else keeps its
// default. Path fields support ${VAR} and ${VAR:-default} expansion,
// with RQ_ROOT bound to the configured root.
package config
