// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package deploy implements the continuous-deployment pipeline for the
// RqCore service: detect a staged revision that differs from
// production, build it, stop the running instance, rotate the
// production directory aside as a dated backup, promote the staged
// tree, and restart the service inside a persistent tmux session.
//
// The Orchestrator sequences four collaborators, each blocking until
// its external tool completes:
//
//	RevisionTracker   git pull the staging tree, compare HEADs
//	BuildRunner       run the build (and optional test) argv
//	SessionSupervisor find/terminate/create the service session
//	Rotator           backup-then-promote directory rotation
//
// A run is strictly sequential and protected by an exclusive flock
// lease, so overlapping scheduled invocations fail fast instead of
// racing through the same directories. Every run — no-op, success, or
// abort — is recorded in the SQLite ledger.
//
// Failure policy: every error aborts the run where it is detected. A
// build or test failure is safe — nothing has been torn down and the
// running instance keeps serving. A failure after the old session is
// terminated leaves the service down; for rotation and start failures
// the orchestrator attempts to re-promote the newest dated backup and
// restart from it before surfacing the abort.
package deploy
