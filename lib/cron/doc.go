// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses standard 5-field cron expressions and computes
// the next matching time. The schedule package uses it to decide when
// the deploy pipeline and the DNS/certificate reconciliation jobs fire
// in long-running schedule mode.
//
// Only the classic field syntax is supported: numbers, ranges, steps,
// wildcards, and comma-separated lists. No @daily shorthands, no
// seconds field, no names for months or weekdays.
package cron
