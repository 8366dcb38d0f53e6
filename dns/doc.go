// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package dns reconciles provider A records with the host's current WAN
// address. The job is a pure reconciliation check: probe the public IP,
// read each configured record, and write only the records whose content
// differs. Domains are independent — one failing domain never blocks the
// rest, and the job reports failure only after every domain has been
// attempted.
package dns
