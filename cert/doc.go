// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package cert renews TLS certificates approaching expiry and installs
// the renewed material for the service. Expiry is tracked per
// certificate name — certificates on the same host renew independently,
// each against its own expiry date, and one failing certificate never
// blocks the rest.
package cert
