// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package cert

import (
	"bufio"
	"fmt"
	"strings"
	"time"
)

// Certificate is one entry of the CA CLI's inventory.
type Certificate struct {
	Name   string
	Expiry time.Time
}

// DaysLeft returns whole days until expiry at the given instant,
// rounding down. Already-expired certificates report negative days.
func (c Certificate) DaysLeft(now time.Time) int {
	hours := c.Expiry.Sub(now).Hours()
	if hours < 0 {
		return -int(-hours / 24)
	}
	return int(hours / 24)
}

// expiryLayout matches certbot's "Expiry Date:" timestamp, e.g.
// 2026-10-01 12:00:00+00:00.
const expiryLayout = "2006-01-02 15:04:05-07:00"

// ParseInventory parses the CA CLI's status output (`certbot
// certificates` shape) into per-name certificates:
//
//	Found the following certs:
//	  Certificate Name: example.com
//	    Domains: example.com www.example.com
//	    Expiry Date: 2026-10-01 12:00:00+00:00 (VALID: 37 days)
//
// Only the name and expiry lines are consumed; everything else is
// ignored. A name line without a following expiry line is an error, as
// is an expiry line before any name.
func ParseInventory(output string) ([]Certificate, error) {
	var certificates []Certificate
	var pending string // name awaiting its expiry line

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if name, ok := strings.CutPrefix(line, "Certificate Name:"); ok {
			if pending != "" {
				return nil, fmt.Errorf("certificate %q has no expiry date", pending)
			}
			pending = strings.TrimSpace(name)
			if pending == "" {
				return nil, fmt.Errorf("empty certificate name in inventory")
			}
			continue
		}

		if value, ok := strings.CutPrefix(line, "Expiry Date:"); ok {
			if pending == "" {
				return nil, fmt.Errorf("expiry date before any certificate name")
			}

			// Strip the trailing validity annotation.
			value = strings.TrimSpace(value)
			if i := strings.Index(value, " ("); i >= 0 {
				value = value[:i]
			}

			expiry, err := time.Parse(expiryLayout, value)
			if err != nil {
				return nil, fmt.Errorf("certificate %q: parsing expiry %q: %w", pending, value, err)
			}

			certificates = append(certificates, Certificate{Name: pending, Expiry: expiry})
			pending = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning inventory: %w", err)
	}
	if pending != "" {
		return nil, fmt.Errorf("certificate %q has no expiry date", pending)
	}
	return certificates, nil
}
