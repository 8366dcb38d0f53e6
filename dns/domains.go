// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package dns

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Domain is one managed A record: the public name plus the provider
// identifiers needed to address it through the API.
type Domain struct {
	Name     string `json:"name"`
	ZoneID   string `json:"zone_id"`
	RecordID string `json:"record_id"`
}

// LoadDomains reads the domain table. The file is JSONC — JSON with
// comments — so operators can annotate entries in place:
//
//	[
//	  // primary site
//	  {"name": "example.com", "zone_id": "...", "record_id": "..."},
//	]
func LoadDomains(path string) ([]Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading domain table %s: %w", path, err)
	}

	var domains []Domain
	if err := json.Unmarshal(jsonc.ToJSON(data), &domains); err != nil {
		return nil, fmt.Errorf("parsing domain table %s: %w", path, err)
	}

	for i, domain := range domains {
		if domain.Name == "" || domain.ZoneID == "" || domain.RecordID == "" {
			return nil, fmt.Errorf("domain table %s: entry %d is missing name, zone_id, or record_id", path, i)
		}
	}
	return domains, nil
}
