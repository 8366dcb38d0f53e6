// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"
)

// UpdaterOptions wires an Updater.
type UpdaterOptions struct {
	// ProbeURL returns the caller's public IP as a plain-text body.
	ProbeURL string

	// APIBase is the DNS provider's API root, without a trailing slash.
	APIBase string

	// TokenFile holds the provider bearer token. Group/other access on
	// the file is rejected.
	TokenFile string

	// DomainsFile is the JSONC domain table.
	DomainsFile string

	// HTTPClient is optional; nil uses a client with a 30s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Updater reconciles the configured A records with the current WAN IP.
type Updater struct {
	options UpdaterOptions
	client  *http.Client
	logger  *slog.Logger
}

// NewUpdater returns an Updater over the given provider configuration.
func NewUpdater(options UpdaterOptions) *Updater {
	client := options.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Updater{options: options, client: client, logger: logger}
}

// CurrentWANIP probes the public address endpoint and returns the
// host's WAN IP. The body must be a single IP address, surrounding
// whitespace tolerated.
func (u *Updater) CurrentWANIP(ctx context.Context) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u.options.ProbeURL, nil)
	if err != nil {
		return "", fmt.Errorf("building probe request: %w", err)
	}

	response, err := u.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("probing WAN IP: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("probing WAN IP: %s returned %s", u.options.ProbeURL, response.Status)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, 256))
	if err != nil {
		return "", fmt.Errorf("reading probe response: %w", err)
	}

	address := strings.TrimSpace(string(body))
	if _, err := netip.ParseAddr(address); err != nil {
		return "", fmt.Errorf("probe returned %q, not an IP address: %w", address, err)
	}
	return address, nil
}

// Sync probes the WAN IP and reconciles every configured domain against
// it. Each domain is attempted regardless of earlier failures; the
// returned error joins the per-domain failures, so a nil return means
// every record now matches the probed address.
func (u *Updater) Sync(ctx context.Context) error {
	domains, err := LoadDomains(u.options.DomainsFile)
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		u.logger.Info("no domains configured, nothing to reconcile")
		return nil
	}

	token, err := loadToken(u.options.TokenFile)
	if err != nil {
		return err
	}

	wanIP, err := u.CurrentWANIP(ctx)
	if err != nil {
		return err
	}
	u.logger.Info("current WAN IP probed", "ip", wanIP)

	var errs []error
	for _, domain := range domains {
		if err := u.syncDomain(ctx, domain, token, wanIP); err != nil {
			u.logger.Error("domain reconciliation failed", "domain", domain.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", domain.Name, err))
		}
	}
	return errors.Join(errs...)
}

// record is the provider's A-record representation, the fields carried
// through a read-modify-write.
type record struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// apiEnvelope is the provider's response wrapper.
type apiEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result record `json:"result"`
}

// syncDomain reads the record and writes it back only when its content
// differs from the probed address.
func (u *Updater) syncDomain(ctx context.Context, domain Domain, token, wanIP string) error {
	current, err := u.readRecord(ctx, domain, token)
	if err != nil {
		return err
	}

	if current.Content == wanIP {
		u.logger.Info("record up to date", "domain", domain.Name, "ip", wanIP)
		return nil
	}

	updated := current
	updated.Content = wanIP
	if err := u.writeRecord(ctx, domain, token, updated); err != nil {
		return err
	}

	u.logger.Info("record updated",
		"domain", domain.Name,
		"previous", current.Content,
		"current", wanIP,
	)
	return nil
}

func (u *Updater) recordURL(domain Domain) string {
	return fmt.Sprintf("%s/zones/%s/dns_records/%s",
		strings.TrimSuffix(u.options.APIBase, "/"), domain.ZoneID, domain.RecordID)
}

func (u *Updater) readRecord(ctx context.Context, domain Domain, token string) (record, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u.recordURL(domain), nil)
	if err != nil {
		return record{}, fmt.Errorf("building record request: %w", err)
	}

	envelope, err := u.doAPI(request, token)
	if err != nil {
		return record{}, fmt.Errorf("reading record: %w", err)
	}
	return envelope.Result, nil
}

func (u *Updater) writeRecord(ctx context.Context, domain Domain, token string, updated record) error {
	body, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPut, u.recordURL(domain), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building update request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	if _, err := u.doAPI(request, token); err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	return nil
}

// doAPI executes a provider API request and decodes the envelope,
// folding HTTP- and envelope-level failures into one error.
func (u *Updater) doAPI(request *http.Request, token string) (*apiEnvelope, error) {
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := u.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned %s: %s", response.Status, strings.TrimSpace(string(body)))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !envelope.Success {
		if len(envelope.Errors) > 0 {
			return nil, fmt.Errorf("provider error %d: %s",
				envelope.Errors[0].Code, envelope.Errors[0].Message)
		}
		return nil, fmt.Errorf("provider reported failure")
	}
	return &envelope, nil
}

// loadToken reads the bearer token file, rejecting tokens readable by
// group or other.
func loadToken(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", path, err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return "", fmt.Errorf("token file %s has mode %04o; tighten to 0600", path, mode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", path, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}
