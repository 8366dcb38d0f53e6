// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package cert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gyantal/RqCore/lib/clock"
)

var renewerNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

// renewerSandbox fakes the CA CLI with shell scripts: the status script
// prints an inventory built from the given name→days-left map, and the
// renew script logs its arguments (failing for names listed in fail).
type renewerSandbox struct {
	dir            string
	invocationsLog string
	liveDir        string
	installDir     string
	statusScript   string
	renewScript    string
}

func newRenewerSandbox(t *testing.T, daysLeft map[string]int, fail ...string) *renewerSandbox {
	t.Helper()

	dir := t.TempDir()
	s := &renewerSandbox{
		dir:            dir,
		invocationsLog: filepath.Join(dir, "invocations.log"),
		liveDir:        filepath.Join(dir, "live"),
		installDir:     filepath.Join(dir, "install"),
		statusScript:   filepath.Join(dir, "status.sh"),
		renewScript:    filepath.Join(dir, "renew.sh"),
	}

	var inventory strings.Builder
	inventory.WriteString("Found the following certs:\n")
	// Deterministic order for assertions.
	names := make([]string, 0, len(daysLeft))
	for name := range daysLeft {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		expiry := renewerNow.AddDate(0, 0, daysLeft[name])
		fmt.Fprintf(&inventory, "  Certificate Name: %s\n", name)
		fmt.Fprintf(&inventory, "    Expiry Date: %s (VALID: %d days)\n",
			expiry.Format(expiryLayout), daysLeft[name])

		// Live material for every certificate.
		live := filepath.Join(s.liveDir, name)
		if err := os.MkdirAll(live, 0o755); err != nil {
			t.Fatalf("mkdir live: %v", err)
		}
		for _, file := range []string{"privkey.pem", "fullchain.pem"} {
			content := name + " " + file
			if err := os.WriteFile(filepath.Join(live, file), []byte(content), 0o644); err != nil {
				t.Fatalf("write live material: %v", err)
			}
		}
	}

	status := "#!/bin/sh\ncat <<'EOF'\n" + inventory.String() + "EOF\n"
	if err := os.WriteFile(s.statusScript, []byte(status), 0o755); err != nil {
		t.Fatalf("write status script: %v", err)
	}

	renew := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> %q\n", s.invocationsLog)
	for _, name := range fail {
		renew += fmt.Sprintf("if [ \"$2\" = %q ]; then exit 1; fi\n", name)
	}
	if err := os.WriteFile(s.renewScript, []byte(renew), 0o755); err != nil {
		t.Fatalf("write renew script: %v", err)
	}
	return s
}

func (s *renewerSandbox) renewer(thresholdDays int) *Renewer {
	return NewRenewer(RenewerOptions{
		StatusCommand: []string{"sh", s.statusScript},
		RenewCommand:  []string{"sh", s.renewScript},
		ThresholdDays: thresholdDays,
		LiveDir:       s.liveDir,
		InstallDir:    s.installDir,
		Clock:         clock.Fake(renewerNow),
		Logger:        slog.New(slog.DiscardHandler),
	})
}

func (s *renewerSandbox) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(s.invocationsLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read invocations: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRenewOnlyDueCertificates(t *testing.T) {
	t.Parallel()

	// Per-certificate thresholding: the 70-day certificate is left
	// alone while the 20-day one on the same host renews.
	sandbox := newRenewerSandbox(t, map[string]int{
		"example.com":     70,
		"api.example.com": 20,
	})

	if err := sandbox.renewer(35).Renew(context.Background()); err != nil {
		t.Fatalf("Renew: %v", err)
	}

	invocations := sandbox.invocations(t)
	if len(invocations) != 1 || invocations[0] != "--cert-name api.example.com" {
		t.Errorf("invocations = %v, want only the due certificate", invocations)
	}

	// Renewed material installed with tightened permissions.
	installed := filepath.Join(sandbox.installDir, "api.example.com", "privkey.pem")
	info, err := os.Stat(installed)
	if err != nil {
		t.Fatalf("installed key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("installed key mode = %v, want 0600", info.Mode().Perm())
	}
	data, err := os.ReadFile(installed)
	if err != nil {
		t.Fatalf("read installed key: %v", err)
	}
	if string(data) != "api.example.com privkey.pem" {
		t.Errorf("installed key content = %q", data)
	}

	// The healthy certificate was not installed.
	if _, err := os.Stat(filepath.Join(sandbox.installDir, "example.com")); !os.IsNotExist(err) {
		t.Error("not-due certificate was installed")
	}
}

func TestRenewAtThresholdBoundary(t *testing.T) {
	t.Parallel()

	// At exactly the threshold the certificate renews; one day above
	// it does not.
	sandbox := newRenewerSandbox(t, map[string]int{
		"at.example.com":    35,
		"above.example.com": 36,
	})

	if err := sandbox.renewer(35).Renew(context.Background()); err != nil {
		t.Fatalf("Renew: %v", err)
	}

	invocations := sandbox.invocations(t)
	if len(invocations) != 1 || invocations[0] != "--cert-name at.example.com" {
		t.Errorf("invocations = %v, want only the at-threshold certificate", invocations)
	}
}

func TestRenewFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	sandbox := newRenewerSandbox(t, map[string]int{
		"broken.example.com": 10,
		"ok.example.com":     10,
	}, "broken.example.com")

	err := sandbox.renewer(35).Renew(context.Background())
	if err == nil {
		t.Fatal("Renew with a failing certificate succeeded")
	}
	if !strings.Contains(err.Error(), "broken.example.com") {
		t.Errorf("error %q does not name the failing certificate", err)
	}

	// The healthy certificate was still renewed and installed.
	if _, err := os.Stat(filepath.Join(sandbox.installDir, "ok.example.com", "fullchain.pem")); err != nil {
		t.Errorf("healthy certificate not installed: %v", err)
	}
}

func TestRenewInstallTightensExistingFile(t *testing.T) {
	t.Parallel()

	sandbox := newRenewerSandbox(t, map[string]int{"api.example.com": 10})

	// Pre-existing wide-open installed key from an earlier run.
	target := filepath.Join(sandbox.installDir, "api.example.com")
	if err := os.MkdirAll(target, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stale := filepath.Join(target, "privkey.pem")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := sandbox.renewer(35).Renew(context.Background()); err != nil {
		t.Fatalf("Renew: %v", err)
	}

	info, err := os.Stat(stale)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want tightened to 0600", info.Mode().Perm())
	}
	data, _ := os.ReadFile(stale)
	if string(data) != "api.example.com privkey.pem" {
		t.Errorf("content = %q, want refreshed material", data)
	}
}
