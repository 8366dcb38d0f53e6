// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package cert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gyantal/RqCore/lib/clock"
)

// RenewerOptions wires a Renewer.
type RenewerOptions struct {
	// StatusCommand prints the certificate inventory (`certbot
	// certificates` shape).
	StatusCommand []string

	// RenewCommand renews one certificate; "--cert-name <name>" is
	// appended per certificate.
	RenewCommand []string

	// ThresholdDays triggers renewal at or below this many days left.
	ThresholdDays int

	// LiveDir holds the CA CLI's current material, one subdirectory
	// per certificate name.
	LiveDir string

	// InstallDir is where renewed key/chain files are copied for the
	// service, one subdirectory per certificate name, files mode 0600.
	InstallDir string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Renewer checks every certificate's own expiry and renews the ones at
// or below the threshold.
type Renewer struct {
	options RenewerOptions
}

// NewRenewer returns a Renewer over the given CA CLI configuration.
func NewRenewer(options RenewerOptions) *Renewer {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Renewer{options: options}
}

// installedFiles is the material copied into the install directory
// after a renewal.
var installedFiles = []string{"privkey.pem", "fullchain.pem"}

// Renew queries the inventory and processes every certificate: the ones
// above the threshold are logged and skipped, the rest are renewed and
// installed. Certificates are independent — each is attempted regardless
// of earlier failures, and the returned error joins the per-certificate
// failures.
func (r *Renewer) Renew(ctx context.Context) error {
	certificates, err := r.inventory(ctx)
	if err != nil {
		return err
	}
	if len(certificates) == 0 {
		r.options.Logger.Info("no certificates in inventory")
		return nil
	}

	now := r.options.Clock.Now()
	var errs []error
	for _, certificate := range certificates {
		daysLeft := certificate.DaysLeft(now)
		logger := r.options.Logger.With("certificate", certificate.Name, "days_left", daysLeft)

		if daysLeft > r.options.ThresholdDays {
			logger.Info("certificate not due for renewal")
			continue
		}

		if err := r.renewOne(ctx, certificate.Name); err != nil {
			logger.Error("certificate renewal failed", "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", certificate.Name, err))
			continue
		}
		logger.Info("certificate renewed and installed")
	}
	return errors.Join(errs...)
}

// inventory runs the status command and parses its output.
func (r *Renewer) inventory(ctx context.Context) ([]Certificate, error) {
	argv := r.options.StatusCommand
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := command.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w\n%s", strings.Join(argv, " "), err, output)
	}
	return ParseInventory(string(output))
}

// renewOne renews a single certificate and installs its material.
func (r *Renewer) renewOne(ctx context.Context, name string) error {
	argv := append(append([]string{}, r.options.RenewCommand...), "--cert-name", name)
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := command.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w\n%s", strings.Join(argv, " "), err, output)
	}
	return r.install(name)
}

// install copies the certificate's live material into the install
// directory with permissions tightened to 0600. The live files are
// often symlinks into an archive directory; the copy resolves them.
func (r *Renewer) install(name string) error {
	sourceDir := filepath.Join(r.options.LiveDir, name)
	targetDir := filepath.Join(r.options.InstallDir, name)
	if err := os.MkdirAll(targetDir, 0o700); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}

	for _, file := range installedFiles {
		if err := copySecret(filepath.Join(sourceDir, file), filepath.Join(targetDir, file)); err != nil {
			return fmt.Errorf("installing %s: %w", file, err)
		}
	}
	return nil
}

// copySecret copies src to dst with mode 0600, truncating any previous
// content. An existing wider-mode destination is tightened.
func copySecret(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return err
	}
	// WriteFile's mode only applies on create.
	return os.Chmod(dst, 0o600)
}
