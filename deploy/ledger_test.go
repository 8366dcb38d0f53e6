// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "deploy.db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestLedgerRecordRoundtrip(t *testing.T) {
	t.Parallel()

	ledger := openTestLedger(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 25, 5, 30, 0, 0, time.UTC)
	record := RunRecord{
		StartedAt:      started,
		FinishedAt:     started.Add(90 * time.Second),
		Phase:          "done",
		StagedID:       "a1b2c3",
		ProductionID:   "d4e5f6",
		ArtifactDigest: "deadbeef",
		Outcome:        OutcomeSuccess,
	}
	if err := ledger.Record(ctx, record); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := ledger.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent returned %d records, want 1", len(records))
	}

	got := records[0]
	if got.ID == 0 {
		t.Error("record ID not assigned")
	}
	if !got.StartedAt.Equal(record.StartedAt) || !got.FinishedAt.Equal(record.FinishedAt) {
		t.Errorf("timestamps = %v/%v, want %v/%v",
			got.StartedAt, got.FinishedAt, record.StartedAt, record.FinishedAt)
	}
	if got.Phase != "done" || got.StagedID != "a1b2c3" || got.ProductionID != "d4e5f6" {
		t.Errorf("record = %+v", got)
	}
	if got.Outcome != OutcomeSuccess || got.Error != "" || got.RolledBack {
		t.Errorf("record = %+v", got)
	}
}

func TestLedgerRecentNewestFirst(t *testing.T) {
	t.Parallel()

	ledger := openTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 5, 30, 0, 0, time.UTC)
	outcomes := []string{OutcomeNoop, OutcomeAborted, OutcomeSuccess}
	for i, outcome := range outcomes {
		err := ledger.Record(ctx, RunRecord{
			StartedAt:  base.AddDate(0, 0, i),
			FinishedAt: base.AddDate(0, 0, i).Add(time.Minute),
			Phase:      "done",
			Outcome:    outcome,
			RolledBack: outcome == OutcomeAborted,
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	records, err := ledger.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent returned %d records, want 2", len(records))
	}
	if records[0].Outcome != OutcomeSuccess || records[1].Outcome != OutcomeAborted {
		t.Errorf("order = %s, %s; want success, aborted", records[0].Outcome, records[1].Outcome)
	}
	if !records[1].RolledBack {
		t.Error("rolled_back flag lost in roundtrip")
	}
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deploy.db")
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	ledger, err := OpenLedger(path, logger)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	err = ledger.Record(ctx, RunRecord{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Phase:      "building",
		Outcome:    OutcomeAborted,
		Error:      "build failed: exit status 101",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenLedger(path, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 || records[0].Error != "build failed: exit status 101" {
		t.Errorf("records = %+v", records)
	}
}
