// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/gyantal/RqCore/lib/sqlitepool"
)

// RunRecord is one deployment run as recorded in the ledger: no-op,
// success, or abort alike.
type RunRecord struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Phase          string // the phase the run reached
	StagedID       string
	ProductionID   string
	ArtifactDigest string // BLAKE3 of the built artifact; empty when no build ran
	Outcome        string // "success", "noop", or "aborted"
	Error          string // error text for aborted runs
	RolledBack     bool
}

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
	OutcomeAborted = "aborted"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id              INTEGER PRIMARY KEY,
    started_at      TEXT NOT NULL,
    finished_at     TEXT NOT NULL,
    phase           TEXT NOT NULL,
    staged_id       TEXT NOT NULL DEFAULT '',
    production_id   TEXT NOT NULL DEFAULT '',
    artifact_digest TEXT NOT NULL DEFAULT '',
    outcome         TEXT NOT NULL,
    error           TEXT NOT NULL DEFAULT '',
    rolled_back     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at DESC);
`

// Ledger records every deployment run in a SQLite database under the
// deployment root. The ledger is an audit trail: write failures are
// the caller's to log, never to escalate into a deploy failure.
type Ledger struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// OpenLedger opens (creating if necessary) the ledger database.
func OpenLedger(path string, logger *slog.Logger) (*Ledger, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, ledgerSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening deployment ledger: %w", err)
	}
	return &Ledger{pool: pool, logger: logger}, nil
}

// Close closes the underlying pool.
func (l *Ledger) Close() error {
	return l.pool.Close()
}

// Record inserts one run row.
func (l *Ledger) Record(ctx context.Context, record RunRecord) error {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer l.pool.Put(conn)

	rolledBack := 0
	if record.RolledBack {
		rolledBack = 1
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO runs (started_at, finished_at, phase, staged_id,
		                  production_id, artifact_digest, outcome, error, rolled_back)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.StartedAt.UTC().Format(time.RFC3339Nano),
				record.FinishedAt.UTC().Format(time.RFC3339Nano),
				record.Phase,
				record.StagedID,
				record.ProductionID,
				record.ArtifactDigest,
				record.Outcome,
				record.Error,
				rolledBack,
			},
		})
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer l.pool.Put(conn)

	var records []RunRecord
	err = sqlitex.Execute(conn, `
		SELECT id, started_at, finished_at, phase, staged_id,
		       production_id, artifact_digest, outcome, error, rolled_back
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record := RunRecord{
					ID:             stmt.ColumnInt64(0),
					Phase:          stmt.ColumnText(3),
					StagedID:       stmt.ColumnText(4),
					ProductionID:   stmt.ColumnText(5),
					ArtifactDigest: stmt.ColumnText(6),
					Outcome:        stmt.ColumnText(7),
					Error:          stmt.ColumnText(8),
					RolledBack:     stmt.ColumnInt64(9) != 0,
				}
				var parseErr error
				record.StartedAt, parseErr = time.Parse(time.RFC3339Nano, stmt.ColumnText(1))
				if parseErr != nil {
					return fmt.Errorf("parsing started_at: %w", parseErr)
				}
				record.FinishedAt, parseErr = time.Parse(time.RFC3339Nano, stmt.ColumnText(2))
				if parseErr != nil {
					return fmt.Errorf("parsing finished_at: %w", parseErr)
				}
				records = append(records, record)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("reading recent runs: %w", err)
	}
	return records, nil
}
