// Package sqlite keeps pipeline run reports in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id      TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	force       INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	created     INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failures    TEXT NOT NULL,
	ledger_path TEXT NOT NULL,
	error       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS pipeline_runs_started ON pipeline_runs (started_at);
`

// HistoryStore persists run reports. It implements pipeline.History.
type HistoryStore struct {
	sqlDB *sql.DB
}

// Run is a stored run summary. Records are not kept; the ledgers hold them.
type Run struct {
	RunID      string
	Stage      domain.ProductKind
	Force      bool
	StartedAt  time.Time
	FinishedAt time.Time
	Created    int
	Skipped    int
	Failures   []pipeline.Failure
	LedgerPath string
	Error      string
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*HistoryStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &HistoryStore{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *HistoryStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record stores one finished run. Recording the same run id twice replaces it.
func (s *HistoryStore) Record(ctx context.Context, rep *pipeline.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rep == nil || rep.RunID == "" {
		return errors.New("run id is required")
	}
	failures := rep.Failures
	if failures == nil {
		failures = []pipeline.Failure{}
	}
	encoded, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO pipeline_runs (
	run_id,
	stage,
	force,
	started_at,
	finished_at,
	created,
	skipped,
	failures,
	ledger_path,
	error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		rep.RunID,
		string(rep.Stage),
		rep.Force,
		rep.StartedAt.UTC().UnixMilli(),
		rep.FinishedAt.UTC().UnixMilli(),
		rep.Created,
		rep.Skipped,
		string(encoded),
		rep.LedgerPath,
		rep.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	run_id,
	stage,
	force,
	started_at,
	finished_at,
	created,
	skipped,
	failures,
	ledger_path,
	error
FROM pipeline_runs
ORDER BY started_at DESC, run_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run               Run
			stage, failures   string
			started, finished int64
		)
		if err := rows.Scan(
			&run.RunID,
			&stage,
			&run.Force,
			&started,
			&finished,
			&run.Created,
			&run.Skipped,
			&failures,
			&run.LedgerPath,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Stage = domain.ProductKind(stage)
		run.StartedAt = time.UnixMilli(started).UTC()
		run.FinishedAt = time.UnixMilli(finished).UTC()
		if err := json.Unmarshal([]byte(failures), &run.Failures); err != nil {
			return nil, fmt.Errorf("decode failures of run %s: %w", run.RunID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

var _ pipeline.History = (*HistoryStore)(nil)
