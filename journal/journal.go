// Package journal keeps a local record of bootstrap runs. Every run
// appends one row for the outcome and one per executed stage, so an
// operator can see after the fact when a host was bootstrapped, what ran,
// and where a failed run stopped. Recording is bookkeeping only: a run
// that cannot be journaled still counts, and the pipeline's exit code
// never depends on it.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// FileName is the database file kept under the state directory.
const FileName = "journal.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	port INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	ok INTEGER NOT NULL,
	failed_stage TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	exit_code INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS run_stages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	stage TEXT NOT NULL,
	ok INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_run_stages_run ON run_stages(run_id);
`

// Run is one recorded bootstrap run.
type Run struct {
	ID          string
	Domain      string
	Port        int
	StartedAt   time.Time
	FinishedAt  time.Time
	OK          bool
	FailedStage string
	Error       string
	ExitCode    int
	Stages      []Stage
}

// Stage is one executed stage within a run, in execution order.
type Stage struct {
	Seq   int
	Stage string
	OK    bool
	Error string
}

// Row types mirror the tables for scanning; timestamps travel as RFC 3339
// text.
type runRow struct {
	ID          string `db:"id"`
	Domain      string `db:"domain"`
	Port        int    `db:"port"`
	StartedAt   string `db:"started_at"`
	FinishedAt  string `db:"finished_at"`
	OK          bool   `db:"ok"`
	FailedStage string `db:"failed_stage"`
	Error       string `db:"error"`
	ExitCode    int    `db:"exit_code"`
}

type stageRow struct {
	Seq   int    `db:"seq"`
	Stage string `db:"stage"`
	OK    bool   `db:"ok"`
	Error string `db:"error"`
}

// Store is an open journal database.
type Store struct {
	log *slog.Logger
	db  *sqlx.DB
}

// Open opens the journal at path, creating the database, its schema, and
// the parent directory when missing. A fresh host needs no preparation.
func Open(log *slog.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}

	return &Store{log: log, db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one run and its stages.
func (s *Store) Record(run Run) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning journal transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, domain, port, started_at, finished_at, ok, failed_stage, error, exit_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Domain, run.Port,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.OK, run.FailedStage, run.Error, run.ExitCode,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	for _, st := range run.Stages {
		if _, err := tx.Exec(
			`INSERT INTO run_stages (run_id, seq, stage, ok, error) VALUES (?, ?, ?, ?, ?)`,
			run.ID, st.Seq, st.Stage, st.OK, st.Error,
		); err != nil {
			return fmt.Errorf("recording stage %s: %w", st.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing journal transaction: %w", err)
	}

	s.log.Debug("Run recorded in journal", "run", run.ID, "ok", run.OK)
	return nil
}

// LastRun returns the most recent run, or nil when none is recorded.
func (s *Store) LastRun() (*Run, error) {
	var row runRow
	err := s.db.Get(&row,
		`SELECT id, domain, port, started_at, finished_at, ok, failed_stage, error, exit_code
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last run: %w", err)
	}
	return s.hydrate(row)
}

// Runs returns up to limit runs, most recent first.
func (s *Store) Runs(limit int) ([]Run, error) {
	var rows []runRow
	err := s.db.Select(&rows,
		`SELECT id, domain, port, started_at, finished_at, ok, failed_stage, error, exit_code
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := s.hydrate(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// hydrate converts a run row back into a Run, loading its stages.
func (s *Store) hydrate(row runRow) (*Run, error) {
	started, err := time.Parse(time.RFC3339, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing run %s start time: %w", row.ID, err)
	}
	finished, err := time.Parse(time.RFC3339, row.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing run %s finish time: %w", row.ID, err)
	}

	var stageRows []stageRow
	if err := s.db.Select(&stageRows,
		`SELECT seq, stage, ok, error FROM run_stages WHERE run_id = ? ORDER BY seq`, row.ID); err != nil {
		return nil, fmt.Errorf("loading stages for run %s: %w", row.ID, err)
	}

	run := &Run{
		ID:          row.ID,
		Domain:      row.Domain,
		Port:        row.Port,
		StartedAt:   started,
		FinishedAt:  finished,
		OK:          row.OK,
		FailedStage: row.FailedStage,
		Error:       row.Error,
		ExitCode:    row.ExitCode,
	}
	for _, sr := range stageRows {
		run.Stages = append(run.Stages, Stage{Seq: sr.Seq, Stage: sr.Stage, OK: sr.OK, Error: sr.Error})
	}
	return run, nil
}
