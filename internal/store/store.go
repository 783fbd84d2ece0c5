// Package store keeps an optional SQLite ledger of evaluation runs and the
// individual trials behind each aggregate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/ppiankov/headcheck/internal/model"
)

// Store records runs and trials. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the ledger at dbPath
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer; also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		mode TEXT NOT NULL,
		iterations INTEGER NOT NULL,
		sample_size INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS trials (
		run_id TEXT NOT NULL REFERENCES runs(id),
		headline_index INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		reply TEXT NOT NULL,
		value INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		at DATETIME NOT NULL,
		PRIMARY KEY (run_id, headline_index, iteration)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model, mode);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// StartRun inserts a run row
func (s *Store) StartRun(ctx context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, model, provider, mode, iterations, sample_size, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.Provider, string(run.Mode), run.Iterations, run.SampleSize, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordTrial appends one trial to its run
func (s *Store) RecordTrial(ctx context.Context, trial model.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trials (run_id, headline_index, iteration, reply, value, attempts, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trial.RunID, trial.Index, trial.Iteration, trial.Reply, trial.Value, trial.Attempts, trial.At.UTC())
	if err != nil {
		return fmt.Errorf("insert trial %s/%d/%d: %w", trial.RunID, trial.Index, trial.Iteration, err)
	}
	return nil
}

// FinishRun stamps the completion time of a run
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET completed_at = ? WHERE id = ?`, at.UTC(), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", runID)
	}
	return nil
}

// GetRun loads a run by id
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		run       model.Run
		mode      string
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, model, provider, mode, iterations, sample_size, started_at, completed_at
		FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &run.Model, &run.Provider, &mode, &run.Iterations, &run.SampleSize, &run.StartedAt, &completed)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	run.Mode = model.Mode(mode)
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

// Runs returns the runs recorded for modelName, oldest first
func (s *Store) Runs(ctx context.Context, modelName string) ([]model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, provider, mode, iterations, sample_size, started_at, completed_at
		FROM runs WHERE model = ?
		ORDER BY started_at, id`, modelName)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		var (
			run       model.Run
			mode      string
			completed sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Model, &run.Provider, &mode, &run.Iterations, &run.SampleSize, &run.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Mode = model.Mode(mode)
		if completed.Valid {
			t := completed.Time
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Trials returns a run's trials ordered by headline and iteration
func (s *Store) Trials(ctx context.Context, runID string) ([]model.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, headline_index, iteration, reply, value, attempts, at
		FROM trials WHERE run_id = ?
		ORDER BY headline_index, iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trials []model.Trial
	for rows.Next() {
		var t model.Trial
		if err := rows.Scan(&t.RunID, &t.Index, &t.Iteration, &t.Reply, &t.Value, &t.Attempts, &t.At); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}
