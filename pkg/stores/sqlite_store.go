package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is the run-history store backed by a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations from the embedded sources.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordRun appends one run record to the history.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT INTO runs (id, plan_path, plan_fingerprint, phases, dry_run, shadow,
			status, error, ops_total, ops_applied, ops_noop, ops_skipped, ops_failed,
			results, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.PlanPath,
		run.PlanFingerprint,
		run.Phases,
		run.DryRun,
		run.Shadow,
		run.Status,
		run.Error,
		run.OpsTotal,
		run.OpsApplied,
		run.OpsNoop,
		run.OpsSkipped,
		run.OpsFailed,
		run.Results,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, plan_path, plan_fingerprint, phases, dry_run, shadow,
			status, error, ops_total, ops_applied, ops_noop, ops_skipped, ops_failed,
			results, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	run := &RunRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.PlanPath,
		&run.PlanFingerprint,
		&run.Phases,
		&run.DryRun,
		&run.Shadow,
		&run.Status,
		&run.Error,
		&run.OpsTotal,
		&run.OpsApplied,
		&run.OpsNoop,
		&run.OpsSkipped,
		&run.OpsFailed,
		&run.Results,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, plan_path, plan_fingerprint, phases, dry_run, shadow,
			status, error, ops_total, ops_applied, ops_noop, ops_skipped, ops_failed,
			results, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		if err := rows.Scan(
			&run.ID,
			&run.PlanPath,
			&run.PlanFingerprint,
			&run.Phases,
			&run.DryRun,
			&run.Shadow,
			&run.Status,
			&run.Error,
			&run.OpsTotal,
			&run.OpsApplied,
			&run.OpsNoop,
			&run.OpsSkipped,
			&run.OpsFailed,
			&run.Results,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
