package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"montage/internal/config"
)

// Store manages library persistence backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	mediaDir string
}

// Open initializes or connects to the library database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "montage.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, mediaDir: cfg.Paths.MediaDir}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MediaDir returns the directory asset payloads are stored under.
func (s *Store) MediaDir() string {
	return s.mediaDir
}

// Health aggregates library state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var health HealthSummary

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM assets`)
	if err := row.Scan(&health.Assets); err != nil {
		return health, fmt.Errorf("count assets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM pipeline_steps GROUP BY status`)
	if err != nil {
		return health, fmt.Errorf("step stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return health, err
		}
		switch StepStatus(status) {
		case StepWaiting:
			health.StepsWaiting += count
		case StepFailed:
			health.StepsFailed += count
		}
	}
	if err := rows.Err(); err != nil {
		return health, err
	}

	jobRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return health, fmt.Errorf("job stats: %w", err)
	}
	defer jobRows.Close()
	for jobRows.Next() {
		var status string
		var count int
		if err := jobRows.Scan(&status, &count); err != nil {
			return health, err
		}
		switch JobStatus(status) {
		case JobPending, JobRunning:
			health.JobsRunning += count
		case JobFailed:
			health.JobsFailed += count
		}
	}
	return health, jobRows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
