package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lucasew/dircap/internal/eviction"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is one recorded eviction attempt.
type Entry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	ModTime   time.Time `json:"mod_time"`
	EvictedAt time.Time `json:"evicted_at"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Journal is an append-only record of eviction attempts, backed by SQLite.
// Each opened Journal stamps its rows with a fresh run ID.
type Journal struct {
	db    *sql.DB
	runID string
}

// Open opens (or creates) the journal at path and applies pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY to ourselves.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db, runID: uuid.NewString()}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RunID identifies the process that owns this Journal.
func (j *Journal) RunID() string {
	return j.runID
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record implements eviction.Recorder.
func (j *Journal) Record(ctx context.Context, s eviction.Summary) error {
	evictedAt := s.FinishedAt
	if evictedAt.IsZero() {
		evictedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO evictions (run_id, path, mod_time, evicted_at, outcome, error) VALUES (?, ?, ?, ?, ?, ?)",
		j.runID, s.Target.Path, s.Target.ModTime.UnixNano(), evictedAt.UnixNano(), string(s.Action), s.Err,
	)
	if err != nil {
		return fmt.Errorf("failed to insert eviction of %s: %w", s.Target.Path, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, run_id, path, mod_time, evicted_at, outcome, error FROM evictions ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("failed to query evictions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			modTime, evictedAt int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Path, &modTime, &evictedAt, &e.Outcome, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan eviction: %w", err)
		}
		e.ModTime = time.Unix(0, modTime)
		e.EvictedAt = time.Unix(0, evictedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evictions: %w", err)
	}
	return entries, nil
}
