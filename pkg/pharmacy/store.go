// Package pharmacy implements the pharmacy tools over a local SQLite database.
//
// Notes:
//   - All lookups are read-only; each one holds a single connection for its duration and releases it on return.
//   - WAL is enabled so that concurrent turns can read while a seed is written.
package pharmacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Now is the clock used for prescription expiry.
	Now func() time.Time
}

func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("missing db path")
	}
	p := filepath.Clean(strings.TrimSpace(path))
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p+"?_pragma=busy_timeout(3000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, Now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withConn runs fn on a dedicated connection that is returned to the pool on every exit path.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}

	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version=%d;`, schemaVersion)); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	return tx.Commit()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		patient_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		language_preference TEXT NOT NULL DEFAULT 'he' CHECK (language_preference IN ('he', 'en'))
	);`,
	`CREATE TABLE IF NOT EXISTS medications (
		med_id TEXT PRIMARY KEY,
		brand_name TEXT NOT NULL,
		generic_name TEXT NOT NULL,
		active_ingredients TEXT NOT NULL,
		form TEXT NOT NULL,
		strength TEXT NOT NULL,
		rx_required INTEGER NOT NULL DEFAULT 0,
		standard_instructions TEXT NOT NULL DEFAULT '',
		common_side_effects TEXT NOT NULL DEFAULT '[]',
		warnings TEXT NOT NULL DEFAULT '[]'
	);`,
	`CREATE TABLE IF NOT EXISTS inventory (
		med_id TEXT PRIMARY KEY REFERENCES medications(med_id),
		qty_on_hand INTEGER NOT NULL CHECK (qty_on_hand >= 0),
		reorder_threshold INTEGER NOT NULL DEFAULT 0 CHECK (reorder_threshold >= 0),
		location_bin TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
		rx_id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL REFERENCES patients(patient_id),
		med_id TEXT NOT NULL REFERENCES medications(med_id),
		status TEXT NOT NULL CHECK (status IN ('active', 'refill_pending', 'expired', 'cancelled')),
		expires_at TEXT NOT NULL,
		refills_remaining INTEGER NOT NULL DEFAULT 0 CHECK (refills_remaining >= 0),
		directions TEXT NOT NULL,
		last_filled_at TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_prescriptions_patient_med ON prescriptions(patient_id, med_id, expires_at);`,
	`CREATE TABLE IF NOT EXISTS interaction_rules (
		rule_id TEXT PRIMARY KEY,
		med_id_a TEXT NOT NULL REFERENCES medications(med_id),
		med_id_b TEXT NOT NULL REFERENCES medications(med_id),
		level TEXT NOT NULL CHECK (level IN ('none', 'caution', 'avoid')),
		message TEXT NOT NULL,
		source TEXT
	);`,
}
