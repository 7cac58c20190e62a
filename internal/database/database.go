package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrSlotTaken              = errors.New("slot is no longer available")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrInvalidTransition      = errors.New("invalid status transition")
	errBuildQuery             = errors.New("build query")
)

// executor is satisfied by both *sql.DB and *sql.Tx so reads can run
// inside the commit transaction unchanged.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens (and creates when needed) the sqlite database at path.
// Write transactions take the database lock at BEGIN.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            announcer_id INTEGER NOT NULL DEFAULT 0,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            day_start INTEGER NOT NULL DEFAULT 0,
            day_end INTEGER NOT NULL DEFAULT 1440,
            allow_overnight BOOLEAN NOT NULL DEFAULT 0,
            overnight_price INTEGER NOT NULL DEFAULT 0,
            duration_blocking BOOLEAN NOT NULL DEFAULT 0,
            capacity_based BOOLEAN NOT NULL DEFAULT 0,
            max_per_slot INTEGER NOT NULL DEFAULT 0,
            buffer_before INTEGER NOT NULL DEFAULT 0,
            buffer_after INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS variants (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            duration INTEGER,
            price INTEGER NOT NULL DEFAULT 0,
            pricing TEXT NOT NULL DEFAULT '{}',
            price_unit TEXT NOT NULL DEFAULT '',
            sessions INTEGER NOT NULL DEFAULT 1,
            session_interval INTEGER NOT NULL DEFAULT 0,
            session_type TEXT NOT NULL DEFAULT '',
            max_per_session INTEGER NOT NULL DEFAULT 0,
            features TEXT NOT NULL DEFAULT '[]'
        )`,
		`CREATE TABLE IF NOT EXISTS options (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            price INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS availability_windows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            date TEXT NOT NULL,
            start_minute INTEGER NOT NULL,
            end_minute INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS blocked_days (
            service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            date TEXT NOT NULL,
            PRIMARY KEY (service_id, date)
        )`,
		`CREATE TABLE IF NOT EXISTS collective_slots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            variant_id INTEGER NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
            date TEXT NOT NULL,
            start_minute INTEGER NOT NULL,
            end_minute INTEGER NOT NULL,
            total_spots INTEGER NOT NULL,
            available_spots INTEGER NOT NULL CHECK (available_spots >= 0)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT NOT NULL UNIQUE,
            user_id INTEGER NOT NULL,
            service_id INTEGER NOT NULL,
            variant_id INTEGER NOT NULL,
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            start_minute INTEGER,
            end_minute INTEGER,
            participants INTEGER NOT NULL DEFAULT 1,
            calculated_amount INTEGER NOT NULL,
            overnight_nights INTEGER NOT NULL DEFAULT 0,
            overnight_amount INTEGER NOT NULL DEFAULT 0,
            option_ids TEXT NOT NULL DEFAULT '[]',
            sessions TEXT NOT NULL DEFAULT '[]',
            slot_ids TEXT NOT NULL DEFAULT '[]',
            location TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		// held_start/held_end include the buffers in force at commit time
		`CREATE TABLE IF NOT EXISTS booking_days (
            booking_id INTEGER NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            service_id INTEGER NOT NULL,
            date TEXT NOT NULL,
            held_start INTEGER NOT NULL,
            held_end INTEGER NOT NULL,
            participants INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE INDEX IF NOT EXISTS idx_variants_service_id ON variants(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_options_service_id ON options(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_windows_service_date ON availability_windows(service_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_collective_variant_date ON collective_slots(variant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_service_dates ON bookings(service_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_days_service_date ON booking_days(service_id, date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// withTx runs fn in a write transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
