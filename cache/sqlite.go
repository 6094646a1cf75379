package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/flyercal/migrations"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteStore keeps records in an append-only SQLite table. It suits caches
// shared by several processes, where SQLite's locking serialises writers.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLiteStore opens the database at path (":memory:" is allowed) and
// applies migrations.
func OpenSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a new database.
		db.SetMaxOpenConns(1)
	}
	store, err := NewSQLiteStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database, applying migrations.
func NewSQLiteStore(db *sql.DB, logger zerolog.Logger) (*SQLiteStore, error) {
	log := logger.With().Str("component", "sqliteCache").Logger()
	if err := migrations.RunMigrations(db, log); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, logger: log}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	query, args, err := sq.Select("value").
		From("cache_records").
		Where(sq.Eq{"key": key}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build cache query: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query cache: %w", err)
	}
	return json.RawMessage(value), true, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	value := string(rec.Value)
	if value == "" {
		value = "null"
	}
	query, args, err := sq.Insert("cache_records").
		Columns("key", "arguments", "value", "created_at").
		Values(rec.Key, rec.Arguments, value, time.Now().Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build cache insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append cache record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
