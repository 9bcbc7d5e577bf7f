// Package store is the server's sample journal: every sample that reaches the
// server is written here first and marked once the broker has accepted it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store owns the sqlite handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the journal at path and applies pending
// migrations. ":memory:" gives a private in-memory journal.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	connector, err := NewLoggingConnector(dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("db connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// One writer; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Healthy runs a trivial query against the journal.
func (s *Store) Healthy(ctx context.Context) error {
	var ok int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite path is empty")
	}
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on", nil
	}

	if !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	// busy_timeout covers the flush and the live path racing for the lock.
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
