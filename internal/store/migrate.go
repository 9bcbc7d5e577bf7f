package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
)

// Migrations are embedded from sql/NNNN_name.sql and applied in version
// order, each once.
//
//go:embed sql/*.sql
var sqlFS embed.FS

const migrationsTable = "schema_migrations"

var migrationFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type migration struct {
	version string
	name    string
	body    string
}

func migrate(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied := map[string]bool{}
	rows, err := db.Query("SELECT version FROM " + migrationsTable)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	entries, err := fs.ReadDir(sqlFS, "sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var pending []migration
	for _, e := range entries {
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil || applied[m[1]] {
			continue
		}
		body, err := fs.ReadFile(sqlFS, "sql/"+e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		pending = append(pending, migration{version: m[1], name: m[2], body: string(body)})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s_%s: %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO "+migrationsTable+" (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s_%s: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Info("migration applied", "version", m.version, "name", m.name)
	}
	return nil
}
