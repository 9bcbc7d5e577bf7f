package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu   sync.Mutex
	recs []map[string]slog.Value
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.recs = append(h.recs, m)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.recs) - 1; i >= 0; i-- {
		if h.recs[i]["msg"].String() == "sql" {
			return h.recs[i]
		}
	}
	t.Fatal("no sql record logged")
	return nil
}

func TestLoggingConnector_LogsStatements(t *testing.T) {
	h := &captureHandler{}
	connector, err := NewLoggingConnector(":memory:", slog.New(h))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := h.last(t)["op"].String(); got != "exec" {
		t.Errorf("op = %q, want exec", got)
	}

	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec := h.last(t)
	if got := rec["sql"].String(); got != `INSERT INTO t (id, name) VALUES (?, ?)` {
		t.Errorf("sql = %q", got)
	}
	args, ok := rec["args"].Any().([]string)
	if !ok || len(args) != 2 || args[0] != "1" || args[1] != "NULL" {
		t.Errorf("args = %v, want [1 NULL]", rec["args"].Any())
	}
	if _, ok := rec["duration"]; !ok {
		t.Error("duration attribute missing")
	}

	var n int
	if err := db.QueryRow(`SELECT count(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := h.last(t)["op"].String(); got != "query" {
		t.Errorf("op = %q, want query", got)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestLoggingConnector_NilLoggerUsesDefault(t *testing.T) {
	connector, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
