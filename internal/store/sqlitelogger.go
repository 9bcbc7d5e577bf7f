package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// NewLoggingConnector returns a connector over the sqlite3 driver that logs
// every statement at debug level with its arguments and duration. Use it with
// sql.OpenDB.
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger, drv: &sqlite3.SQLiteDriver{}}, nil
}

type loggingConnector struct {
	dsn    string
	logger *slog.Logger
	drv    *sqlite3.SQLiteDriver
}

func (c *loggingConnector) Driver() driver.Driver {
	return c.drv
}

func (c *loggingConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.drv.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{Conn: conn, logger: c.logger}, nil
}

type loggingConn struct {
	driver.Conn
	logger *slog.Logger
}

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &loggingStmt{Stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback for conns without BeginTx
	return c.Conn.Begin()
}

// ExecContext runs on the sqlite connection itself, which executes every
// statement of a multi-statement script; a prepared statement runs only the
// first.
func (c *loggingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ex, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	res, err := ex.ExecContext(ctx, query, args)
	logStatement(ctx, c.logger, "exec", query, args, start, err)
	return res, err
}

type loggingStmt struct {
	driver.Stmt
	query  string
	logger *slog.Logger
}

var errNoContext = errors.New("sqlite3 statement without context support")

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	ex, ok := s.Stmt.(driver.StmtExecContext)
	if !ok {
		return nil, errNoContext
	}
	start := time.Now()
	res, err := ex.ExecContext(ctx, args)
	logStatement(ctx, s.logger, "exec", s.query, args, start, err)
	return res, err
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := s.Stmt.(driver.StmtQueryContext)
	if !ok {
		return nil, errNoContext
	}
	start := time.Now()
	rows, err := q.QueryContext(ctx, args)
	logStatement(ctx, s.logger, "query", s.query, args, start, err)
	return rows, err
}

func logStatement(ctx context.Context, logger *slog.Logger, op, query string, args []driver.NamedValue, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"sql", query,
		"args", formatArgs(args),
		"duration", time.Since(start),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.DebugContext(ctx, "sql", attrs...)
}

func formatArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := "NULL"
		if a.Value != nil {
			v = fmt.Sprint(a.Value)
		}
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	return out
}
