package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"smart-greenhouse/internal/types"
)

//go:embed sql/insert-sample.sql
var insertSampleSQL string

//go:embed sql/get-pending.sql
var getPendingSQL string

//go:embed sql/mark-published.sql
var markPublishedSQL string

//go:embed sql/get-latest.sql
var getLatestSQL string

// Record is a journaled sample.
type Record struct {
	ID        int64
	Telemetry types.Telemetry
}

// Append journals t and returns its row id.
func (s *Store) Append(ctx context.Context, t types.Telemetry) (int64, error) {
	res, err := s.db.ExecContext(ctx, insertSampleSQL,
		t.ClientID, t.Position, t.Sequence, t.Timestamp.UTC().Format(time.RFC3339Nano),
		t.Temperature, t.Humidity, t.CO2, t.SoilMoisture,
	)
	if err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert sample id: %w", err)
	}
	return id, nil
}

// Pending returns up to limit unpublished records, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, getPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close pending rows", "error", err)
		}
	}()
	return scanRecords(rows)
}

// Latest returns the newest limit records of one client, newest first.
func (s *Store) Latest(ctx context.Context, clientID uint16, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, getLatestSQL, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close latest rows", "error", err)
		}
	}()
	return scanRecords(rows)
}

// MarkPublished records that id reached the broker. Marking twice is a no-op.
func (s *Store) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, markPublishedSQL, at.UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("mark published %d: %w", id, err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			rec      Record
			ts       string
			temp     sql.NullFloat64
			hum      sql.NullFloat64
			co2      sql.NullInt64
			moisture sql.NullFloat64
		)
		t := &rec.Telemetry
		if err := rows.Scan(&rec.ID, &t.ClientID, &t.Position, &t.Sequence, &ts, &temp, &hum, &co2, &moisture); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse received_at %q: %w", ts, err)
		}
		t.Timestamp = at
		if temp.Valid {
			t.Temperature = &temp.Float64
		}
		if hum.Valid {
			t.Humidity = &hum.Float64
		}
		if co2.Valid {
			v := int(co2.Int64)
			t.CO2 = &v
		}
		if moisture.Valid {
			t.SoilMoisture = &moisture.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
