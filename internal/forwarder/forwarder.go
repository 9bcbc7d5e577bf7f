// Package forwarder moves samples received over BLE to the broker. Every
// sample is journaled before it is published, so nothing is lost while the
// broker is unreachable; Flush replays the backlog.
package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smart-greenhouse/internal/events"
	"smart-greenhouse/internal/sample"
	"smart-greenhouse/internal/store"
	"smart-greenhouse/internal/types"
)

const (
	defaultQueueSize = 64
	defaultBatchSize = 100
)

type Journal interface {
	Append(ctx context.Context, t types.Telemetry) (int64, error)
	Pending(ctx context.Context, limit int) ([]store.Record, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
}

type Publisher interface {
	PublishTelemetry(t types.Telemetry) error
}

type Options struct {
	QueueSize int
	BatchSize int
	Now       func() time.Time
}

type Forwarder struct {
	journal   Journal
	publisher Publisher
	opts      Options
	logger    *slog.Logger

	queue   chan types.Telemetry
	flushMu sync.Mutex
}

func New(j Journal, p Publisher, opts Options, logger *slog.Logger) *Forwarder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		journal:   j,
		publisher: p,
		opts:      opts,
		logger:    logger.With("component", "forwarder"),
		queue:     make(chan types.Telemetry, opts.QueueSize),
	}
}

// Observe runs on the dispatch context and must not block: the sample is
// queued for Run, or dropped when the queue is full.
func (f *Forwarder) Observe(kind events.Kind, payload any) {
	if kind != events.SensorDataReceived {
		return
	}
	s, ok := payload.(sample.Sample)
	if !ok {
		f.logger.Warn("unexpected payload", "kind", kind, "type", fmt.Sprintf("%T", payload))
		return
	}
	t := types.FromSample(s, f.opts.Now())
	select {
	case f.queue <- t:
	default:
		f.logger.Warn("forward queue full, sample dropped", "client_id", s.ClientID, "sequence", s.Sequence)
	}
}

// Run forwards queued samples until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-f.queue:
			f.forward(ctx, t)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, t types.Telemetry) {
	id, err := f.journal.Append(ctx, t)
	if err != nil {
		f.logger.Error("journal sample failed", "client_id", t.ClientID, "sequence", t.Sequence, "error", err)
	}

	if err := f.publisher.PublishTelemetry(t); err != nil {
		f.logger.Warn("publish failed, sample kept in journal", "client_id", t.ClientID, "sequence", t.Sequence, "error", err)
		return
	}
	if id == 0 {
		return
	}
	if err := f.journal.MarkPublished(ctx, id, f.opts.Now()); err != nil {
		f.logger.Error("mark published failed", "id", id, "error", err)
	}
}

// Flush publishes journaled samples that have not reached the broker yet,
// oldest first. It stops at the first publish failure and returns how many
// samples went out.
func (f *Forwarder) Flush(ctx context.Context) (int, error) {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	sent := 0
	for {
		recs, err := f.journal.Pending(ctx, f.opts.BatchSize)
		if err != nil {
			return sent, fmt.Errorf("load pending: %w", err)
		}
		if len(recs) == 0 {
			break
		}
		for _, r := range recs {
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			if err := f.publisher.PublishTelemetry(r.Telemetry); err != nil {
				return sent, fmt.Errorf("publish %d: %w", r.ID, err)
			}
			if err := f.journal.MarkPublished(ctx, r.ID, f.opts.Now()); err != nil {
				return sent, fmt.Errorf("mark published %d: %w", r.ID, err)
			}
			sent++
		}
	}
	if sent > 0 {
		f.logger.Info("journal flushed", "published", sent)
	}
	return sent, nil
}
