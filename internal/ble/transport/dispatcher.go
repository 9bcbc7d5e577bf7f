package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 256

// Poster accepts tasks for the dispatch context.
type Poster interface {
	Post(task func()) bool
}

// Scheduler is a Poster that can also delay a task.
type Scheduler interface {
	Poster
	PostAfter(delay time.Duration, task func()) (stop func() bool)
}

// Dispatcher is the single cooperative context every radio event and every
// session mutation runs on. Tasks execute one at a time in post order.
type Dispatcher struct {
	mu        sync.Mutex
	queue     []func()
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher with room for queueSize pending tasks
// before the queue grows. Post never blocks, so a task may post more tasks
// without stalling the loop that has to run them.
func NewDispatcher(queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  make([]func(), 0, queueSize),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues task. It returns false once the dispatcher is closed.
func (d *Dispatcher) Post(task func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	d.mu.Lock()
	d.queue = append(d.queue, task)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// PostAfter queues task once delay has elapsed. A zero delay posts at once.
func (d *Dispatcher) PostAfter(delay time.Duration, task func()) func() bool {
	if delay <= 0 {
		d.Post(task)
		return func() bool { return false }
	}
	t := time.AfterFunc(delay, func() { d.Post(task) })
	return t.Stop
}

// Run executes tasks until ctx is cancelled or Close is called.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return ctx.Err()
		case <-d.done:
			return nil
		case <-d.wake:
			for {
				task, ok := d.next()
				if !ok {
					break
				}
				d.exec(task)
				select {
				case <-d.done:
					return nil
				default:
				}
			}
		}
	}
}

func (d *Dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, false
	}
	task := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return task, true
}

// Close stops accepting tasks. Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch task panicked", "panic", r)
		}
	}()
	task()
}
