package transporttest

import (
	"sync"
	"time"
)

// Inline runs posted tasks on the caller's goroutine.
type Inline struct{}

func (Inline) Post(task func()) bool {
	task()
	return true
}

// Manual runs posted tasks inline and holds delayed tasks until RunDelayed.
type Manual struct {
	mu      sync.Mutex
	delayed []*delayed
}

type delayed struct {
	delay   time.Duration
	task    func()
	stopped bool
}

func (m *Manual) Post(task func()) bool {
	task()
	return true
}

func (m *Manual) PostAfter(delay time.Duration, task func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &delayed{delay: delay, task: task}
	m.delayed = append(m.delayed, d)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if d.stopped {
			return false
		}
		d.stopped = true
		return true
	}
}

// Pending returns the delays of the tasks not yet run.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, d := range m.delayed {
		if !d.stopped {
			out = append(out, d.delay)
		}
	}
	return out
}

// RunDelayed runs every pending delayed task in scheduling order.
func (m *Manual) RunDelayed() int {
	m.mu.Lock()
	tasks := m.delayed
	m.delayed = nil
	m.mu.Unlock()

	n := 0
	for _, d := range tasks {
		m.mu.Lock()
		skip := d.stopped
		d.stopped = true
		m.mu.Unlock()
		if skip {
			continue
		}
		d.task()
		n++
	}
	return n
}
