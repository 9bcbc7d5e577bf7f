package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func runDispatcher(t *testing.T) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	d := NewDispatcher(16, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, cancel
}

func TestDispatcher_RunsTasksInPostOrder(t *testing.T) {
	d, _ := runDispatcher(t)

	var mu sync.Mutex
	var got []int
	finished := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		d.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 9 {
				close(finished)
			}
		})
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("got = %v, want ascending order", got)
		}
	}
}

func TestDispatcher_RecoversPanickingTask(t *testing.T) {
	d, _ := runDispatcher(t)

	ran := make(chan struct{})
	d.Post(func() { panic("boom") })
	d.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task after panic did not run")
	}
}

func TestDispatcher_PostAfter(t *testing.T) {
	d, _ := runDispatcher(t)

	ran := make(chan time.Time, 1)
	start := time.Now()
	d.PostAfter(20*time.Millisecond, func() { ran <- time.Now() })

	select {
	case at := <-ran:
		if at.Sub(start) < 20*time.Millisecond {
			t.Errorf("task ran after %v, want >= 20ms", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task did not run")
	}
}

func TestDispatcher_PostAfterStop(t *testing.T) {
	d, _ := runDispatcher(t)

	ran := make(chan struct{}, 1)
	stop := d.PostAfter(50*time.Millisecond, func() { ran <- struct{}{} })
	if !stop() {
		t.Fatal("stop() = false, want true for a pending task")
	}

	select {
	case <-ran:
		t.Fatal("stopped task ran")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcher_PostAfterClose(t *testing.T) {
	d := NewDispatcher(1, nil)
	d.Close()
	d.Close()

	if d.Post(func() {}) {
		t.Error("Post() = true after Close, want false")
	}
	if err := d.Run(context.Background()); err != nil {
		t.Errorf("Run() after Close error = %v, want nil", err)
	}
}

func TestDispatcher_RunReturnsContextError(t *testing.T) {
	d := NewDispatcher(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if d.Post(func() {}) {
		t.Error("Post() = true after cancelled Run, want false")
	}
}

func TestDispatcher_PostFromTaskDoesNotBlock(t *testing.T) {
	d := NewDispatcher(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	ran := make(chan int, 2)
	d.Post(func() {
		d.Post(func() { ran <- 1 })
		d.Post(func() { ran <- 2 })
	})

	for want := 1; want <= 2; want++ {
		select {
		case got := <-ran:
			if got != want {
				t.Errorf("task = %d, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d never ran", want)
		}
	}
}
