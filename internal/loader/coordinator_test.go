package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoordinator_SerializesSameName(t *testing.T) {
	c := NewCoordinator()

	var active, maxActive, runs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.WithLock(context.Background(), "same.Name", func(context.Context) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				runs.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("expected at most one in-flight op per name, saw %d", maxActive.Load())
	}
	if runs.Load() != 16 {
		t.Errorf("every caller re-runs its operation, expected 16 runs, got %d", runs.Load())
	}
	if c.Len() != 0 {
		t.Errorf("expected key locks to be released, %d remain", c.Len())
	}
}

func TestCoordinator_DistinctNamesDoNotBlock(t *testing.T) {
	c := NewCoordinator()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = c.WithLock(context.Background(), "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = c.WithLock(context.Background(), "b", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	close(release)
}

func TestCoordinator_ReentrantSameName(t *testing.T) {
	c := NewCoordinator()
	var nested error
	err := c.WithLock(context.Background(), "x", func(ctx context.Context) error {
		nested = c.WithLock(ctx, "x", func(context.Context) error { return nil })
		return c.WithLock(ctx, "y", func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("nested lock on a different name should succeed: %v", err)
	}
	if !errors.Is(nested, ErrLoadInProgress) {
		t.Errorf("expected ErrLoadInProgress for reentrant name, got %v", nested)
	}
}

func TestCoordinator_OpErrorReturned(t *testing.T) {
	c := NewCoordinator()
	want := errors.New("boom")
	if err := c.WithLock(context.Background(), "x", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected op error, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("lock must be released after an error")
	}
}
