package loader

import (
	"context"
	"fmt"
	"sync"
)

// Coordinator serializes concurrent loads of the same symbol name.
//
// Each distinct name gets its own mutex, reference-counted and dropped once
// no caller holds or waits on it. Waiting callers re-run their own operation
// after the holder finishes; they never receive the holder's result, so the
// operation must be idempotent (the loader's cache provides that).
type Coordinator struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{locks: make(map[string]*keyLock)}
}

// inflight is an immutable list of (coordinator, name) pairs currently held
// by the calling chain. It travels in the context so that a nested load of
// the same name on the same coordinator is detected instead of deadlocking.
type inflight struct {
	owner *Coordinator
	name  string
	next  *inflight
}

type inflightKey struct{}

func (c *Coordinator) holding(ctx context.Context, name string) bool {
	for n, _ := ctx.Value(inflightKey{}).(*inflight); n != nil; n = n.next {
		if n.owner == c && n.name == name {
			return true
		}
	}
	return false
}

// WithLock runs op while holding the lock for name. The context passed to op
// marks name as in flight; nested calls must use it.
//
// A nested call for a name the chain already holds returns ErrLoadInProgress
// without running op.
func (c *Coordinator) WithLock(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if c.holding(ctx, name) {
		return fmt.Errorf("WithLock %q: %w", name, ErrLoadInProgress)
	}

	kl := c.acquire(name)
	kl.mu.Lock()
	defer c.release(name, kl)

	parent, _ := ctx.Value(inflightKey{}).(*inflight)
	ctx = context.WithValue(ctx, inflightKey{}, &inflight{owner: c, name: name, next: parent})
	return op(ctx)
}

func (c *Coordinator) acquire(name string) *keyLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	kl, ok := c.locks[name]
	if !ok {
		kl = &keyLock{}
		c.locks[name] = kl
	}
	kl.refs++
	return kl
}

func (c *Coordinator) release(name string, kl *keyLock) {
	kl.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(c.locks, name)
	}
}

// Len returns the number of names currently held or awaited.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
