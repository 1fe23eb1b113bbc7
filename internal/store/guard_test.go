package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type countingLister struct {
	calls atomic.Int32
	fail  int32 // number of leading calls that fail
	cfgs  map[string]map[string]string
	err   error
}

func (l *countingLister) ListModuleConfigs(context.Context) (map[string]map[string]string, error) {
	n := l.calls.Add(1)
	if n <= l.fail {
		return nil, errors.New("connection refused")
	}
	return l.cfgs, l.err
}

func TestGuard_RetriesTransientFailure(t *testing.T) {
	l := &countingLister{fail: 2, cfgs: map[string]map[string]string{"sql-algorithm": {"mysqlPolicyAction": "1"}}}
	g := NewGuard(l, zap.NewNop())

	got, err := g.ListModuleConfigs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got["sql-algorithm"]["mysqlPolicyAction"] != "1" {
		t.Errorf("unexpected result %v", got)
	}
	if n := l.calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestGuard_PartialResultIsNotRetried(t *testing.T) {
	l := &countingLister{
		cfgs: map[string]map[string]string{"file-algorithm": {}},
		err:  errors.New("undecodable config for sql-algorithm"),
	}
	g := NewGuard(l, zap.NewNop())

	got, err := g.ListModuleConfigs(context.Background())
	if err == nil || got == nil {
		t.Fatalf("expected partial result with error, got %v, %v", got, err)
	}
	if n := l.calls.Load(); n != 1 {
		t.Errorf("partial results must not be retried, got %d calls", n)
	}
}

func TestGuard_OpensAfterConsecutiveFailures(t *testing.T) {
	l := &countingLister{fail: 1 << 20}
	g := NewGuard(l, zap.NewNop())
	g.attempts = 1

	for i := 0; i < 5; i++ {
		if _, err := g.ListModuleConfigs(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}
	if g.State() != "open" {
		t.Fatalf("expected open breaker, got %s", g.State())
	}

	before := l.calls.Load()
	_, err := g.ListModuleConfigs(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if l.calls.Load() != before {
		t.Error("open breaker must not reach the store")
	}
}
