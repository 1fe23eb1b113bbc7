package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Lister is the read the reload path performs against the store.
type Lister interface {
	ListModuleConfigs(ctx context.Context) (map[string]map[string]string, error)
}

// Guard wraps configuration reads with retries and a circuit breaker, so a
// reload during a database outage fails fast instead of stalling every
// trigger behind connection timeouts.
type Guard struct {
	next     Lister
	cb       *gobreaker.CircuitBreaker
	attempts uint
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGuard wraps next. It opens after five consecutive failed reloads and
// probes again after thirty seconds.
func NewGuard(next Lister, logger *zap.Logger) *Guard {
	logger = logger.Named("store-guard")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "module-store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Guard{next: next, cb: cb, attempts: 3, timeout: 5 * time.Second, logger: logger}
}

// partial carries rows that decoded alongside the error for those that did
// not. It is not a breaker failure.
type partial struct {
	cfgs map[string]map[string]string
	err  error
}

// ListModuleConfigs implements Lister.
func (g *Guard) ListModuleConfigs(ctx context.Context) (map[string]map[string]string, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		var p partial
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(g.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				return retry.BackOffDelay(n, err, config)
			}),
		)
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			cfgs, err := g.next.ListModuleConfigs(tCtx)
			if cfgs == nil && err != nil {
				return err
			}
			p = partial{cfgs: cfgs, err: err}
			return nil
		})
		return p, retryErr
	})
	if err != nil {
		return nil, fmt.Errorf("Guard.ListModuleConfigs: %w", err)
	}
	p := res.(partial)
	return p.cfgs, p.err
}

// State reports the breaker state for health output.
func (g *Guard) State() string {
	return g.cb.State().String()
}
