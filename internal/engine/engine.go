package engine

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Pipeline is the entry point for the interception layer. It looks up the
// algorithm for an intercepted call, runs it synchronously on the calling
// goroutine and returns the verdict.
type Pipeline struct {
	registry *Registry
	metrics  *Metrics
	logger   *zap.Logger
}

// NewPipeline creates a Pipeline over registry. metrics may be nil.
func NewPipeline(registry *Registry, metrics *Metrics, logger *zap.Logger) *Pipeline {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{
		registry: registry,
		metrics:  metrics,
		logger:   logger.Named("pipeline"),
	}
}

// Check runs the algorithm registered under algorithmType. An unregistered
// type allows. A panicking algorithm is logged and allows.
func (p *Pipeline) Check(cc *CallContext, algorithmType string, params ...any) Verdict {
	d, ok := p.registry.Lookup(algorithmType)
	if !ok {
		return Allow()
	}

	start := time.Now()
	v := p.run(d, cc, params)
	p.metrics.CheckDuration.WithLabelValues(d.ID).Observe(time.Since(start).Seconds())
	p.metrics.Checks.WithLabelValues(d.ID, v.Decision.String()).Inc()
	for _, a := range v.Attacks {
		p.metrics.Attacks.WithLabelValues(d.ID, strconv.FormatBool(a.Blocked)).Inc()
	}
	return v
}

// CheckAll runs each listed algorithm in order and stops at the first block.
func (p *Pipeline) CheckAll(cc *CallContext, algorithmTypes []string, params ...any) Verdict {
	v := Allow()
	for _, t := range algorithmTypes {
		v = v.Merge(p.Check(cc, t, params...))
		if v.Blocked() {
			return v
		}
	}
	return v
}

// Guard is Check for call-sites that propagate errors: it returns the abort
// signal, or nil when the operation may proceed.
func (p *Pipeline) Guard(cc *CallContext, algorithmType string, params ...any) error {
	return p.Check(cc, algorithmType, params...).Err()
}

func (p *Pipeline) run(d *AlgorithmDescriptor, cc *CallContext, params []any) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panics.WithLabelValues(d.ID).Inc()
			p.logger.Error("algorithm panicked, allowing",
				zap.String("algorithm", d.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
			v = Allow()
		}
	}()
	v = d.Instance.Check(cc, params...)
	if v.Decision == 0 {
		v.Decision = DecisionAllow
	}
	return v
}
