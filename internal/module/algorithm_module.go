package module

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/loader"
)

// AlgorithmModule activates a Bundle. Factories resolve through a loader
// private to the module; the agent API is routed to the core loader.
type AlgorithmModule struct {
	bundle Bundle
	loader *loader.Loader
	logger *zap.Logger

	mu   sync.Mutex
	held []engine.Algorithm
}

// NewAlgorithmModule creates the module. business may be nil.
func NewAlgorithmModule(b Bundle, core *loader.Loader, business *loader.BusinessHolder, logger *zap.Logger) *AlgorithmModule {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlgorithmModule{
		bundle: b,
		loader: loader.New(loader.Options{
			Name:     b.ID,
			Local:    b.table(),
			Routes:   []loader.RoutingRule{loader.Route(core, apiPattern)},
			Business: business,
			Parent:   core,
			Logger:   logger,
		}),
		logger: logger.Named("module").With(zap.String("module", b.ID)),
	}
}

func (m *AlgorithmModule) ID() string {
	return m.bundle.ID
}

// Loader exposes the module's isolation loader.
func (m *AlgorithmModule) Loader() *loader.Loader {
	return m.loader
}

func (m *AlgorithmModule) Update(ctx context.Context, cfg map[string]string) (bool, error) {
	return false, m.activate(ctx, cfg)
}

func (m *AlgorithmModule) LoadCompleted(ctx context.Context) error {
	return m.activate(ctx, nil)
}

func (m *AlgorithmModule) OnUnload(ctx context.Context) error {
	sink, reg, err := resolveAPI(ctx, m.loader)
	if err != nil {
		return fmt.Errorf("OnUnload %s: %w", m.bundle.ID, err)
	}

	m.mu.Lock()
	held := m.held
	m.held = nil
	m.mu.Unlock()

	for _, a := range held {
		reg.Destroy(a)
	}
	sink.Info(m.bundle.ID + " onUnload success.")
	return nil
}

// activate builds every algorithm of the bundle before registering any of
// them, so a resolution failure leaves the previous generation in place.
func (m *AlgorithmModule) activate(ctx context.Context, cfg map[string]string) error {
	sink, reg, err := resolveAPI(ctx, m.loader)
	if err != nil {
		return fmt.Errorf("activate %s: %w", m.bundle.ID, err)
	}

	algs := make([]engine.Algorithm, 0, len(m.bundle.Algorithms))
	for _, s := range m.bundle.Algorithms {
		res, err := m.loader.Load(ctx, loader.LoadRequest{Name: s.Name, Resolve: true})
		if err != nil {
			return fmt.Errorf("activate %s: %w", m.bundle.ID, err)
		}
		sym, ok := res.Value.(*factorySymbol)
		if !ok {
			return fmt.Errorf("activate %s: %s: %w", m.bundle.ID, s.Name, ErrBadSymbol)
		}
		algs = append(algs, sym.factory(sink, cfg))
	}

	reg.Register(algs...)

	m.mu.Lock()
	m.held = algs
	m.mu.Unlock()

	m.logger.Info("algorithms registered", zap.Int("count", len(algs)), zap.Bool("defaults", cfg == nil))
	return nil
}
