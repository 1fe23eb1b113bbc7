// Package module implements the activation contract of detection modules.
// Each module resolves its algorithm factories through its own isolation
// loader, so modules with overlapping symbol names do not interfere.
package module

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/loader"
)

// Symbols exported by the core loader to every module.
const (
	SymbolSink     = "rasp.api.Sink"
	SymbolRegistry = "rasp.api.Registry"

	// apiPattern pins the core API to the core loader.
	apiPattern = `rasp\.api\..*`
)

// ErrBadSymbol is returned when a symbol resolves to a value of the wrong kind.
var ErrBadSymbol = errors.New("module: symbol has unexpected type")

// Module is the activation contract. Update and LoadCompleted both
// (re)build the module's algorithms and register them; OnUnload destroys
// every algorithm the module registered.
type Module interface {
	ID() string

	// Update reconfigures the module. The result reports whether the host
	// must reload the module; bundled modules always return false.
	Update(ctx context.Context, cfg map[string]string) (bool, error)

	// LoadCompleted initializes the module with compiled-in defaults.
	LoadCompleted(ctx context.Context) error

	// OnUnload tears the module down. Already destroyed algorithms are skipped.
	OnUnload(ctx context.Context) error
}

// Symbol is one algorithm factory exported by a bundle.
type Symbol struct {
	Name    string
	Factory engine.Factory
}

// Bundle is an already resolved detection module: its id and the
// factories it exports, in activation order.
type Bundle struct {
	ID         string
	Algorithms []Symbol
}

// factorySymbol is the resource value stored in a bundle's local table.
type factorySymbol struct {
	name    string
	factory engine.Factory
}

// Link rejects symbols without a factory.
func (s *factorySymbol) Link() error {
	if s.factory == nil {
		return fmt.Errorf("symbol %q: no factory", s.name)
	}
	return nil
}

func (b Bundle) table() *loader.Table {
	symbols := make(map[string]any, len(b.Algorithms))
	for _, s := range b.Algorithms {
		symbols[s.Name] = &factorySymbol{name: s.Name, factory: s.Factory}
	}
	return loader.NewTable(b.ID, symbols)
}

// NewCoreLoader builds the loader that exports the agent API (sink and
// registry) to modules. It is the parent of every module loader.
func NewCoreLoader(sink engine.Sink, registry *engine.Registry, logger *zap.Logger) *loader.Loader {
	return loader.New(loader.Options{
		Name: "core",
		Local: loader.NewTable("core", map[string]any{
			SymbolSink:     sink,
			SymbolRegistry: registry,
		}),
		Logger: logger,
	})
}

func resolveAPI(ctx context.Context, l *loader.Loader) (engine.Sink, *engine.Registry, error) {
	res, err := l.Load(ctx, loader.LoadRequest{Name: SymbolSink})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve sink: %w", err)
	}
	sink, ok := res.Value.(engine.Sink)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", SymbolSink, ErrBadSymbol)
	}

	res, err = l.Load(ctx, loader.LoadRequest{Name: SymbolRegistry})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve registry: %w", err)
	}
	reg, ok := res.Value.(*engine.Registry)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", SymbolRegistry, ErrBadSymbol)
	}
	return sink, reg, nil
}
