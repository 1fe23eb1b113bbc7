package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Options configures a Loader.
type Options struct {
	Name     string          // used in logs and as the origin of errors
	Local    Resolver        // the isolation boundary's own resource set
	Routes   []RoutingRule   // consulted before anything else, in order
	Business *BusinessHolder // optional host fallback
	Parent   Resolver        // optional final tier
	Logger   *zap.Logger
}

// Loader resolves symbol names through a fixed order of tiers:
//
//  1. routing rules, first matching rule whose owner resolves wins
//  2. names already defined locally (cache)
//  3. the local resource set
//  4. the business resolver, if one is installed
//  5. the parent resolver
//
// Failures in tiers 1 and 4 are swallowed. Only the parent's error (or
// ErrNotFound when there is no parent) reaches the caller.
type Loader struct {
	name     string
	local    Resolver
	routes   []compiledRule
	business *BusinessHolder
	parent   Resolver
	coord    *Coordinator
	defined  sync.Map // map[string]*Resource
	logger   *zap.Logger
}

// New creates a Loader. Invalid routing patterns are logged and ignored.
func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("loader").With(zap.String("loader", opts.Name))
	return &Loader{
		name:     opts.Name,
		local:    opts.Local,
		routes:   compileRules(opts.Routes, logger),
		business: opts.Business,
		parent:   opts.Parent,
		coord:    NewCoordinator(),
		logger:   logger,
	}
}

// Name returns the loader's name.
func (l *Loader) Name() string {
	return l.name
}

// Resolve implements Resolver so loaders can be chained.
func (l *Loader) Resolve(ctx context.Context, name string) (*Resource, error) {
	return l.Load(ctx, LoadRequest{Name: name})
}

// Load resolves req.Name. Concurrent loads of the same name are serialized.
func (l *Loader) Load(ctx context.Context, req LoadRequest) (*Resource, error) {
	var res *Resource
	err := l.coord.WithLock(ctx, req.Name, func(ctx context.Context) error {
		var err error
		res, err = l.load(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *Loader) load(ctx context.Context, req LoadRequest) (*Resource, error) {
	for _, rule := range l.routes {
		if !rule.hit(req.Name) {
			continue
		}
		res, err := safeResolve(ctx, rule.owner, req.Name)
		if err == nil {
			return res, nil
		}
		l.logger.Warn("routed resolve failed, continuing",
			zap.String("symbol", req.Name),
			zap.Error(err),
		)
	}

	if v, ok := l.defined.Load(req.Name); ok {
		return v.(*Resource), nil
	}

	res, localErr := l.defineLocal(ctx, req)
	if localErr == nil {
		return res, nil
	}

	if biz := l.business.Get(); biz != nil {
		res, err := safeResolve(ctx, biz, req.Name)
		if err == nil {
			return res, nil
		}
		l.logger.Debug("business resolve failed, continuing",
			zap.String("symbol", req.Name),
			zap.Error(err),
		)
	}

	if l.parent == nil {
		return nil, fmt.Errorf("%s: %q: %w", l.name, req.Name, ErrNotFound)
	}
	return l.parent.Resolve(ctx, req.Name)
}

// safeResolve calls a delegate outside this loader, turning a panic into
// ErrResolverPanic so the chain can continue.
func safeResolve(ctx context.Context, r Resolver, name string) (res *Resource, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrResolverPanic, p)
		}
	}()
	return r.Resolve(ctx, name)
}

// defineLocal resolves against the local set and caches the definition.
// A link failure is treated as a local failure and is not cached.
func (l *Loader) defineLocal(ctx context.Context, req LoadRequest) (*Resource, error) {
	if l.local == nil {
		return nil, ErrNotFound
	}
	res, err := l.local.Resolve(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if req.Resolve {
		if lk, ok := res.Value.(Linker); ok {
			if err := lk.Link(); err != nil {
				l.logger.Warn("link failed",
					zap.String("symbol", req.Name),
					zap.Error(err),
				)
				return nil, fmt.Errorf("link %q: %w", req.Name, err)
			}
		}
	}
	actual, _ := l.defined.LoadOrStore(req.Name, res)
	return actual.(*Resource), nil
}

// Defined reports whether name has been defined by this loader's local set.
func (l *Loader) Defined(name string) bool {
	_, ok := l.defined.Load(name)
	return ok
}

// IsNotFound reports whether err means the name is unknown to every tier.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
