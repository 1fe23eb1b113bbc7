package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type countingResolver struct {
	calls atomic.Int32
	inner Resolver
}

func (c *countingResolver) Resolve(ctx context.Context, name string) (*Resource, error) {
	c.calls.Add(1)
	return c.inner.Resolve(ctx, name)
}

var errBroken = errors.New("broken delegate")

func failing() Resolver {
	return ResolverFunc(func(context.Context, string) (*Resource, error) {
		return nil, errBroken
	})
}

func panicking() Resolver {
	return ResolverFunc(func(context.Context, string) (*Resource, error) {
		panic("owner torn down")
	})
}

type linkCounter struct {
	links atomic.Int32
	err   error
}

func (l *linkCounter) Link() error {
	l.links.Add(1)
	return l.err
}

func TestLoader_RoutingWinsOverLocal(t *testing.T) {
	core := NewTable("core", map[string]any{"rasp.api.Sink": "core-sink"})
	local := &countingResolver{inner: NewTable("module", map[string]any{"rasp.api.Sink": "module-sink"})}

	l := New(Options{
		Name:   "module",
		Local:  local,
		Routes: []RoutingRule{Route(core, `rasp\.api\..*`)},
	})

	res, err := l.Load(context.Background(), LoadRequest{Name: "rasp.api.Sink"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "core" {
		t.Errorf("expected routed origin core, got %s", res.Origin)
	}
	if local.calls.Load() != 0 {
		t.Errorf("local resolver should not run on a routing hit, ran %d times", local.calls.Load())
	}
	if l.Defined("rasp.api.Sink") {
		t.Error("routed symbol must not be defined locally")
	}
}

func TestLoader_FirstMatchingRuleWins(t *testing.T) {
	first := NewTable("first", map[string]any{"a.b.C": 1})
	second := NewTable("second", map[string]any{"a.b.C": 2})

	l := New(Options{
		Name: "m",
		Routes: []RoutingRule{
			Route(first, `a\..*`),
			Route(second, `a\.b\..*`),
		},
	})

	res, err := l.Resolve(context.Background(), "a.b.C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "first" {
		t.Errorf("expected first rule to win, got %s", res.Origin)
	}
}

func TestLoader_RoutedFailureFallsThrough(t *testing.T) {
	second := NewTable("second", map[string]any{"a.b.C": 2})
	local := NewTable("local", map[string]any{"a.b.D": 3})

	l := New(Options{
		Name:  "m",
		Local: local,
		Routes: []RoutingRule{
			Route(failing(), `a\..*`),
			Route(second, `a\.b\.C`),
		},
	})

	res, err := l.Resolve(context.Background(), "a.b.C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "second" {
		t.Errorf("expected next matching rule after failure, got %s", res.Origin)
	}

	res, err = l.Resolve(context.Background(), "a.b.D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "local" {
		t.Errorf("expected local after routed failure, got %s", res.Origin)
	}
}

func TestLoader_DelegatePanicFallsThrough(t *testing.T) {
	biz := &BusinessHolder{}
	biz.Set(panicking())
	l := New(Options{
		Name:     "m",
		Local:    NewTable("local", map[string]any{"a.b.D": 3}),
		Business: biz,
		Parent:   NewTable("parent", map[string]any{"p.P": 1}),
		Routes:   []RoutingRule{Route(panicking(), `a\..*`)},
	})
	ctx := context.Background()

	res, err := l.Resolve(ctx, "a.b.D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "local" {
		t.Errorf("expected local after routed panic, got %s", res.Origin)
	}

	res, err = l.Resolve(ctx, "p.P")
	if err != nil {
		t.Fatalf("business panic should fall through to parent: %v", err)
	}
	if res.Origin != "parent" {
		t.Errorf("expected parent, got %s", res.Origin)
	}

	// the name lock must be released after a panicking delegate
	if _, err := l.Resolve(ctx, "a.b.D"); err != nil {
		t.Errorf("second load failed: %v", err)
	}
}

func TestSafeResolve(t *testing.T) {
	res, err := safeResolve(context.Background(), panicking(), "x.Y")
	if res != nil || !errors.Is(err, ErrResolverPanic) {
		t.Errorf("got %v, %v, want ErrResolverPanic", res, err)
	}
}

func TestLoader_PatternsAreFullMatch(t *testing.T) {
	core := &countingResolver{inner: NewTable("core", map[string]any{"x.rasp.api.Sink": 1})}
	local := NewTable("local", map[string]any{"x.rasp.api.Sink": 2})

	l := New(Options{
		Name:   "m",
		Local:  local,
		Routes: []RoutingRule{Route(core, `rasp\.api\..*`)},
	})

	res, err := l.Resolve(context.Background(), "x.rasp.api.Sink")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "local" {
		t.Errorf("partial pattern match must not route, got %s", res.Origin)
	}
	if core.calls.Load() != 0 {
		t.Error("core resolver should not be consulted")
	}
}

func TestLoader_InvalidPatternSkipped(t *testing.T) {
	core := NewTable("core", map[string]any{"a.B": 1})
	l := New(Options{
		Name:   "m",
		Routes: []RoutingRule{Route(core, `a.(`, `a\..*`)},
	})

	res, err := l.Resolve(context.Background(), "a.B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "core" {
		t.Errorf("valid pattern after an invalid one should still route, got %s", res.Origin)
	}
}

func TestLoader_LocalDefinitionCached(t *testing.T) {
	local := &countingResolver{inner: NewTable("local", map[string]any{"a.B": 1})}
	l := New(Options{Name: "m", Local: local})

	for i := 0; i < 3; i++ {
		if _, err := l.Resolve(context.Background(), "a.B"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if local.calls.Load() != 1 {
		t.Errorf("expected 1 local resolve, got %d", local.calls.Load())
	}
}

func TestLoader_FallbackOrder(t *testing.T) {
	biz := &BusinessHolder{}
	parent := NewTable("parent", map[string]any{"p.P": 1, "b.B": 9})
	l := New(Options{
		Name:     "m",
		Local:    NewTable("local", nil),
		Business: biz,
		Parent:   parent,
	})
	ctx := context.Background()

	res, err := l.Resolve(ctx, "b.B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "parent" {
		t.Errorf("without business resolver expected parent, got %s", res.Origin)
	}

	biz.Set(NewTable("business", map[string]any{"b.B": 2}))
	res, err = l.Resolve(ctx, "b.B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "business" {
		t.Errorf("expected business before parent, got %s", res.Origin)
	}

	biz.Set(failing())
	res, err = l.Resolve(ctx, "p.P")
	if err != nil {
		t.Fatalf("business failure should fall through to parent: %v", err)
	}
	if res.Origin != "parent" {
		t.Errorf("expected parent, got %s", res.Origin)
	}

	biz.Set(nil)
	if biz.Get() != nil {
		t.Error("expected cleared business slot")
	}
}

func TestLoader_NotFound(t *testing.T) {
	l := New(Options{Name: "m", Local: NewTable("local", nil)})
	_, err := l.Resolve(context.Background(), "missing.Name")
	if !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoader_ParentErrorPropagates(t *testing.T) {
	l := New(Options{Name: "m", Parent: failing()})
	_, err := l.Resolve(context.Background(), "any.Name")
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected parent error, got %v", err)
	}
}

func TestLoader_LinkOnResolve(t *testing.T) {
	lk := &linkCounter{}
	l := New(Options{Name: "m", Local: NewTable("local", map[string]any{"a.B": lk})})

	if _, err := l.Load(context.Background(), LoadRequest{Name: "a.B", Resolve: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Load(context.Background(), LoadRequest{Name: "a.B", Resolve: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lk.links.Load() != 1 {
		t.Errorf("expected a single link, got %d", lk.links.Load())
	}
}

func TestLoader_LinkFailureNotCached(t *testing.T) {
	lk := &linkCounter{err: errors.New("bad link")}
	l := New(Options{Name: "m", Local: NewTable("local", map[string]any{"a.B": lk})})

	if _, err := l.Load(context.Background(), LoadRequest{Name: "a.B", Resolve: true}); err == nil {
		t.Fatal("expected link failure")
	}
	if l.Defined("a.B") {
		t.Error("failed link must not be cached")
	}
}

func TestLoader_ConcurrentLoadDefinesOnce(t *testing.T) {
	local := &countingResolver{inner: NewTable("local", map[string]any{"a.B": 1})}
	l := New(Options{Name: "m", Local: local})

	const n = 64
	var wg sync.WaitGroup
	results := make([]*Resource, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Resolve(context.Background(), "a.B")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different resource", i)
		}
	}
	if local.calls.Load() != 1 {
		t.Errorf("expected local resolution once, got %d", local.calls.Load())
	}
	if l.coord.Len() != 0 {
		t.Errorf("expected all key locks released, %d remain", l.coord.Len())
	}
}

func TestLoader_ReentrantLoadDoesNotDeadlock(t *testing.T) {
	var l *Loader
	var inner error
	local := ResolverFunc(func(ctx context.Context, name string) (*Resource, error) {
		_, inner = l.Resolve(ctx, name)
		return nil, inner
	})
	l = New(Options{Name: "m", Local: local})

	_, err := l.Resolve(context.Background(), "self.Ref")
	if !errors.Is(inner, ErrLoadInProgress) {
		t.Fatalf("expected nested load to report ErrLoadInProgress, got %v", inner)
	}
	if !IsNotFound(err) {
		t.Errorf("expected outer load to exhaust the chain, got %v", err)
	}
}

func TestLoader_RoutingCycleTerminates(t *testing.T) {
	var a, b *Loader
	a = New(Options{
		Name:   "a",
		Local:  NewTable("a", map[string]any{"shared.X": "a"}),
		Routes: []RoutingRule{Route(ResolverFunc(func(ctx context.Context, n string) (*Resource, error) { return b.Resolve(ctx, n) }), `shared\..*`)},
	})
	b = New(Options{
		Name:   "b",
		Routes: []RoutingRule{Route(a, `shared\..*`)},
	})

	res, err := a.Resolve(context.Background(), "shared.X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Origin != "a" {
		t.Errorf("expected cycle to fall back to a's local set, got %s", res.Origin)
	}
}
