package loader

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no tier of the resolution chain knows the name.
	ErrNotFound = errors.New("symbol not found")
	// ErrLoadInProgress is returned when the calling chain is already resolving the same name.
	ErrLoadInProgress = errors.New("symbol load already in progress")
	// ErrResolverPanic is returned in place of a panic raised by a delegate.
	ErrResolverPanic = errors.New("resolver panicked")
)

// Resource is a resolved symbol together with the resource set that defined it.
type Resource struct {
	Name   string
	Origin string // name of the resource set that defined the symbol
	Value  any
}

// Linker is implemented by resource values that need a link step after
// definition (LoadRequest.Resolve).
type Linker interface {
	Link() error
}

// Resolver resolves a symbol name to a Resource.
// Implementations return an error wrapping ErrNotFound when the name is unknown.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Resource, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, name string) (*Resource, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) (*Resource, error) {
	return f(ctx, name)
}

// LoadRequest is a single lookup.
type LoadRequest struct {
	Name    string
	Resolve bool // link the resource after a local definition
}

// Table is a fixed, read-only resource set.
type Table struct {
	origin  string
	entries map[string]any
}

// NewTable copies entries into a new Table owned by origin.
func NewTable(origin string, entries map[string]any) *Table {
	copied := make(map[string]any, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Table{origin: origin, entries: copied}
}

// Origin returns the name of the resource set.
func (t *Table) Origin() string {
	return t.origin
}

// Resolve implements Resolver.
func (t *Table) Resolve(_ context.Context, name string) (*Resource, error) {
	v, ok := t.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", t.origin, name, ErrNotFound)
	}
	return &Resource{Name: name, Origin: t.origin, Value: v}, nil
}

// Names returns the symbol names defined by the table, in no particular order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for k := range t.entries {
		names = append(names, k)
	}
	return names
}
