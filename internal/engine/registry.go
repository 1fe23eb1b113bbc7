package engine

import (
	"reflect"
	"sort"
	"sync"
)

// AlgorithmDescriptor is one registry entry. Entries are replaced, never mutated.
type AlgorithmDescriptor struct {
	ID       string
	Config   map[string]string
	Instance Algorithm
}

// Registry maps algorithm type to its live instance.
// Uses sync.Map for lock-free reads on the check path.
type Registry struct {
	entries sync.Map // map[string]*AlgorithmDescriptor
}

// NewRegistry creates an empty Registry. The composition root owns it.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores each algorithm under its Type, replacing any entry with
// the same id. Nil algorithms are ignored.
func (r *Registry) Register(algorithms ...Algorithm) {
	for _, a := range algorithms {
		if a == nil {
			continue
		}
		d := &AlgorithmDescriptor{ID: a.Type(), Instance: a}
		if c, ok := a.(Configured); ok {
			d.Config = CopyConfig(c.Config())
		}
		r.entries.Store(d.ID, d)
	}
}

// Destroy removes the entry for a, but only while a is still the registered
// instance. Destroying an absent or already replaced instance is a no-op.
// Pointer instances are compared by identity. Instances of a non-comparable
// value type are compared by deep equality.
func (r *Registry) Destroy(a Algorithm) {
	if a == nil {
		return
	}
	v, ok := r.entries.Load(a.Type())
	if !ok {
		return
	}
	d := v.(*AlgorithmDescriptor)
	if !sameInstance(d.Instance, a) {
		return
	}
	r.entries.CompareAndDelete(d.ID, d)
}

// sameInstance avoids the runtime panic == raises for non-comparable dynamic
// types such as structs holding maps or slices.
func sameInstance(x, y Algorithm) bool {
	tx := reflect.TypeOf(x)
	if tx != reflect.TypeOf(y) {
		return false
	}
	if !tx.Comparable() {
		return reflect.DeepEqual(x, y)
	}
	return x == y
}

// DestroyID removes whatever is registered under id. Absent ids are a no-op.
func (r *Registry) DestroyID(id string) {
	r.entries.Delete(id)
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id string) (*AlgorithmDescriptor, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*AlgorithmDescriptor), true
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	var ids []string
	r.entries.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}
