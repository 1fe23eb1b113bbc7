package config

import (
	"context"
	"errors"
	"fmt"
)

// StoreSource lists persisted per-module overrides; *store.Store implements it.
type StoreSource interface {
	ListModuleConfigs(ctx context.Context) (map[string]map[string]string, error)
}

// Source combines the module document with the optional persisted overrides.
// Stored keys win over file keys of the same module.
type Source struct {
	File  string      // module document path, may be empty
	Store StoreSource // may be nil
}

// Load returns the effective configuration per module. Keys the document
// cannot express and rows the store cannot decode are skipped: the result
// is non-nil and the error describes what was left out. A nil result means
// nothing could be read.
func (s Source) Load(ctx context.Context) (map[string]map[string]string, error) {
	out := map[string]map[string]string{}
	var skipped error
	if s.File != "" {
		doc, err := LoadModules(s.File)
		if err != nil {
			return nil, err
		}
		for id, cfg := range doc.Modules {
			out[id] = cfg
		}
		if err := doc.Err(); err != nil {
			skipped = fmt.Errorf("Source.Load %s: %w", s.File, err)
		}
	}
	if s.Store == nil {
		return out, skipped
	}

	stored, err := s.Store.ListModuleConfigs(ctx)
	if stored == nil && err != nil {
		return nil, fmt.Errorf("Source.Load: %w", err)
	}
	for id, cfg := range stored {
		merged := make(map[string]string, len(out[id])+len(cfg))
		for k, v := range out[id] {
			merged[k] = v
		}
		for k, v := range cfg {
			merged[k] = v
		}
		out[id] = merged
	}
	if err != nil {
		return out, errors.Join(skipped, fmt.Errorf("Source.Load: %w", err))
	}
	return out, skipped
}
