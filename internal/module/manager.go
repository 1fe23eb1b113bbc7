package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// StatusFunc is notified whenever a module becomes active or inactive.
type StatusFunc func(id string, active bool)

// Manager owns the set of modules and drives their lifecycle from
// configuration documents.
type Manager struct {
	logger *zap.Logger

	mu       sync.Mutex
	modules  map[string]Module
	active   map[string]bool
	disabled map[string]struct{}
	observer StatusFunc
}

// NewManager creates a Manager. Modules listed in disabled are never activated.
func NewManager(logger *zap.Logger, disabled ...string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := make(map[string]struct{}, len(disabled))
	for _, id := range disabled {
		d[id] = struct{}{}
	}
	return &Manager{
		logger:   logger.Named("manager"),
		modules:  make(map[string]Module),
		active:   make(map[string]bool),
		disabled: d,
	}
}

// Add registers modules with the manager without activating them.
func (m *Manager) Add(mods ...Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mod := range mods {
		m.modules[mod.ID()] = mod
	}
}

// SetObserver installs fn and replays the current status of every module.
func (m *Manager) SetObserver(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
	if fn == nil {
		return
	}
	for _, id := range m.idsLocked() {
		fn(id, m.active[id])
	}
}

// Apply brings every module in line with configs. A module with an entry is
// reconfigured through Update; a module without one is (re)initialized with
// defaults. Errors are collected; one failing module does not stop the rest.
func (m *Manager) Apply(ctx context.Context, configs map[string]map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, id := range m.idsLocked() {
		mod := m.modules[id]
		if _, off := m.disabled[id]; off {
			if m.active[id] {
				errs = append(errs, m.unloadLocked(ctx, mod))
			}
			continue
		}

		var err error
		if cfg, ok := configs[id]; ok {
			var reload bool
			reload, err = mod.Update(ctx, cfg)
			if reload {
				m.logger.Info("module requested reload", zap.String("module", id))
			}
		} else {
			err = mod.LoadCompleted(ctx)
		}
		if err != nil {
			m.logger.Error("module activation failed", zap.String("module", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("module %s: %w", id, err))
			continue
		}
		m.setActiveLocked(id, true)
	}
	return errors.Join(errs...)
}

// Unload tears down one module. Unknown or inactive modules are a no-op.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	if !ok || !m.active[id] {
		return nil
	}
	return m.unloadLocked(ctx, mod)
}

// UnloadAll tears down every active module.
func (m *Manager) UnloadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, id := range m.idsLocked() {
		if m.active[id] {
			errs = append(errs, m.unloadLocked(ctx, m.modules[id]))
		}
	}
	return errors.Join(errs...)
}

// Status returns the activation state of every module.
func (m *Manager) Status() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.modules))
	for id := range m.modules {
		out[id] = m.active[id]
	}
	return out
}

func (m *Manager) unloadLocked(ctx context.Context, mod Module) error {
	id := mod.ID()
	if err := mod.OnUnload(ctx); err != nil {
		m.logger.Error("module unload failed", zap.String("module", id), zap.Error(err))
		return fmt.Errorf("module %s: %w", id, err)
	}
	m.setActiveLocked(id, false)
	m.logger.Info("module unloaded", zap.String("module", id))
	return nil
}

func (m *Manager) setActiveLocked(id string, active bool) {
	m.active[id] = active
	if m.observer != nil {
		m.observer(id, active)
	}
}

func (m *Manager) idsLocked() []string {
	ids := make([]string, 0, len(m.modules))
	for id := range m.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
