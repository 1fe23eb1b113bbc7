package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ModuleConfig represents a row in the module_configs table.
type ModuleConfig struct {
	ModuleID  string
	Config    json.RawMessage // JSONB flat object
	Enabled   bool
	UpdatedAt time.Time
}

// Map decodes Config into the flat map modules consume.
func (c *ModuleConfig) Map() (map[string]string, error) {
	return DecodeFlat(c.Config)
}

// ListModuleConfigs returns every enabled module's configuration, keyed by
// module id. Rows whose config does not decode are skipped and reported
// in the error so the rest still apply.
func (s *Store) ListModuleConfigs(ctx context.Context) (map[string]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module_id, config, enabled, updated_at
		FROM module_configs WHERE enabled ORDER BY module_id`)
	if err != nil {
		return nil, fmt.Errorf("ListModuleConfigs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[string]string)
	var bad []string
	for rows.Next() {
		var c ModuleConfig
		if err := rows.Scan(&c.ModuleID, &c.Config, &c.Enabled, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListModuleConfigs scan: %w", err)
		}
		m, err := c.Map()
		if err != nil {
			bad = append(bad, c.ModuleID)
			continue
		}
		out[c.ModuleID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListModuleConfigs: %w", err)
	}
	if len(bad) > 0 {
		return out, fmt.Errorf("ListModuleConfigs: undecodable config for %s", strings.Join(bad, ", "))
	}
	return out, nil
}

// GetModuleConfig returns one module's row, or nil if not found.
func (s *Store) GetModuleConfig(ctx context.Context, moduleID string) (*ModuleConfig, error) {
	var c ModuleConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT module_id, config, enabled, updated_at
		FROM module_configs WHERE module_id = $1`, moduleID,
	).Scan(&c.ModuleID, &c.Config, &c.Enabled, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetModuleConfig: %w", err)
	}
	return &c, nil
}

// UpsertModuleConfig replaces a module's configuration.
func (s *Store) UpsertModuleConfig(ctx context.Context, moduleID string, cfg map[string]string) (*ModuleConfig, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("UpsertModuleConfig: %w", err)
	}
	if cfg == nil {
		raw = json.RawMessage(`{}`)
	}

	var c ModuleConfig
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO module_configs (module_id, config)
		VALUES ($1, $2)
		ON CONFLICT (module_id) DO UPDATE SET
			config     = EXCLUDED.config,
			updated_at = now()
		RETURNING module_id, config, enabled, updated_at`,
		moduleID, raw,
	).Scan(&c.ModuleID, &c.Config, &c.Enabled, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("UpsertModuleConfig: %w", err)
	}
	return &c, nil
}

// SetModuleEnabled toggles a module. It reports false if the module has no row.
func (s *Store) SetModuleEnabled(ctx context.Context, moduleID string, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE module_configs SET enabled = $2, updated_at = now()
		WHERE module_id = $1`, moduleID, enabled)
	if err != nil {
		return false, fmt.Errorf("SetModuleEnabled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SetModuleEnabled: %w", err)
	}
	return n > 0, nil
}

// DecodeFlat decodes a JSON object into a flat string map. Scalars are
// stringified, numbers keep their literal form, arrays of scalars are
// joined with commas. Nested objects are rejected.
func DecodeFlat(raw json.RawMessage) (map[string]string, error) {
	out := map[string]string{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("DecodeFlat: %w", err)
	}
	for k, v := range obj {
		s, err := flatValue(v)
		if err != nil {
			return nil, fmt.Errorf("DecodeFlat %q: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func flatValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if _, nested := e.([]any); nested {
				return "", errors.New("nested array")
			}
			s, err := flatValue(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value %T", v)
	}
}
