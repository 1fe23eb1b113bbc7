package api

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// moduleConfigSchema accepts a flat object: scalar values or arrays of scalars.
const moduleConfigSchema = `{
	"type": "object",
	"additionalProperties": {
		"anyOf": [
			{"type": ["string", "number", "boolean", "null"]},
			{"type": "array", "items": {"type": ["string", "number", "boolean", "null"]}}
		]
	}
}`

var (
	configSchemaOnce sync.Once
	configSchema     *jsonschema.Schema
	configSchemaErr  error
)

func compiledConfigSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(moduleConfigSchema))
		if err != nil {
			configSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("module-config.json", doc); err != nil {
			configSchemaErr = err
			return
		}
		configSchema, configSchemaErr = c.Compile("module-config.json")
	})
	return configSchema, configSchemaErr
}

// validateModuleConfig reports why raw is not a usable module configuration.
// An empty or null config is valid and clears the stored overrides.
func validateModuleConfig(raw []byte) error {
	if t := bytes.TrimSpace(raw); len(t) == 0 || string(t) == "null" {
		return nil
	}
	sch, err := compiledConfigSchema()
	if err != nil {
		return fmt.Errorf("module config schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
