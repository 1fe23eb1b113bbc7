package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNestedValue marks a module key that holds a mapping or a nested
// sequence. Module configuration is a flat string map.
var ErrNestedValue = errors.New("nested value")

// ModuleDocument is the parsed module configuration file:
//
//	modules:
//	  expression-algorithm:
//	    spelMinLength: 30
//	    spelBlackArray: [java.lang.Runtime, java.io.File]
type ModuleDocument struct {
	Modules map[string]map[string]string
	Hash    string // sha256 of the raw bytes, "sha256:<hex>"

	// Skipped lists "<module>.<key>" entries, or "<module>" for a body that
	// is not a mapping, left out of Modules. Those keys keep their defaults.
	Skipped []string
}

// Err reports the skipped entries, or nil when everything was usable.
func (d *ModuleDocument) Err() error {
	if len(d.Skipped) == 0 {
		return nil
	}
	return fmt.Errorf("%w in %s", ErrNestedValue, strings.Join(d.Skipped, ", "))
}

type rawDocument struct {
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoadModules reads and parses the module document at path. A missing file
// yields an empty document so every module starts from its defaults.
func LoadModules(path string) (*ModuleDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ParseModules(nil)
		}
		return nil, fmt.Errorf("LoadModules: %w", err)
	}
	doc, err := ParseModules(data)
	if err != nil {
		return nil, fmt.Errorf("LoadModules %s: %w", path, err)
	}
	return doc, nil
}

// ParseModules parses a module document. Scalars keep their literal text,
// sequences of scalars are joined with commas, and null becomes "".
// Only a document YAML cannot parse is an error; unusable keys are dropped
// and listed in Skipped.
func ParseModules(data []byte) (*ModuleDocument, error) {
	h := sha256.Sum256(data)
	doc := &ModuleDocument{
		Modules: map[string]map[string]string{},
		Hash:    "sha256:" + hex.EncodeToString(h[:]),
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse module document: %w", err)
	}
	for id, body := range raw.Modules {
		n := resolveAlias(&body)
		if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
			doc.Modules[id] = map[string]string{}
			continue
		}
		if n.Kind != yaml.MappingNode {
			doc.Skipped = append(doc.Skipped, id)
			continue
		}
		flat := make(map[string]string, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			v, err := scalarText(n.Content[i+1])
			if err != nil {
				doc.Skipped = append(doc.Skipped, id+"."+k)
				continue
			}
			flat[k] = v
		}
		doc.Modules[id] = flat
	}
	sort.Strings(doc.Skipped)
	return doc, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func scalarText(n *yaml.Node) (string, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "", nil
		}
		return n.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			c = resolveAlias(c)
			if c.Kind != yaml.ScalarNode {
				return "", ErrNestedValue
			}
			parts = append(parts, c.Value)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", ErrNestedValue
	}
}
