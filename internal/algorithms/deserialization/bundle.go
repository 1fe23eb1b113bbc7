package deserialization

import (
	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/module"
)

// ModuleID identifies the deserialization module in configuration documents.
const ModuleID = "deserialization-algorithm"

// Bundle exports the JSON/YAML and XML checks as one module.
func Bundle() module.Bundle {
	return module.Bundle{
		ID: ModuleID,
		Algorithms: []module.Symbol{
			{Name: "deserialization.JsonAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewJSON(sink, cfg)
			}},
			{Name: "deserialization.XmlAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewXML(sink, cfg)
			}},
		},
	}
}
