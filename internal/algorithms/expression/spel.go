// Package expression checks expression-language strings (SpEL and
// similar) before they are evaluated.
package expression

import (
	"strconv"
	"strings"

	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/module"
)

// SpelType is the registry id of the SpEL check.
const SpelType = "spel"

// ModuleID identifies the expression module in configuration documents.
const ModuleID = "expression-algorithm"

const (
	defaultMinLength      = 30
	defaultMaxLimitLength = 200
)

var spelBlackList = []string{
	"java.lang.Runtime",
	"java.lang.ProcessBuilder",
	"javax.script.ScriptEngineManager",
	"java.lang.System",
	"org.springframework.cglib.core.ReflectUtils",
	"java.io.File",
	"javax.management.remote.rmi.RMIConnector",
}

// SpelAlgorithm runs two independent checks on expressions at least
// minLength long: a class-reference blacklist and a maximum length.
// Expects params[0] to be the expression text.
type SpelAlgorithm struct {
	rep engine.Reporter
	cfg map[string]string

	minLength      int
	maxLimitLength int
	blackAction    engine.Action
	lengthAction   engine.Action
	blackList      []string
}

// NewSpel builds the check from a module configuration map.
// Recognized keys: spelMinLength, spelMaxLimitLength, spelBlackListAction,
// spelMaxLimitLengthAction, spelBlackArray.
func NewSpel(sink engine.Sink, cfg map[string]string) *SpelAlgorithm {
	return &SpelAlgorithm{
		rep:            engine.NewReporter(sink, SpelType, "spel check algorithm", "spel expression block by rasp."),
		cfg:            engine.CopyConfig(cfg),
		minLength:      engine.IntParam(cfg, "spelMinLength", defaultMinLength),
		maxLimitLength: engine.IntParam(cfg, "spelMaxLimitLength", defaultMaxLimitLength),
		blackAction:    engine.ActionParam(cfg, "spelBlackListAction", engine.ActionLog),
		lengthAction:   engine.ActionParam(cfg, "spelMaxLimitLengthAction", engine.ActionLog),
		blackList:      engine.ListParam(cfg, "spelBlackArray", spelBlackList),
	}
}

func (a *SpelAlgorithm) Type() string              { return SpelType }
func (a *SpelAlgorithm) Description() string       { return "spel check algorithm" }
func (a *SpelAlgorithm) Config() map[string]string { return a.cfg }

// Check reports at most one blacklist hit and at most one length hit.
// A blocking blacklist hit aborts before the length check runs.
func (a *SpelAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	expr, ok := engine.StringParam(params, 0)
	if !ok {
		return engine.Allow()
	}
	n := len([]rune(expr))
	if n < a.minLength {
		return engine.Allow()
	}

	v := engine.Allow()
	if a.blackAction.Enabled() {
		for _, s := range a.blackList {
			if strings.Contains(expr, s) {
				v = v.Merge(a.rep.Flag(cc, expr, a.blackAction, "expression hit black list, black class: "+s, engine.SeverityCritical))
				break
			}
		}
		if v.Blocked() {
			return v
		}
	}

	if a.lengthAction.Enabled() && n >= a.maxLimitLength {
		msg := "the length of the expression exceeds the max length, length: " + strconv.Itoa(n)
		v = v.Merge(a.rep.Flag(cc, expr, a.lengthAction, msg, engine.SeverityHigh))
	}
	return v
}

// Bundle exports the SpEL check as a module.
func Bundle() module.Bundle {
	return module.Bundle{
		ID: ModuleID,
		Algorithms: []module.Symbol{
			{Name: "expression.SpelAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewSpel(sink, cfg)
			}},
		},
	}
}
