// Package sqli checks SQL statements before they reach the database
// driver. Each supported dialect registers its own algorithm; MySQL is
// the only dialect bundled.
package sqli

import (
	"sort"
	"strings"

	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/module"
)

// MySQLType is the registry id of the MySQL check.
const MySQLType = "mysql"

// ModuleID identifies the SQL module in configuration documents.
const ModuleID = "sql-algorithm"

const defaultMinParamLength = 5

// Functions that read files, stall the server or leak data through errors.
var dangerousFunctions = map[string]struct{}{
	"load_file":    {},
	"sleep":        {},
	"benchmark":    {},
	"updatexml":    {},
	"extractvalue": {},
	"get_lock":     {},
	"sys_exec":     {},
	"sys_eval":     {},
}

// MySQLAlgorithm runs two independent checks on a statement:
// request parameters that change its token structure, and statement
// features ordinary application queries do not use.
// Expects params[0] to be the statement text.
type MySQLAlgorithm struct {
	rep engine.Reporter
	cfg map[string]string

	minParamLength int
	inputAction    engine.Action
	policyAction   engine.Action
}

// NewMySQL builds the check from a module configuration map.
// Recognized keys: mysqlMinParamLength, mysqlUserInputAction, mysqlPolicyAction.
func NewMySQL(sink engine.Sink, cfg map[string]string) *MySQLAlgorithm {
	return &MySQLAlgorithm{
		rep:            engine.NewReporter(sink, MySQLType, "mysql sql injection algorithm", "sql injection block by rasp."),
		cfg:            engine.CopyConfig(cfg),
		minParamLength: engine.IntParam(cfg, "mysqlMinParamLength", defaultMinParamLength),
		inputAction:    engine.ActionParam(cfg, "mysqlUserInputAction", engine.ActionLog),
		policyAction:   engine.ActionParam(cfg, "mysqlPolicyAction", engine.ActionLog),
	}
}

func (a *MySQLAlgorithm) Type() string              { return MySQLType }
func (a *MySQLAlgorithm) Description() string       { return "mysql sql injection algorithm" }
func (a *MySQLAlgorithm) Config() map[string]string { return a.cfg }

func (a *MySQLAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	query, ok := engine.StringParam(params, 0)
	if !ok || strings.TrimSpace(query) == "" {
		return engine.Allow()
	}
	if !a.inputAction.Enabled() && !a.policyAction.Enabled() {
		return engine.Allow()
	}
	toks := tokenize(query)

	v := engine.Allow()
	if a.inputAction.Enabled() && cc != nil {
		if name, hit := a.userInput(cc.Parameters, query, toks); hit {
			v = v.Merge(a.rep.Flag(cc, query, a.inputAction,
				"sql statement structure altered by user input, parameter: "+name, engine.SeverityCritical))
			if v.Blocked() {
				return v
			}
		}
	}

	if a.policyAction.Enabled() {
		if reason, hit := policy(toks); hit {
			v = v.Merge(a.rep.Flag(cc, query, a.policyAction, "sql policy violation: "+reason, engine.SeverityHigh))
		}
	}
	return v
}

// userInput reports the first request parameter that appears in query and
// spans more than one token. Parameter names are visited in sorted order.
func (a *MySQLAlgorithm) userInput(params map[string][]string, query string, toks []token) (string, bool) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range params[name] {
			if len(value) < a.minParamLength {
				continue
			}
			start := strings.Index(query, value)
			if start < 0 {
				continue
			}
			if spanned(toks, start, start+len(value)) > 1 {
				return name, true
			}
		}
	}
	return "", false
}

func spanned(toks []token, start, end int) int {
	n := 0
	for _, t := range toks {
		if t.start < end && t.end > start {
			n++
		}
	}
	return n
}

// policy reports the first policy the statement violates.
func policy(toks []token) (string, bool) {
	for i, t := range toks {
		switch t.kind {
		case tokSemicolon:
			if next(toks, i) != nil {
				return "stacked queries", true
			}
		case tokComment:
			if strings.HasPrefix(t.text, "/*!") {
				return "version comment", true
			}
		case tokIdent:
			lower := strings.ToLower(t.text)
			if _, ok := dangerousFunctions[lower]; ok {
				if n := next(toks, i); n != nil && n.text == "(" {
					return "dangerous function " + lower, true
				}
			}
			if t.is("into") {
				if n := next(toks, i); n != nil && (n.is("outfile") || n.is("dumpfile")) {
					return "into " + strings.ToLower(n.text), true
				}
			}
		}
		// A constant comparison joined by AND is a no-op, as in the
		// `WHERE 1=1 AND ...` prefix of generated queries. Only one that
		// widens the predicate through OR counts.
		if disjunction(t) && tautology(toks[i+1:]) {
			return "constant comparison after " + strings.ToLower(t.text), true
		}
		if t.is("where") || t.is("having") || t.is("and") || t.text == "&&" {
			if i+4 < len(toks) && tautology(toks[i+1:]) && disjunction(toks[i+4]) {
				return "constant comparison before " + strings.ToLower(toks[i+4].text), true
			}
		}
	}
	return "", false
}

func disjunction(t token) bool {
	return t.is("or") || t.kind == tokOperator && t.text == "||"
}

// next returns the token after i, skipping comments.
func next(toks []token, i int) *token {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind != tokComment {
			return &toks[j]
		}
	}
	return nil
}

// tautology matches a leading `lit = lit` where both literals are equal,
// such as 1=1 or 'a'='a'.
func tautology(toks []token) bool {
	if len(toks) < 3 {
		return false
	}
	l, op, r := toks[0], toks[1], toks[2]
	if op.kind != tokOperator || op.text != "=" && op.text != "<=>" {
		return false
	}
	if l.kind != r.kind || l.kind != tokNumber && l.kind != tokString {
		return false
	}
	return unquote(l.text) == unquote(r.text)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Bundle exports the bundled SQL dialect checks as a module.
func Bundle() module.Bundle {
	return module.Bundle{
		ID: ModuleID,
		Algorithms: []module.Symbol{
			{Name: "sql.MySqlAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewMySQL(sink, cfg)
			}},
		},
	}
}
