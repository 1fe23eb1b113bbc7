package loader

import (
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"
)

// RoutingRule pins symbol names matching any of its patterns to Owner.
type RoutingRule struct {
	Owner    Resolver
	Patterns []string // full-match regular expressions, evaluated in order
}

// Route builds a RoutingRule.
func Route(owner Resolver, patterns ...string) RoutingRule {
	return RoutingRule{Owner: owner, Patterns: patterns}
}

// compiledRule is a RoutingRule whose patterns have been compiled and anchored.
type compiledRule struct {
	owner    Resolver
	patterns []*regexp.Regexp
}

func (r compiledRule) hit(name string) bool {
	for _, re := range r.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// compileRules anchors each pattern so it must match the whole name.
// Patterns that do not compile are logged and dropped; a rule left with no
// patterns never matches.
func compileRules(rules []RoutingRule, logger *zap.Logger) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.Owner == nil {
			logger.Warn("routing rule has no owner, skipping", zap.Int("rule", i))
			continue
		}
		cr := compiledRule{owner: rule.Owner}
		for _, p := range rule.Patterns {
			re, err := regexp.Compile(`^(?:` + p + `)$`)
			if err != nil {
				logger.Warn("invalid routing pattern, skipping",
					zap.Int("rule", i),
					zap.String("pattern", p),
					zap.Error(err),
				)
				continue
			}
			cr.patterns = append(cr.patterns, re)
		}
		out = append(out, cr)
	}
	return out
}

// BusinessHolder is the replaceable single slot for the host application's
// resolver. The composition root owns it and hands it to every loader that
// should fall back to the host.
type BusinessHolder struct {
	slot atomic.Pointer[resolverBox]
}

type resolverBox struct {
	r Resolver
}

// Set installs r as the business resolver. Passing nil clears the slot.
func (h *BusinessHolder) Set(r Resolver) {
	if r == nil {
		h.slot.Store(nil)
		return
	}
	h.slot.Store(&resolverBox{r: r})
}

// Get returns the current business resolver, or nil.
func (h *BusinessHolder) Get() Resolver {
	if h == nil {
		return nil
	}
	b := h.slot.Load()
	if b == nil {
		return nil
	}
	return b.r
}
