// Package deserialization checks class names handed to JSON/YAML and XML
// deserializers against class, package and keyword deny lists.
package deserialization

import (
	"strings"

	"github.com/triage-ai/rasp-agent/internal/engine"
)

const hitPrefix = "deserialization class hit black list, "

// denyList is evaluated in severity order: exact class, package prefix,
// then substring keyword. The first hit wins.
type denyList struct {
	classes  map[string]struct{}
	packages []string
	keys     []string
}

func newDenyList(classes, packages, keys []string) denyList {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return denyList{classes: set, packages: packages, keys: keys}
}

func (l denyList) match(className string) (message string, severity int, ok bool) {
	if _, hit := l.classes[className]; hit {
		return hitPrefix + "class: " + className, engine.SeverityCritical, true
	}
	if pkg, hit := matchPackage(className, l.packages); hit {
		return hitPrefix + "package: " + pkg, engine.SeverityHigh, true
	}
	for _, k := range l.keys {
		if strings.Contains(className, k) {
			return hitPrefix + "key: " + k, engine.SeverityMedium, true
		}
	}
	return "", 0, false
}

// matchPackage reports the first package that className belongs to.
// "org.springframework" matches "org.springframework.foo.Bar" but not
// "org.springframeworkx.Bar".
func matchPackage(className string, packages []string) (string, bool) {
	for _, pkg := range packages {
		if className == pkg || strings.HasPrefix(className, pkg+".") {
			return pkg, true
		}
	}
	return "", false
}
