package engine

import (
	"strconv"
	"strings"
)

// Module configuration maps are flat string->string. The helpers below never
// fail: a missing, blank, or malformed value returns the compiled-in default.

// IntParam returns cfg[key] parsed as an integer, or def.
func IntParam(cfg map[string]string, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

// ActionParam returns cfg[key] as an Action, or def.
func ActionParam(cfg map[string]string, key string, def Action) Action {
	return Action(IntParam(cfg, key, int(def)))
}

// ListParam returns cfg[key] split on commas with blanks dropped, or def.
// An explicitly empty value also yields def.
func ListParam(cfg map[string]string, key string, def []string) []string {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// SetParam is ListParam collected into a set.
func SetParam(cfg map[string]string, key string, def []string) map[string]struct{} {
	list := ListParam(cfg, key, def)
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

// CopyConfig returns a private copy of cfg. Algorithms keep the copy so the
// caller's map can change without affecting a live instance.
func CopyConfig(cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
