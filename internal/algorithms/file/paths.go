// Package file checks file reads, deletes, directory listings and uploads
// against path policies.
package file

import (
	"path/filepath"
	"strings"

	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/module"
)

// ModuleID identifies the file module in configuration documents.
const ModuleID = "file-algorithm"

// hasTraversal reports whether any segment of the raw path is "..".
// Both separators are accepted so Windows-style input is caught too.
func hasTraversal(raw string) bool {
	for _, seg := range strings.FieldsFunc(raw, isSep) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isSep(r rune) bool {
	return r == '/' || r == '\\'
}

// normalize cleans p into slash form. It runs after the traversal check,
// since cleaning removes the ".." segments.
func normalize(p string) string {
	return filepath.ToSlash(filepath.Clean(strings.ReplaceAll(p, `\`, "/")))
}

// matchPath reports whether clean is covered by entry. Absolute entries
// cover themselves and everything below them ("/" covers only itself);
// relative entries match as a path suffix. Matching ignores case, since the
// protected files are reachable under any casing on case-insensitive
// filesystems.
func matchPath(clean, entry string) bool {
	clean = strings.ToLower(clean)
	entry = strings.ToLower(normalize(entry))
	if clean == entry {
		return true
	}
	if strings.HasPrefix(entry, "/") {
		return entry != "/" && strings.HasPrefix(clean, entry+"/")
	}
	return strings.HasSuffix(clean, "/"+entry)
}

func firstMatch(clean string, entries []string) (string, bool) {
	for _, e := range entries {
		if matchPath(clean, e) {
			return e, true
		}
	}
	return "", false
}

// Bundle exports the four file checks as one module.
func Bundle() module.Bundle {
	return module.Bundle{
		ID: ModuleID,
		Algorithms: []module.Symbol{
			{Name: "file.FileListAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewList(sink, cfg)
			}},
			{Name: "file.FileDeleteAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewDelete(sink, cfg)
			}},
			{Name: "file.FileReadAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewRead(sink, cfg)
			}},
			{Name: "file.FileUploadAlgorithm", Factory: func(sink engine.Sink, cfg map[string]string) engine.Algorithm {
				return NewUpload(sink, cfg)
			}},
		},
	}
}
