package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseModules(t *testing.T) {
	doc, err := ParseModules([]byte(`
modules:
  expression-algorithm:
    spelMinLength: 30
    spelBlackListAction: 1
    spelBlackArray: [java.lang.Runtime, java.io.File]
  deserialization-algorithm:
    jsonWhiteClassList: ~
    xmlBlackListAction: "-1"
  sql-algorithm: {}
`))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]map[string]string{
		"expression-algorithm": {
			"spelMinLength":       "30",
			"spelBlackListAction": "1",
			"spelBlackArray":      "java.lang.Runtime,java.io.File",
		},
		"deserialization-algorithm": {
			"jsonWhiteClassList": "",
			"xmlBlackListAction": "-1",
		},
		"sql-algorithm": {},
	}
	if !reflect.DeepEqual(doc.Modules, want) {
		t.Errorf("got %v\nwant %v", doc.Modules, want)
	}
	if !strings.HasPrefix(doc.Hash, "sha256:") || len(doc.Hash) != len("sha256:")+64 {
		t.Errorf("unexpected hash %q", doc.Hash)
	}
}

func TestParseModules_LiteralsPreserved(t *testing.T) {
	doc, err := ParseModules([]byte("modules:\n  m:\n    n: 0x1F\n    f: 1.50\n    b: yes\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Modules["m"]; got["n"] != "0x1F" || got["f"] != "1.50" || got["b"] != "yes" {
		t.Errorf("literals rewritten: %v", got)
	}
}

func TestParseModules_UnusableKeysSkipped(t *testing.T) {
	doc, err := ParseModules([]byte(`
modules:
  expression-algorithm:
    spelMinLength: {oops: 1}
    spelMaxLimitLength: [[1]]
    spelBlackListAction: 1
  deserialization-algorithm:
    jsonBlackListAction: 1
  sql-algorithm: 5
  file-algorithm:
`))
	if err != nil {
		t.Fatalf("unusable keys must not fail the document: %v", err)
	}
	want := map[string]map[string]string{
		"expression-algorithm":      {"spelBlackListAction": "1"},
		"deserialization-algorithm": {"jsonBlackListAction": "1"},
		"file-algorithm":            {},
	}
	if !reflect.DeepEqual(doc.Modules, want) {
		t.Errorf("got %v\nwant %v", doc.Modules, want)
	}
	wantSkipped := []string{"expression-algorithm.spelMaxLimitLength", "expression-algorithm.spelMinLength", "sql-algorithm"}
	if !reflect.DeepEqual(doc.Skipped, wantSkipped) {
		t.Errorf("skipped = %v, want %v", doc.Skipped, wantSkipped)
	}
	if err := doc.Err(); !errors.Is(err, ErrNestedValue) {
		t.Errorf("expected ErrNestedValue from Err, got %v", err)
	}
}

func TestParseModules_Aliases(t *testing.T) {
	doc, err := ParseModules([]byte(`
base: &base
  fileReadAction: 1
list: &exts [.jsp, .php]
modules:
  file-algorithm: *base
  upload:
    fileUploadBlackExts: *exts
`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Modules["file-algorithm"]["fileReadAction"] != "1" || doc.Modules["upload"]["fileUploadBlackExts"] != ".jsp,.php" {
		t.Errorf("aliases not followed: %v", doc.Modules)
	}
	if doc.Err() != nil {
		t.Errorf("unexpected skipped %v", doc.Skipped)
	}
}

func TestParseModules_InvalidYAML(t *testing.T) {
	if _, err := ParseModules([]byte("modules: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseModules_HashTracksContent(t *testing.T) {
	a, _ := ParseModules([]byte("modules: {}\n"))
	b, _ := ParseModules([]byte("modules: {}\n"))
	c, _ := ParseModules([]byte("modules: {m: {k: v}}\n"))
	if a.Hash != b.Hash || a.Hash == c.Hash {
		t.Errorf("hash must follow content: %s %s %s", a.Hash, b.Hash, c.Hash)
	}
}

func TestLoadModules_MissingFileIsEmpty(t *testing.T) {
	doc, err := LoadModules(filepath.Join(t.TempDir(), "modules.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Modules) != 0 {
		t.Errorf("expected no modules, got %v", doc.Modules)
	}
}

func TestLoadModules_File(t *testing.T) {
	path := writeFile(t, "modules.yaml", "modules:\n  file-algorithm:\n    fileReadAction: 1\n")
	doc, err := LoadModules(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Modules["file-algorithm"]["fileReadAction"] != "1" {
		t.Errorf("got %v", doc.Modules)
	}
}
