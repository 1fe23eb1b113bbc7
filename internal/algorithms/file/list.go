package file

import (
	"github.com/triage-ai/rasp-agent/internal/engine"
)

// ListType is the registry id of the directory listing check.
const ListType = "file-list"

var defaultListBlackDirs = []string{
	"/",
	"/etc",
	"/root",
	"/home",
	"/proc",
	"/var/log",
	"/tmp",
}

// ListAlgorithm flags listings of sensitive directories. Unlike the read
// and delete checks, only the directory itself matches, not its children.
// Expects params[0] to be the directory.
type ListAlgorithm struct {
	rep    engine.Reporter
	cfg    map[string]string
	action engine.Action
	dirs   map[string]struct{}
}

// NewList builds the check. Recognized keys: fileListAction, fileListBlackDirs.
func NewList(sink engine.Sink, cfg map[string]string) *ListAlgorithm {
	dirs := make(map[string]struct{})
	for _, d := range engine.ListParam(cfg, "fileListBlackDirs", defaultListBlackDirs) {
		dirs[normalize(d)] = struct{}{}
	}
	return &ListAlgorithm{
		rep:    engine.NewReporter(sink, ListType, "file list algorithm", "file list block by rasp."),
		cfg:    engine.CopyConfig(cfg),
		action: engine.ActionParam(cfg, "fileListAction", engine.ActionLog),
		dirs:   dirs,
	}
}

func (a *ListAlgorithm) Type() string              { return ListType }
func (a *ListAlgorithm) Description() string       { return "file list algorithm" }
func (a *ListAlgorithm) Config() map[string]string { return a.cfg }

func (a *ListAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	raw, ok := engine.StringParam(params, 0)
	if !ok || raw == "" || !a.action.Enabled() {
		return engine.Allow()
	}
	clean := normalize(raw)
	if _, hit := a.dirs[clean]; hit {
		return a.rep.Flag(cc, raw, a.action, "list sensitive directory, path: "+clean, engine.SeverityHigh)
	}
	return engine.Allow()
}
