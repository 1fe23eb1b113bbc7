package file

import (
	"github.com/triage-ai/rasp-agent/internal/engine"
)

// DeleteType is the registry id of the file delete check.
const DeleteType = "file-delete"

var defaultProtectedDirs = []string{
	"/",
	"/bin",
	"/boot",
	"/etc",
	"/lib",
	"/lib64",
	"/root",
	"/sbin",
	"/usr",
	"/var/lib",
}

// DeleteAlgorithm flags deletes that traverse out of their base directory
// or touch a protected system location. Expects params[0] to be the path.
type DeleteAlgorithm struct {
	rep       engine.Reporter
	cfg       map[string]string
	action    engine.Action
	protected []string
}

// NewDelete builds the check. Recognized keys: fileDeleteAction,
// fileDeleteProtectedDirs.
func NewDelete(sink engine.Sink, cfg map[string]string) *DeleteAlgorithm {
	return &DeleteAlgorithm{
		rep:       engine.NewReporter(sink, DeleteType, "file delete algorithm", "file delete block by rasp."),
		cfg:       engine.CopyConfig(cfg),
		action:    engine.ActionParam(cfg, "fileDeleteAction", engine.ActionLog),
		protected: engine.ListParam(cfg, "fileDeleteProtectedDirs", defaultProtectedDirs),
	}
}

func (a *DeleteAlgorithm) Type() string              { return DeleteType }
func (a *DeleteAlgorithm) Description() string       { return "file delete algorithm" }
func (a *DeleteAlgorithm) Config() map[string]string { return a.cfg }

func (a *DeleteAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	raw, ok := engine.StringParam(params, 0)
	if !ok || raw == "" || !a.action.Enabled() {
		return engine.Allow()
	}
	if hasTraversal(raw) {
		return a.rep.Flag(cc, raw, a.action, "path traversal in file delete, path: "+raw, engine.SeverityCritical)
	}
	clean := normalize(raw)
	if entry, hit := firstMatch(clean, a.protected); hit {
		return a.rep.Flag(cc, raw, a.action, "delete in protected directory, path: "+clean+", rule: "+entry, engine.SeverityHigh)
	}
	return engine.Allow()
}
