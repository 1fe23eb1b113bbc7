package file

import (
	"github.com/triage-ai/rasp-agent/internal/engine"
)

// ReadType is the registry id of the file read check.
const ReadType = "file-read"

var defaultReadBlackList = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/group",
	"/etc/sudoers",
	"/root/.ssh",
	"/root/.bash_history",
	"/proc/self/environ",
	"/proc/self/cmdline",
	"WEB-INF/web.xml",
	".git/config",
	".ssh/id_rsa",
}

// ReadAlgorithm flags reads that traverse out of their base directory or
// target a well-known sensitive file. Expects params[0] to be the path.
type ReadAlgorithm struct {
	rep       engine.Reporter
	cfg       map[string]string
	action    engine.Action
	blackList []string
}

// NewRead builds the check. Recognized keys: fileReadAction, fileReadBlackList.
func NewRead(sink engine.Sink, cfg map[string]string) *ReadAlgorithm {
	return &ReadAlgorithm{
		rep:       engine.NewReporter(sink, ReadType, "file read algorithm", "file read block by rasp."),
		cfg:       engine.CopyConfig(cfg),
		action:    engine.ActionParam(cfg, "fileReadAction", engine.ActionLog),
		blackList: engine.ListParam(cfg, "fileReadBlackList", defaultReadBlackList),
	}
}

func (a *ReadAlgorithm) Type() string              { return ReadType }
func (a *ReadAlgorithm) Description() string       { return "file read algorithm" }
func (a *ReadAlgorithm) Config() map[string]string { return a.cfg }

func (a *ReadAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	raw, ok := engine.StringParam(params, 0)
	if !ok || raw == "" || !a.action.Enabled() {
		return engine.Allow()
	}
	if hasTraversal(raw) {
		return a.rep.Flag(cc, raw, a.action, "path traversal in file read, path: "+raw, engine.SeverityCritical)
	}
	clean := normalize(raw)
	if entry, hit := firstMatch(clean, a.blackList); hit {
		return a.rep.Flag(cc, raw, a.action, "read sensitive file, path: "+clean+", rule: "+entry, engine.SeverityHigh)
	}
	return engine.Allow()
}
