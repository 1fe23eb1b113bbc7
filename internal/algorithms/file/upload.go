package file

import (
	"path"
	"strings"

	"github.com/triage-ai/rasp-agent/internal/engine"
)

// UploadType is the registry id of the file upload check.
const UploadType = "file-upload"

var defaultUploadBlackExts = []string{
	".jsp", ".jspx", ".jspf", ".php", ".phtml", ".php5",
	".asp", ".aspx", ".ashx", ".cer", ".war", ".sh", ".exe",
}

// UploadAlgorithm flags uploaded files whose name escapes the upload
// directory or carries a script or executable extension.
// Expects params[0] to be the destination file name.
type UploadAlgorithm struct {
	rep    engine.Reporter
	cfg    map[string]string
	action engine.Action
	exts   map[string]struct{}
}

// NewUpload builds the check. Recognized keys: fileUploadAction,
// fileUploadBlackExts.
func NewUpload(sink engine.Sink, cfg map[string]string) *UploadAlgorithm {
	exts := make(map[string]struct{})
	for _, e := range engine.ListParam(cfg, "fileUploadBlackExts", defaultUploadBlackExts) {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	return &UploadAlgorithm{
		rep:    engine.NewReporter(sink, UploadType, "file upload algorithm", "file upload block by rasp."),
		cfg:    engine.CopyConfig(cfg),
		action: engine.ActionParam(cfg, "fileUploadAction", engine.ActionLog),
		exts:   exts,
	}
}

func (a *UploadAlgorithm) Type() string              { return UploadType }
func (a *UploadAlgorithm) Description() string       { return "file upload algorithm" }
func (a *UploadAlgorithm) Config() map[string]string { return a.cfg }

func (a *UploadAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	raw, ok := engine.StringParam(params, 0)
	if !ok || raw == "" || !a.action.Enabled() {
		return engine.Allow()
	}
	if hasTraversal(raw) {
		return a.rep.Flag(cc, raw, a.action, "path traversal in upload file name, name: "+raw, engine.SeverityCritical)
	}
	// Trailing dots and spaces are dropped by some filesystems, so
	// "shell.jsp." would land as "shell.jsp".
	base := strings.TrimRight(path.Base(normalize(raw)), ". ")
	ext := strings.ToLower(path.Ext(base))
	if _, hit := a.exts[ext]; hit {
		return a.rep.Flag(cc, raw, a.action, "upload script file, extension: "+ext, engine.SeverityCritical)
	}
	return engine.Allow()
}
