package deserialization

import (
	"github.com/triage-ai/rasp-agent/internal/engine"
)

// XMLType is the registry id of the XML deserialization check.
const XMLType = "xml-deserialization"

var xmlBlackClasses = []string{
	"java.io.PrintWriter",
	"java.io.FileInputStream",
	"java.io.FileOutputStream",
	"java.util.PriorityQueue",
	"javax.sql.rowset.BaseRowSet",
	"javax.activation.DataSource",
	"java.nio.channels.Channel",
	"java.io.InputStream",
	"java.lang.ProcessBuilder",
	"java.lang.Runtime",
	"javafx.collections.ObservableList",
	"java.beans.EventHandler",
	"sun.swing.SwingLazyValue",
	"java.io.File",
}

var xmlBlackPackages = []string{
	"sun.reflect",
	"sun.tracing",
	"com.sun.corba",
	"javax.crypto",
	"jdk.nashorn.internal",
	"sun.awt.datatransfer",
	"com.sun.tools",
	"javax.imageio",
	"com.sun.rowset",
}

// Fragments of gadget class names that show up in known XStream chains.
var xmlBlackKeys = []string{
	".jndi.",
	".rmi.",
	".bcel.",
	".xsltc.trax.TemplatesImpl",
	".ws.client.sei.",
	"$URLData",
	"$LazyIterator",
	"$GetterSetterReflection",
	"$PrivilegedGetter",
	"$ProxyLazyValue",
	"$ServiceNameIterator",
}

// XMLAlgorithm flags class names resolved by XML deserializers.
// Expects params[0] to be the fully qualified class name.
type XMLAlgorithm struct {
	rep    engine.Reporter
	cfg    map[string]string
	action engine.Action
	white  map[string]struct{}
	deny   denyList
}

// NewXML builds the check from a module configuration map.
// Recognized keys: xmlBlackListAction, xmlWhiteClassList.
func NewXML(sink engine.Sink, cfg map[string]string) *XMLAlgorithm {
	return &XMLAlgorithm{
		rep: engine.NewReporter(sink, XMLType, "xml deserialization algorithm",
			"xml deserialization attack block by rasp."),
		cfg:    engine.CopyConfig(cfg),
		action: engine.ActionParam(cfg, "xmlBlackListAction", engine.ActionLog),
		white:  engine.SetParam(cfg, "xmlWhiteClassList", nil),
		deny:   newDenyList(xmlBlackClasses, xmlBlackPackages, xmlBlackKeys),
	}
}

func (a *XMLAlgorithm) Type() string              { return XMLType }
func (a *XMLAlgorithm) Description() string       { return "xml deserialization algorithm" }
func (a *XMLAlgorithm) Config() map[string]string { return a.cfg }

func (a *XMLAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
	className, ok := engine.StringParam(params, 0)
	if !ok || !a.action.Enabled() {
		return engine.Allow()
	}
	if _, ok := a.white[className]; ok {
		return engine.Allow()
	}
	msg, severity, hit := a.deny.match(className)
	if !hit {
		return engine.Allow()
	}
	return a.rep.Flag(cc, className, a.action, msg, severity)
}
