package deserialization

import (
	"github.com/triage-ai/rasp-agent/internal/engine"
)

// JSONType is the registry id of the JSON/YAML deserialization check.
const JSONType = "json-yaml-deserialization"

var jsonBlackClasses = []string{
	"org.apache.commons.collections.Transformer",
	"java.lang.Thread",
	"java.net.Socket",
	"java.net.URL",
	"java.net.InetAddress",
	"java.lang.Class",
	"oracle.jdbc.rowset.OracleJDBCRowSet",
	"oracle.jdbc.connector.OracleManagedConnectionFactory",
	"java.lang.UNIXProcess",
	"java.lang.AutoCloseable",
	"java.lang.Runnable",
	"java.util.EventListener",
	"java.io.PrintWriter",
	"java.io.FileInputStream",
	"java.io.FileOutputStream",
	"java.util.PriorityQueue",
	"java.lang.Runtime",
	"java.lang.ProcessBuilder",
}

var jsonBlackPackages = []string{
	"org.apache.commons.collections.functors",
	"org.apache.commons.collections4.functors",
	"org.apache.commons.collections4.comparators",
	"org.python.core",
	"org.apache.tomcat",
	"org.apache.xalan",
	"javax.xml",
	"org.springframework",
	"org.apache.commons.beanutils",
	"org.codehaus.groovy.runtime",
	"javax.net",
	"com.mchange",
	"org.apache.wicket.util",
	"java.util.jar",
	"org.mozilla.javascript",
	"java.rmi",
	"java.util.prefs",
	"com.sun",
	"java.util.logging",
	"org.apache.bcel",
	"org.apache.commons.fileupload",
	"org.hibernate",
	"org.jboss",
	"org.apache.myfaces.context.servlet",
	"org.apache.ibatis.datasource",
	"org.apache.log4j",
	"org.apache.logging",
	"org.apache.commons.dbcp",
	"com.ibatis.sqlmap.engine.datasource",
	"javassist",
	"oracle.net",
	"com.alibaba.fastjson.annotation",
	"com.zaxxer.hikari",
	"ch.qos.logback",
	"com.mysql.cj.jdbc.admin",
	"org.apache.ibatis.parsing",
	"org.apache.ibatis.executor",
	"com.caucho",
}

// JSONAlgorithm flags class names resolved by JSON and YAML deserializers.
// Expects params[0] to be the fully qualified class name.
type JSONAlgorithm struct {
	rep    engine.Reporter
	cfg    map[string]string
	action engine.Action
	white  map[string]struct{}
	deny   denyList
}

// NewJSON builds the check from a module configuration map.
// Recognized keys: jsonBlackListAction, jsonWhiteClassList.
func NewJSON(sink engine.Sink, cfg map[string]string) *JSONAlgorithm {
	return &JSONAlgorithm{
		rep: engine.NewReporter(sink, JSONType, "json/yaml deserialization algorithm",
			"json/yaml deserialization attack block by rasp."),
		cfg:    engine.CopyConfig(cfg),
		action: engine.ActionParam(cfg, "jsonBlackListAction", engine.ActionLog),
		white:  engine.SetParam(cfg, "jsonWhiteClassList", nil),
		deny:   newDenyList(jsonBlackClasses, jsonBlackPackages, nil),
	}
}

func (a *JSONAlgorithm) Type() string              { return JSONType }
func (a *JSONAlgorithm) Description() string       { return "json/yaml deserialization algorithm" }
func (a *JSONAlgorithm) Config() map[string]string { return a.cfg }

func (a *JSONAlgorithm) Check(cc *engine.CallContext, params ...any) engine.Verdict {
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
