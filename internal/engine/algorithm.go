package engine

import (
	"errors"
	"time"
)

// Algorithm is the interface every detection algorithm must implement.
// Check is called concurrently from many goroutines; implementations keep
// their configuration read-only after construction and hold no per-call state.
type Algorithm interface {
	// Type returns the algorithm's unique identifier (e.g., "spel"). It is the registry key.
	Type() string

	// Description returns a short human-readable description.
	Description() string

	// Check inspects the intercepted call's parameters. It reports every hit
	// to the sink before returning and never blocks on I/O beyond that.
	Check(cc *CallContext, params ...any) Verdict
}

// Configured is implemented by algorithms that expose the configuration map
// they were built from.
type Configured interface {
	Config() map[string]string
}

// Factory builds an algorithm from a module configuration map. A nil map
// yields the compiled-in defaults.
type Factory func(sink Sink, cfg map[string]string) Algorithm

// Sink receives audit records. Implementations must not block the caller
// and must not panic back into the detection path.
type Sink interface {
	Attack(info AttackInfo)
	Info(msg string)
}

// Reporter turns a hit into an AttackInfo, sends it to the sink and builds
// the verdict. Algorithms embed one.
type Reporter struct {
	sink        Sink
	typ         string
	description string
	blockCause  error
}

// NewReporter creates a Reporter for one algorithm type. blockMessage
// becomes the cause carried by the abort signal.
func NewReporter(sink Sink, typ, description, blockMessage string) Reporter {
	return Reporter{
		sink:        sink,
		typ:         typ,
		description: description,
		blockCause:  errors.New(blockMessage),
	}
}

// Flag records a hit. With a blocking action the verdict carries an
// immediate abort signal; otherwise the operation is allowed to proceed.
func (r Reporter) Flag(cc *CallContext, subject string, action Action, message string, severity int) Verdict {
	info := AttackInfo{
		Context:       cc,
		Subject:       subject,
		Blocked:       action.Blocks(),
		AlgorithmType: r.typ,
		Description:   r.description,
		Message:       message,
		Severity:      severity,
		DetectedAt:    time.Now(),
	}
	if r.sink != nil {
		r.sink.Attack(info)
	}

	v := Verdict{Decision: DecisionAllow, Attacks: []AttackInfo{info}}
	if info.Blocked {
		v.Decision = DecisionBlock
		v.Signal = &AbortSignal{Cause: r.blockCause, Mode: RaiseImmediately, Attack: info}
	}
	return v
}

// StringParam returns params[i] as a string. Missing or non-string values
// yield ok=false.
func StringParam(params []any, i int) (string, bool) {
	if i < 0 || i >= len(params) {
		return "", false
	}
	switch v := params[i].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case interface{ String() string }:
		return v.String(), true
	default:
		return "", false
	}
}
