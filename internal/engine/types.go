package engine

import (
	"time"

	"github.com/google/uuid"
)

// Action is the configured policy of a single check.
type Action int

const (
	ActionDisabled Action = -1 // any negative value turns the check off
	ActionLog      Action = 0  // record only (default, fail open)
	ActionBlock    Action = 1  // record and abort the intercepted operation
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch {
	case a < 0:
		return "disabled"
	case a == ActionBlock:
		return "block"
	default:
		return "log"
	}
}

// Enabled reports whether the check guarded by a should run at all.
func (a Action) Enabled() bool {
	return a >= 0
}

// Blocks reports whether a hit aborts the operation. Only the exact value 1 blocks.
func (a Action) Blocks() bool {
	return a == ActionBlock
}

// Severity levels used by the bundled algorithms.
const (
	SeverityCritical = 90 // exact blacklist hit
	SeverityHigh     = 80 // package or policy hit
	SeverityMedium   = 50 // keyword heuristics
)

// CallContext identifies one intercepted call. It is supplied by the
// interception layer and passed through unchanged to algorithms and into
// the attack record.
type CallContext struct {
	RequestID  string
	Method     string
	URI        string
	RemoteAddr string
	Headers    map[string]string
	Parameters map[string][]string // request parameters, used by input-correlating checks
	StackTrace []string
	Attributes map[string]string
}

// NewCallContext returns a CallContext with a fresh request id.
func NewCallContext() *CallContext {
	return &CallContext{RequestID: uuid.New().String()}
}

// AttackInfo is the audit record of one positive detection.
// It is passed by value so a recorded attack cannot be altered afterwards.
type AttackInfo struct {
	Context       *CallContext
	Subject       string // the parameter that triggered detection
	Blocked       bool
	AlgorithmType string
	Description   string
	Message       string
	Severity      int // 0-100
	DetectedAt    time.Time
}
