package engine

import (
	"errors"
	"fmt"
)

// Decision is the outcome of a check.
type Decision int

const (
	DecisionAllow Decision = iota + 1
	DecisionBlock
)

// String returns the lowercase decision name.
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionBlock:
		return "block"
	default:
		return "unspecified"
	}
}

// RaiseMode says where the interception layer should unwind.
type RaiseMode int

const (
	// RaiseImmediately aborts at the checked call-site, before the operation runs.
	RaiseImmediately RaiseMode = iota + 1
	// RaiseAfterFrame lets the current frame complete first.
	RaiseAfterFrame
)

// AbortSignal tells the interception layer to abort the original operation.
// The layer decides what the caller finally sees.
type AbortSignal struct {
	Cause  error // may be nil
	Mode   RaiseMode
	Attack AttackInfo
}

// Error implements the error interface.
func (s *AbortSignal) Error() string {
	if s.Cause != nil {
		return fmt.Sprintf("rasp: %s blocked: %v", s.Attack.AlgorithmType, s.Cause)
	}
	return fmt.Sprintf("rasp: %s blocked: %s", s.Attack.AlgorithmType, s.Attack.Message)
}

// Unwrap returns the triggering cause.
func (s *AbortSignal) Unwrap() error {
	return s.Cause
}

// Immediate reports whether the signal must interrupt at the call-site.
func (s *AbortSignal) Immediate() bool {
	return s.Mode == RaiseImmediately
}

// AsAbort extracts an AbortSignal from err.
func AsAbort(err error) (*AbortSignal, bool) {
	var s *AbortSignal
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Verdict is what a check returns: allow, or block with the signal to raise.
// Attacks recorded in log mode ride along on an allow verdict.
type Verdict struct {
	Decision Decision
	Signal   *AbortSignal // non-nil iff Decision == DecisionBlock
	Attacks  []AttackInfo
}

// Allow is the verdict of a check that found nothing.
func Allow() Verdict {
	return Verdict{Decision: DecisionAllow}
}

// Blocked reports whether the operation must be aborted.
func (v Verdict) Blocked() bool {
	return v.Decision == DecisionBlock
}

// Err returns the abort signal as an error, or nil when the operation may proceed.
func (v Verdict) Err() error {
	if v.Signal == nil {
		return nil
	}
	return v.Signal
}

// Merge combines two verdicts from the same call. Attacks accumulate and the
// first block wins.
func (v Verdict) Merge(o Verdict) Verdict {
	out := Allow()
	out.Attacks = append(append(out.Attacks, v.Attacks...), o.Attacks...)
	switch {
	case v.Blocked():
		out.Decision, out.Signal = DecisionBlock, v.Signal
	case o.Blocked():
		out.Decision, out.Signal = DecisionBlock, o.Signal
	}
	return out
}
