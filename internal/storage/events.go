package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/triage-ai/rasp-agent/internal/engine"
)

// EventWriter is the interface for writing attack events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *AttackEvent)
	Close()
}

// AttackEvent is the persisted form of one engine.AttackInfo.
type AttackEvent struct {
	EventID        string
	RequestID      string
	Timestamp      time.Time
	AlgorithmType  string
	Description    string
	Message        string
	Severity       uint8
	Blocked        bool
	SubjectPreview string // First 500 chars
	SubjectHash    string // SHA256 of full subject
	SubjectSize    uint32
	Method         string
	URI            string
	RemoteAddr     string
	StackTrace     []string
	Attributes     map[string]string
}

// SubjectPreviewLength is the max chars stored in subject_preview.
const SubjectPreviewLength = 500

// NewAttackEvent converts an audit record into an event. A nil context
// yields empty request columns.
func NewAttackEvent(info engine.AttackInfo) *AttackEvent {
	sum := sha256.Sum256([]byte(info.Subject))
	ts := info.DetectedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	e := &AttackEvent{
		EventID:        uuid.New().String(),
		Timestamp:      ts.UTC(),
		AlgorithmType:  info.AlgorithmType,
		Description:    info.Description,
		Message:        info.Message,
		Severity:       clampSeverity(info.Severity),
		Blocked:        info.Blocked,
		SubjectPreview: TruncateSubject(info.Subject, SubjectPreviewLength),
		SubjectHash:    hex.EncodeToString(sum[:]),
		SubjectSize:    uint32(len(info.Subject)),
	}
	if cc := info.Context; cc != nil {
		e.RequestID = cc.RequestID
		e.Method = cc.Method
		e.URI = cc.URI
		e.RemoteAddr = cc.RemoteAddr
		e.StackTrace = cc.StackTrace
		e.Attributes = cc.Attributes
	}
	return e
}

func clampSeverity(s int) uint8 {
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	default:
		return uint8(s)
	}
}

// TruncateSubject returns the first N characters (runes) of a subject for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncateSubject(subject string, maxLen int) string {
	runes := []rune(subject)
	if len(runes) <= maxLen {
		return subject
	}
	return string(runes[:maxLen])
}
