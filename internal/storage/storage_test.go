package storage

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/triage-ai/rasp-agent/internal/engine"
)

type memWriter struct {
	mu     sync.Mutex
	events []*AttackEvent
}

func (w *memWriter) Write(e *AttackEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *memWriter) Close() {}

func TestNewAttackEvent(t *testing.T) {
	cc := &engine.CallContext{
		RequestID:  "req-1",
		Method:     "POST",
		URI:        "/api/parse",
		RemoteAddr: "10.0.0.7",
		StackTrace: []string{"a.b.C.run"},
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	e := NewAttackEvent(engine.AttackInfo{
		Context:       cc,
		Subject:       "java.lang.Runtime",
		Blocked:       true,
		AlgorithmType: "json-yaml-deserialization",
		Message:       "deserialization class hit black list, class: java.lang.Runtime",
		Severity:      90,
		DetectedAt:    at,
	})

	if e.EventID == "" {
		t.Error("expected event id")
	}
	if e.RequestID != "req-1" || e.URI != "/api/parse" || e.Method != "POST" {
		t.Errorf("request columns not copied: %+v", e)
	}
	if !e.Timestamp.Equal(at) || e.Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC timestamp equal to detection time, got %v", e.Timestamp)
	}
	if e.Severity != 90 || !e.Blocked {
		t.Errorf("unexpected severity/blocked: %d %v", e.Severity, e.Blocked)
	}
	if e.SubjectSize != 17 || len(e.SubjectHash) != 64 {
		t.Errorf("unexpected subject size/hash: %d %q", e.SubjectSize, e.SubjectHash)
	}
}

func TestNewAttackEvent_NilContextAndClamp(t *testing.T) {
	e := NewAttackEvent(engine.AttackInfo{Severity: 250})
	if e.RequestID != "" || e.Severity != 100 {
		t.Errorf("got request=%q severity=%d", e.RequestID, e.Severity)
	}
	if e.Timestamp.IsZero() {
		t.Error("zero detection time should default to now")
	}
}

func TestTruncateSubject(t *testing.T) {
	long := strings.Repeat("é", 600)
	got := TruncateSubject(long, SubjectPreviewLength)
	if n := len([]rune(got)); n != SubjectPreviewLength {
		t.Errorf("expected %d runes, got %d", SubjectPreviewLength, n)
	}
	if TruncateSubject("short", 10) != "short" {
		t.Error("short subjects must be unchanged")
	}
}

func TestSink_AttackWritesAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := &memWriter{}
	s := NewSink(w, zap.New(core))

	s.Attack(engine.AttackInfo{AlgorithmType: "spel", Severity: 80, Message: "m"})
	s.Info("expression-algorithm onUnload success.")

	if len(w.events) != 1 || w.events[0].AlgorithmType != "spel" {
		t.Fatalf("expected one spel event, got %v", w.events)
	}
	if n := logs.FilterMessage("attack detected").Len(); n != 1 {
		t.Errorf("expected attack log line, got %d", n)
	}
	if n := logs.FilterMessage("expression-algorithm onUnload success.").Len(); n != 1 {
		t.Errorf("expected info line, got %d", n)
	}
}

func TestSink_ThrottlesAttackLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := &memWriter{}
	s := NewSink(w, zap.New(core))
	s.limiter = rate.NewLimiter(rate.Every(time.Hour), 2)

	for i := 0; i < 5; i++ {
		s.Attack(engine.AttackInfo{AlgorithmType: "mysql"})
	}

	if len(w.events) != 5 {
		t.Errorf("every event must be written, got %d", len(w.events))
	}
	if n := logs.FilterMessage("attack detected").Len(); n != 2 {
		t.Errorf("expected 2 attack log lines, got %d", n)
	}
	if got := s.suppressed.Load(); got != 3 {
		t.Errorf("expected 3 suppressed lines, got %d", got)
	}
}

type panickingWriter struct{}

func (panickingWriter) Write(*AttackEvent) { panic("disk on fire") }
func (panickingWriter) Close()             {}

func TestSink_NeverPanics(t *testing.T) {
	s := NewSink(panickingWriter{}, zap.NewNop())
	s.Attack(engine.AttackInfo{AlgorithmType: "mysql"})
}

func TestClickHouseWriter_WriteDropsWhenFull(t *testing.T) {
	w := newClickHouseWriter(nil, 1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Write(&AttackEvent{EventID: "1"})
		w.Write(&AttackEvent{EventID: "2"})
		w.Write(&AttackEvent{EventID: "3"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full buffer")
	}
	if got := w.Dropped(); got != 2 {
		t.Errorf("expected 2 dropped events, got %d", got)
	}
}

func TestClickHouseWriter_Instrument(t *testing.T) {
	w := newClickHouseWriter(nil, 1, zap.NewNop())
	w.Write(&AttackEvent{EventID: "1"})
	w.Write(&AttackEvent{EventID: "2"})

	reg := prometheus.NewRegistry()
	if err := w.Instrument(reg); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		got[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
	}
	if len(got) != 3 || got["rasp_attack_events_dropped_total"] != 1 || got["rasp_attack_events_written_total"] != 0 {
		t.Errorf("unexpected counters %v", got)
	}
	if err := w.Instrument(reg); err == nil {
		t.Error("registering twice must fail")
	}
}

func TestSecurePort(t *testing.T) {
	if !securePort([]string{"abc.clickhouse.cloud:9440"}) {
		t.Error("9440 is the TLS port")
	}
	if securePort([]string{"localhost:9000"}) {
		t.Error("9000 is plaintext")
	}
}

func TestLogWriter_Write(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewLogWriter(zap.New(core))
	w.Write(&AttackEvent{EventID: "e1", AlgorithmType: "file-read", Severity: 90})
	w.Close()

	entries := logs.FilterMessage("attack_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["algorithm_type"]; got != "file-read" {
		t.Errorf("unexpected algorithm_type field %v", got)
	}
}
