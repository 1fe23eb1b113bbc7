package storage

import (
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/triage-ai/rasp-agent/internal/engine"
)

// Attack log lines are throttled; every event still reaches the writer.
const (
	attackLogRate  = 50
	attackLogBurst = 100
)

// Sink adapts an EventWriter to the engine's logging sink. Attacks are
// also logged, so they stay visible when the writer drops them.
type Sink struct {
	writer     EventWriter
	logger     *zap.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewSink creates a Sink over writer.
func NewSink(writer EventWriter, logger *zap.Logger) *Sink {
	return &Sink{
		writer:  writer,
		logger:  logger.Named("sink"),
		limiter: rate.NewLimiter(rate.Limit(attackLogRate), attackLogBurst),
	}
}

// Attack persists info. It never blocks and never panics back into the
// detection path.
func (s *Sink) Attack(info engine.AttackInfo) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("attack sink panicked", zap.Any("panic", r))
		}
	}()

	e := NewAttackEvent(info)
	if s.limiter.Allow() {
		s.logger.Warn("attack detected",
			zap.String("event_id", e.EventID),
			zap.String("request_id", e.RequestID),
			zap.String("algorithm", e.AlgorithmType),
			zap.Int("severity", int(e.Severity)),
			zap.Bool("blocked", e.Blocked),
			zap.String("message", e.Message),
			zap.Int64("suppressed", s.suppressed.Swap(0)),
		)
	} else {
		s.suppressed.Add(1)
	}
	s.writer.Write(e)
}

// Info logs a lifecycle message.
func (s *Sink) Info(msg string) {
	s.logger.Info(msg)
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *AttackEvent) {
	w.logger.Info("attack_event",
		zap.String("event_id", event.EventID),
		zap.String("request_id", event.RequestID),
		zap.String("algorithm_type", event.AlgorithmType),
		zap.String("message", event.Message),
		zap.Uint8("severity", event.Severity),
		zap.Bool("blocked", event.Blocked),
		zap.String("uri", event.URI),
		zap.String("subject_preview", event.SubjectPreview),
		zap.String("subject_hash", event.SubjectHash),
	)
}

func (w *LogWriter) Close() {}
