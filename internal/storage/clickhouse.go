package storage

import (
	"context"
	"crypto/tls"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// attackEventsDDL creates the table the writer inserts into and the reader
// queries. Rows expire after 90 days.
const attackEventsDDL = `
	CREATE TABLE IF NOT EXISTS attack_events (
		event_id        String,
		request_id      String,
		timestamp       DateTime64(3, 'UTC'),
		algorithm_type  LowCardinality(String),
		description     String,
		message         String,
		severity        UInt8,
		blocked         UInt8,
		subject_preview String,
		subject_hash    FixedString(64),
		subject_size    UInt32,
		method          LowCardinality(String),
		uri             String,
		remote_addr     String,
		stack_trace     Array(String),
		attributes      Map(String, String)
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (algorithm_type, timestamp)
	TTL toDateTime(timestamp) + INTERVAL 90 DAY`

// ClickHouseWriter writes attack events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *AttackEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil && securePort(opts.Addr) {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, attackEventsDDL); err != nil {
		return nil, err
	}

	w := newClickHouseWriter(conn, bufferSize, logger)
	go w.flushLoop()
	return w, nil
}

func newClickHouseWriter(conn driver.Conn, size int, logger *zap.Logger) *ClickHouseWriter {
	return &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *AttackEvent, size),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger.Named("clickhouse"),
	}
}

// Write queues an attack event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *AttackEvent) {
	select {
	case w.buffer <- event:
	default:
		w.dropped.Add(1)
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("event_id", event.EventID),
			zap.String("algorithm", event.AlgorithmType),
		)
	}
}

// Dropped returns the number of events dropped because the buffer was full.
func (w *ClickHouseWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Instrument exposes the writer's counters on reg.
func (w *ClickHouseWriter) Instrument(reg prometheus.Registerer) error {
	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"rasp_attack_events_written_total", "Attack events inserted into ClickHouse.", &w.written},
		{"rasp_attack_events_dropped_total", "Attack events dropped on a full buffer.", &w.dropped},
		{"rasp_attack_events_failed_total", "Attack events lost to failed inserts.", &w.failed},
	}
	for _, c := range counters {
		v := c.v
		if err := reg.Register(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		)); err != nil {
			return err
		}
	}
	return nil
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	_ = w.conn.Close()
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*AttackEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*AttackEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO attack_events (
			event_id, request_id, timestamp,
			algorithm_type, description, message, severity, blocked,
			subject_preview, subject_hash, subject_size,
			method, uri, remote_addr, stack_trace, attributes
		)
	`)
	if err != nil {
		w.failed.Add(uint64(len(events)))
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	appended := 0
	for _, e := range events {
		var blocked uint8
		if e.Blocked {
			blocked = 1
		}
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		stack := e.StackTrace
		if stack == nil {
			stack = []string{}
		}

		if err := batch.Append(
			e.EventID,
			e.RequestID,
			e.Timestamp,
			e.AlgorithmType,
			e.Description,
			e.Message,
			e.Severity,
			blocked,
			e.SubjectPreview,
			e.SubjectHash,
			e.SubjectSize,
			e.Method,
			e.URI,
			e.RemoteAddr,
			stack,
			attrs,
		); err != nil {
			w.failed.Add(1)
			w.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
			continue
		}
		appended++
	}

	if err := batch.Send(); err != nil {
		w.failed.Add(uint64(appended))
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", appended),
			zap.Error(err),
		)
		return
	}
	w.written.Add(uint64(appended))
}

// securePort reports whether any address is the ClickHouse Cloud TLS
// port. ParseDSN already sets TLS when the DSN carries secure=true.
func securePort(addrs []string) bool {
	for _, addr := range addrs {
		if strings.HasSuffix(addr, ":9440") {
			return true
		}
	}
	return false
}
