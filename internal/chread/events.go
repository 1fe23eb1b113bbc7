package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse attack_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil && strings.Contains(dsn, ":9440") {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// AttackRow represents a single row from the attack_events table.
type AttackRow struct {
	EventID        string    `json:"event_id"`
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	AlgorithmType  string    `json:"algorithm_type"`
	Message        string    `json:"message"`
	Severity       uint8     `json:"severity"`
	Blocked        uint8     `json:"blocked"`
	SubjectPreview string    `json:"subject_preview"`
	Method         string    `json:"method"`
	URI            string    `json:"uri"`
	RemoteAddr     string    `json:"remote_addr"`
}

// ListAttacksParams holds filters and pagination for attack listing.
type ListAttacksParams struct {
	AlgorithmType *string
	Blocked       *bool
	MinSeverity   *int
	RequestID     *string
	StartTime     *time.Time
	EndTime       *time.Time
	Page          int
	PageSize      int
}

const attackColumns = "event_id, request_id, timestamp, algorithm_type, message, severity, blocked, " +
	"subject_preview, method, uri, remote_addr"

// buildFilter renders the WHERE clause and its named arguments.
func buildFilter(params ListAttacksParams) (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if params.AlgorithmType != nil {
		conditions = append(conditions, "algorithm_type = @algorithm_type")
		args = append(args, clickhouse.Named("algorithm_type", *params.AlgorithmType))
	}
	if params.Blocked != nil {
		var v uint8
		if *params.Blocked {
			v = 1
		}
		conditions = append(conditions, "blocked = @blocked")
		args = append(args, clickhouse.Named("blocked", v))
	}
	if params.MinSeverity != nil {
		conditions = append(conditions, "severity >= @min_severity")
		args = append(args, clickhouse.Named("min_severity", uint8(*params.MinSeverity)))
	}
	if params.RequestID != nil {
		conditions = append(conditions, "request_id = @request_id")
		args = append(args, clickhouse.Named("request_id", *params.RequestID))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

// ListAttacks returns paginated, filtered attack events and the total count.
func (r *Reader) ListAttacks(ctx context.Context, params ListAttacksParams) ([]AttackRow, int, error) {
	where, args := buildFilter(params)
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM attack_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListAttacks count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM attack_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		attackColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListAttacks query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attacks []AttackRow
	for rows.Next() {
		var a AttackRow
		if err := rows.Scan(
			&a.EventID, &a.RequestID, &a.Timestamp, &a.AlgorithmType, &a.Message,
			&a.Severity, &a.Blocked, &a.SubjectPreview, &a.Method, &a.URI, &a.RemoteAddr,
		); err != nil {
			return nil, 0, fmt.Errorf("ListAttacks scan: %w", err)
		}
		attacks = append(attacks, a)
	}

	return attacks, int(total), rows.Err()
}

// AlgorithmCount holds per-algorithm attack totals.
type AlgorithmCount struct {
	AlgorithmType string `json:"algorithm_type"`
	Total         int    `json:"total"`
	Blocked       int    `json:"blocked"`
}

// CountByAlgorithm returns attack totals per algorithm since the given time.
func (r *Reader) CountByAlgorithm(ctx context.Context, since time.Time) ([]AlgorithmCount, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT algorithm_type, count() as total, countIf(blocked = 1) as blocked "+
			"FROM attack_events "+
			"WHERE timestamp >= @since "+
			"GROUP BY algorithm_type ORDER BY total DESC",
		clickhouse.Named("since", since),
	)
	if err != nil {
		return nil, fmt.Errorf("CountByAlgorithm: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []AlgorithmCount{}
	for rows.Next() {
		var typ string
		var total, blocked uint64
		if err := rows.Scan(&typ, &total, &blocked); err != nil {
			return nil, fmt.Errorf("CountByAlgorithm scan: %w", err)
		}
		out = append(out, AlgorithmCount{AlgorithmType: typ, Total: int(total), Blocked: int(blocked)})
	}
	return out, rows.Err()
}
