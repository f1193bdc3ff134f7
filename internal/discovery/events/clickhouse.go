package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"manifold/internal/discovery"
	"manifold/internal/observability"
)

// StageSink records each workflow run's per-agent timing for offline latency
// analysis. Recording is best-effort: connection or insert failures are
// logged and never propagate to the caller.
type StageSink struct {
	conn  clickhouse.Conn
	table string
}

// NewStageSink opens a ClickHouse connection and ensures the stage-timing
// table exists. Returns (nil, nil) when dsn is empty so callers can treat a
// missing sink as "disabled" rather than an error.
func NewStageSink(ctx context.Context, dsn, table string) (*StageSink, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil
	}
	if table == "" {
		table = "workflow_stage_log"
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	createCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		workflow_id String,
		agent String,
		started_at DateTime64(3),
		ended_at DateTime64(3),
		ok UInt8,
		message String
	) ENGINE = MergeTree ORDER BY (workflow_id, started_at)`, table)
	if err := conn.Exec(createCtx, ddl); err != nil {
		return nil, fmt.Errorf("ensure stage log table: %w", err)
	}

	return &StageSink{conn: conn, table: table}, nil
}

// Record inserts one row per StageLogEntry in state, swallowing errors.
func (s *StageSink) Record(ctx context.Context, state discovery.WorkflowState) {
	if s == nil || s.conn == nil || len(state.StageLog) == 0 {
		return
	}
	insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(insertCtx, fmt.Sprintf("INSERT INTO %s", s.table))
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("prepare stage log batch")
		return
	}
	for _, entry := range state.StageLog {
		ok := uint8(0)
		if entry.OK {
			ok = 1
		}
		if err := batch.Append(state.WorkflowID, entry.Agent, entry.StartedAt, entry.EndedAt, ok, entry.Message); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("append stage log row")
			return
		}
	}
	if err := batch.Send(); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("send stage log batch")
	}
}

// Close releases the underlying ClickHouse connection.
func (s *StageSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
