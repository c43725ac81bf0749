package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends entries to a postgres table, for teams collecting
// spend across machines.
type PostgresSink struct {
	pool *pgxpool.Pool
}

const telemetrySchema = `
CREATE TABLE IF NOT EXISTS draftsmith_telemetry (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	event       TEXT NOT NULL,
	run_id      TEXT NOT NULL DEFAULT '',
	workflow    TEXT NOT NULL DEFAULT '',
	step        TEXT NOT NULL DEFAULT '',
	iteration   INT NOT NULL DEFAULT 0,
	tokens      INT NOT NULL DEFAULT 0,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	score       DOUBLE PRECISION,
	error       TEXT NOT NULL DEFAULT '',
	details     JSONB
)`

// NewPostgresSink connects and ensures the telemetry table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres telemetry requires a DSN")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, telemetrySchema); err != nil {
		return fmt.Errorf("creating telemetry table: %w", err)
	}
	return nil
}

// Emit inserts one entry.
func (s *PostgresSink) Emit(ctx context.Context, entry Entry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO draftsmith_telemetry
		 (ts, event, run_id, workflow, step, iteration, tokens, cost_usd, duration_ms, score, error, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.Timestamp, string(entry.Event), entry.RunID, entry.Workflow,
		entry.Step, entry.Iteration, entry.Tokens, entry.CostUSD,
		entry.DurationMS, entry.Score, entry.Error, details,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry entry: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var _ Sink = (*PostgresSink)(nil)
