package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/quicklog/internal/events"
)

// SummaryHandler projects entry events into the daily_summaries rollup table
// and keeps an audit trail of every consumed event.
type SummaryHandler struct {
	pool *pgxpool.Pool
}

// NewSummaryHandler constructs a handler backed by the provided pool.
func NewSummaryHandler(pool *pgxpool.Pool) *SummaryHandler {
	return &SummaryHandler{pool: pool}
}

// Handle updates the per-day rollup for entry.logged events and records every
// event in entry_event_log.
func (h *SummaryHandler) Handle(ctx context.Context, msg EntryEvent) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", msg.TenantID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO entry_event_log (event_type, tenant_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.EventType,
		msg.TenantID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	); err != nil {
		return err
	}

	if msg.EventType == "entry.logged" {
		if err := projectDailySummary(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func projectDailySummary(ctx context.Context, tx pgx.Tx, msg EntryEvent) error {
	var event events.EntryLogged
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode entry.logged payload: %w", err)
	}

	const upsert = `INSERT INTO daily_summaries (tenant_id, user_id, day, entry_type, entry_count, confidence_sum, last_entry_at)
        VALUES ($1,$2,$3::date,$4,1,$5,$6)
        ON CONFLICT (tenant_id, user_id, day, entry_type) DO UPDATE SET
            entry_count = daily_summaries.entry_count + 1,
            confidence_sum = daily_summaries.confidence_sum + EXCLUDED.confidence_sum,
            last_entry_at = GREATEST(daily_summaries.last_entry_at, EXCLUDED.last_entry_at)`

	_, err := tx.Exec(ctx, upsert,
		event.TenantID,
		event.UserID,
		event.OccurredAt.UTC(),
		event.EntryType,
		event.Confidence,
		event.OccurredAt.UTC(),
	)
	return err
}
