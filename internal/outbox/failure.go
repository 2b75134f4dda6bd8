package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter parks undeliverable entry events in outbox_dlq, where the
// DLQ manager retries them with backoff until they succeed or hit the
// quarantine limit.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter constructs a writer over the shared pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write copies the event row into the DLQ with the failure reason.
// next_retry_at is NOW() so the first retry is due immediately.
func (w *DLQWriter) Write(ctx context.Context, event Event, reason string) error {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", event.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,NOW())`
	if _, err = tx.Exec(ctx, stmt,
		event.TenantID,
		event.EventID,
		event.EventType,
		event.Topic,
		event.Payload,
		reason,
		event.AggregateType,
		event.AggregateID,
		event.SchemaSubject,
		event.PartitionKey,
	); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}
