// Package postgres provides pgx-backed persistence for entries and the
// transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/quicklog/internal/domain"
	"example.com/quicklog/internal/events"
	"example.com/quicklog/internal/observability"
	"example.com/quicklog/internal/parse"
)

const (
	entryEventsTopic         = "entry_events"
	entryLoggedSubject       = "entry_logged-value"
	entryStateChangedSubject = "entry_state_changed-value"
)

// Repository provides Postgres-backed persistence for entries and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `entry_id, tenant_id, user_id, entry_type, fields, confidence, raw_text, occurred_at, source, version, state, created_at, updated_at`

// FindByIdempotency returns the entries previously stored for the supplied
// idempotency key, in creation order.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) ([]domain.EntryAggregate, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + entryColumns + `
        FROM entries WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3
        ORDER BY idempotency_seq, entry_id`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, userID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateBatch persists every entry of one logging request and records
// outbox events for the auto-logged ones inside a single transaction.
func (r *Repository) CreateBatch(ctx context.Context, entries []domain.EntryAggregate, idempotencyKey string) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", entries[0].TenantID); err != nil {
		return err
	}

	insertEntry := `INSERT INTO entries (entry_id, tenant_id, user_id, entry_type, fields, confidence, raw_text, occurred_at, source, idempotency_key, idempotency_seq, version, state, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	for seq, entry := range entries {
		_, err = tx.Exec(ctx, insertEntry,
			entry.ID,
			entry.TenantID,
			entry.UserID,
			string(entry.EntryType),
			entry.Fields,
			entry.Confidence,
			entry.RawText,
			entry.OccurredAt,
			entry.Source,
			nullableString(idempotencyKey),
			seq,
			entry.Version,
			string(entry.State),
			entry.CreatedAt,
			entry.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "idx_entries_idempotency") {
				err = domain.ErrDuplicateIdempotencyKey
			}
			return err
		}

		if entry.State == domain.EntryStateLogged {
			if err = insertEntryLoggedEvent(ctx, tx, entry); err != nil {
				return err
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordEntryPersisted(entries[0].CreatedAt)
	return nil
}

// Get fetches a single entry scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID, entryID string) (*domain.EntryAggregate, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE tenant_id=$1 AND entry_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, tenantID, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// SetState resolves a pending entry and records the matching outbox
// events in the same transaction. The pending predicate lives in the
// UPDATE itself so concurrent confirm/reject calls cannot both win.
func (r *Repository) SetState(ctx context.Context, tenantID, entryID string, state domain.EntryState, reason string) (*domain.EntryAggregate, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	query := `UPDATE entries SET state=$1, updated_at=NOW()
        WHERE tenant_id=$2 AND entry_id=$3 AND state=$4
        RETURNING ` + entryColumns

	row := tx.QueryRow(ctx, query, string(state), tenantID, entryID, string(domain.EntryStatePending))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var current string
			lookupErr := tx.QueryRow(ctx,
				`SELECT state FROM entries WHERE tenant_id=$1 AND entry_id=$2`,
				tenantID, entryID).Scan(&current)
			err = nil
			tx.Rollback(ctx)
			switch {
			case errors.Is(lookupErr, pgx.ErrNoRows):
				return nil, domain.ErrEntryNotFound
			case lookupErr != nil:
				return nil, lookupErr
			default:
				return nil, fmt.Errorf("%w: state %q", domain.ErrEntryNotPending, current)
			}
		}
		return nil, err
	}

	if err = insertStateChangedEvent(ctx, tx, *entry, reason); err != nil {
		return nil, err
	}
	if entry.State == domain.EntryStateLogged {
		if err = insertEntryLoggedEvent(ctx, tx, *entry); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListByUser returns a page of entries ordered newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.EntryAggregate, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	var rows pgx.Rows
	if cursor != nil {
		query := `SELECT ` + entryColumns + `
            FROM entries
            WHERE tenant_id=$1 AND user_id=$2 AND (occurred_at, entry_id) < ($3, $4)
            ORDER BY occurred_at DESC, entry_id DESC
            LIMIT $5`
		rows, err = tx.Query(ctx, query, tenantID, userID, cursor.OccurredAt, cursor.ID, limit+1)
	} else {
		query := `SELECT ` + entryColumns + `
            FROM entries
            WHERE tenant_id=$1 AND user_id=$2
            ORDER BY occurred_at DESC, entry_id DESC
            LIMIT $3`
		rows, err = tx.Query(ctx, query, tenantID, userID, limit+1)
	}
	if err != nil {
		return nil, nil, err
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = &domain.Cursor{OccurredAt: last.OccurredAt, ID: last.ID}
	}
	return entries, next, nil
}

// Summarize aggregates entry counts and returns a recent timeline.
func (r *Repository) Summarize(ctx context.Context, tenantID, userID string, window time.Duration, timelineLimit int) (domain.EntrySummary, []domain.EntryAggregate, error) {
	summary := domain.EntrySummary{CountByType: make(map[string]int)}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return summary, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return summary, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return summary, nil, err
	}

	since := time.Time{}
	if window > 0 {
		since = time.Now().UTC().Add(-window)
	}

	statsQuery := `SELECT entry_type, state, COUNT(*), AVG(confidence), MAX(occurred_at)
        FROM entries
        WHERE tenant_id=$1 AND user_id=$2 AND occurred_at >= $3
        GROUP BY entry_type, state`

	rows, err := tx.Query(ctx, statsQuery, tenantID, userID, since)
	if err != nil {
		return summary, nil, err
	}

	var weightedConfidence float64
	for rows.Next() {
		var (
			entryType string
			state     string
			count     int
			avgConf   float64
			lastAt    time.Time
		)
		if err := rows.Scan(&entryType, &state, &count, &avgConf, &lastAt); err != nil {
			rows.Close()
			return summary, nil, err
		}
		summary.Total += count
		summary.CountByType[entryType] += count
		weightedConfidence += avgConf * float64(count)
		switch domain.EntryState(state) {
		case domain.EntryStateLogged:
			summary.Logged += count
		case domain.EntryStatePending:
			summary.Pending += count
		case domain.EntryStateRejected:
			summary.Rejected += count
		}
		if summary.LastEntryAt == nil || lastAt.After(*summary.LastEntryAt) {
			at := lastAt
			summary.LastEntryAt = &at
		}
	}
	if err := rows.Err(); err != nil {
		return summary, nil, err
	}
	if summary.Total > 0 {
		summary.AverageConfidence = weightedConfidence / float64(summary.Total)
	}

	if timelineLimit <= 0 {
		timelineLimit = 10
	}
	timelineQuery := `SELECT ` + entryColumns + `
        FROM entries
        WHERE tenant_id=$1 AND user_id=$2 AND occurred_at >= $3
        ORDER BY occurred_at DESC, entry_id DESC
        LIMIT $4`

	timelineRows, err := tx.Query(ctx, timelineQuery, tenantID, userID, since, timelineLimit)
	if err != nil {
		return summary, nil, err
	}
	timeline, err := scanEntries(timelineRows)
	if err != nil {
		return summary, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, nil, err
	}
	return summary, timeline, nil
}

func insertEntryLoggedEvent(ctx context.Context, tx pgx.Tx, entry domain.EntryAggregate) error {
	payload, err := json.Marshal(events.EntryLogged{
		EntryID:    entry.ID,
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		EntryType:  string(entry.EntryType),
		Confidence: entry.Confidence,
		RawText:    entry.RawText,
		OccurredAt: entry.OccurredAt,
		Source:     entry.Source,
		Version:    entry.Version,
	})
	if err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, entry, "entry.logged", entryLoggedSubject, payload)
}

func insertStateChangedEvent(ctx context.Context, tx pgx.Tx, entry domain.EntryAggregate, reason string) error {
	payload, err := json.Marshal(events.EntryStateChanged{
		EntryID:    entry.ID,
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		State:      string(entry.State),
		OccurredAt: time.Now().UTC(),
		Reason:     reason,
	})
	if err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, entry, "entry.state_changed", entryStateChangedSubject, payload)
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, entry domain.EntryAggregate, eventType, subject string, payload []byte) error {
	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := tx.Exec(ctx, stmt,
		entry.TenantID,
		"entry",
		entry.ID,
		eventType,
		entryEventsTopic,
		subject,
		entry.UserID,
		payload,
	)
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	// 23505 is unique_violation.
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == constraint
}

func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.EntryAggregate, error) {
	var (
		entry     domain.EntryAggregate
		entryType string
		state     string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.UserID,
		&entryType,
		&entry.Fields,
		&entry.Confidence,
		&entry.RawText,
		&entry.OccurredAt,
		&entry.Source,
		&entry.Version,
		&state,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.EntryType = parse.ActivityType(entryType)
	entry.State = domain.EntryState(state)
	return &entry, nil
}

func scanEntries(rows pgx.Rows) ([]domain.EntryAggregate, error) {
	defer rows.Close()

	var entries []domain.EntryAggregate
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
