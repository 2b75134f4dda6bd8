package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"example.com/quicklog/internal/parse"
)

var (
	// ErrEntryNotFound is returned when an entry cannot be located.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryNotPending indicates a confirmation was attempted on an
	// entry that is not awaiting one.
	ErrEntryNotPending = errors.New("entry is not awaiting confirmation")
	// ErrDuplicateIdempotencyKey is returned when a concurrent request
	// already stored entries under the same idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// EntryState is the persistence-side confirmation status of an entry.
type EntryState string

const (
	EntryStateLogged   EntryState = "logged"
	EntryStatePending  EntryState = "pending_confirmation"
	EntryStateRejected EntryState = "rejected"
)

// EntryAggregate is the stored form of one parsed activity. Fields holds
// the JSON encoding of the type-specific parse.Fields variant.
type EntryAggregate struct {
	ID         string
	TenantID   string
	UserID     string
	EntryType  parse.ActivityType
	Fields     json.RawMessage
	Confidence int
	RawText    string
	OccurredAt time.Time
	Source     string
	Version    string
	State      EntryState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Cursor models the pagination token for entry listings.
type Cursor struct {
	OccurredAt time.Time
	ID         string
}

// EntrySummary aggregates stats over a user's entries.
type EntrySummary struct {
	Total             int
	Logged            int
	Pending           int
	Rejected          int
	CountByType       map[string]int
	AverageConfidence float64
	LastEntryAt       *time.Time
}

// EntryRepository captures persistence operations.
type EntryRepository interface {
	FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) ([]EntryAggregate, error)
	CreateBatch(ctx context.Context, entries []EntryAggregate, idempotencyKey string) error
	Get(ctx context.Context, tenantID, entryID string) (*EntryAggregate, error)
	SetState(ctx context.Context, tenantID, entryID string, state EntryState, reason string) (*EntryAggregate, error)
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]EntryAggregate, *Cursor, error)
	Summarize(ctx context.Context, tenantID, userID string, window time.Duration, timelineLimit int) (EntrySummary, []EntryAggregate, error)
}
