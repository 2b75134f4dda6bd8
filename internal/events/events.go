// Package events defines the payloads published through the outbox and
// consumed by downstream projections.
package events

import "time"

// EntryLogged is emitted when a parsed entry reaches the logged state,
// either directly (auto-log) or after user confirmation. Confidence is an
// integer on the 0-100 scale used everywhere in this service.
type EntryLogged struct {
	EntryID    string    `json:"entry_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	EntryType  string    `json:"entry_type"`
	Confidence int       `json:"confidence"`
	RawText    string    `json:"raw_text"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source"`
	Version    string    `json:"version"`
}

// EntryStateChanged tracks confirmation-state transitions for entries
// awaiting a user decision.
type EntryStateChanged struct {
	EntryID    string    `json:"entry_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason,omitempty"`
}
