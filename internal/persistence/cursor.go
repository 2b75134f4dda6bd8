// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/quicklog/internal/domain"
)

// cursorToken is the wire form of a pagination cursor. It is encoded
// with the URL-safe alphabet so tokens can ride in query strings
// without escaping.
type cursorToken struct {
	OccurredAt time.Time `json:"occurred_at"`
	EntryID    string    `json:"entry_id"`
}

// EncodeCursor serialises the cursor to an opaque token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(cursorToken{
		OccurredAt: c.OccurredAt.UTC(),
		EntryID:    c.ID,
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// decodes to a nil cursor, meaning the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var decoded cursorToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if decoded.EntryID == "" || decoded.OccurredAt.IsZero() {
		return nil, fmt.Errorf("decode cursor: incomplete token")
	}
	return &domain.Cursor{OccurredAt: decoded.OccurredAt, ID: decoded.EntryID}, nil
}
