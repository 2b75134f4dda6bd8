package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/quicklog/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.Cursor{
		OccurredAt: time.Date(2026, time.March, 14, 9, 30, 0, 123456789, time.UTC),
		ID:         "entry-42",
	}

	token := EncodeCursor(cursor)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, cursor.OccurredAt.Equal(decoded.OccurredAt))
	require.Equal(t, cursor.ID, decoded.ID)
}

func TestEncodeNilCursor(t *testing.T) {
	require.Equal(t, "", EncodeCursor(nil))
}

func TestDecodeEmptyToken(t *testing.T) {
	decoded, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeGarbageToken(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	require.Error(t, err)
}

func TestDecodeIncompleteToken(t *testing.T) {
	// Valid base64, valid JSON, but missing both cursor fields.
	token := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	_, err := DecodeCursor(token)
	require.Error(t, err)
}
