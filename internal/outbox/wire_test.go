package outbox

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeWireFormatFraming(t *testing.T) {
	payload := []byte(`{"entry_id":"e-1"}`)
	frame := encodeWireFormat(1234, payload)

	require.Len(t, frame, 5+len(payload))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(1234), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, payload, frame[5:])
}

func TestSchemaCatalogCoversEntryEvents(t *testing.T) {
	for _, eventType := range []string{"entry.logged", "entry.state_changed"} {
		meta, ok := schemaCatalog[eventType]
		require.True(t, ok, eventType)
		require.NotEmpty(t, meta.Schema)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	manager := NewDLQManager(nil, 5, time.Minute)

	require.Equal(t, time.Minute, manager.backoffDelay(1))
	require.Equal(t, 2*time.Minute, manager.backoffDelay(2))
	require.Equal(t, 16*time.Minute, manager.backoffDelay(5))
	require.Equal(t, time.Hour, manager.backoffDelay(10))
}
