// Package consumer reads the entry event stream and maintains the
// read-side projections built from it.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the slice of kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// EventHandler consumes decoded entry events. Handlers must be
// idempotent: delivery is at-least-once and a crash between handling
// and commit replays the event.
type EventHandler interface {
	Handle(context.Context, EntryEvent) error
}

// EntryEvent is one record off the entry_events topic after the
// Schema Registry framing has been stripped. Records are keyed by user,
// so events for a single user arrive in order.
type EntryEvent struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor drives one reader: fetch, decode, hand off, commit.
// Offsets are committed only after the handler succeeds, so a failed
// event is retried on the next fetch.
type Processor struct {
	reader  Reader
	handler EventHandler
	logger  *log.Logger
}

// NewProcessor wires a reader to a handler.
func NewProcessor(reader Reader, handler EventHandler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[entry-consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until the context is cancelled, processing entry events
// one at a time.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeEntryEvent(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed records so they cannot wedge the partition.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.logger.Printf("handler error (event_type=%s, tenant=%s): %v", event.EventType, event.TenantID, handleErr)
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

// decodeEntryEvent validates the Confluent wire framing (magic byte,
// then a big-endian schema ID) and reads the routing headers stamped
// by the outbox dispatcher.
func decodeEntryEvent(msg kafka.Message) (EntryEvent, error) {
	if len(msg.Value) < 5 {
		return EntryEvent{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return EntryEvent{}, fmt.Errorf("unexpected magic byte: %#x", msg.Value[0])
	}

	eventType, ok := header(msg, "event_type")
	if !ok {
		return EntryEvent{}, errors.New("missing event_type header")
	}
	tenantID, _ := header(msg, "tenant_id")
	schemaSubject, _ := header(msg, "schema_subject")

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))

	return EntryEvent{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		TenantID:      string(tenantID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func header(msg kafka.Message, key string) ([]byte, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}
