// Package outbox persists and delivers entry events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Event is one outbox row: an entry.logged or entry.state_changed
// record committed alongside the entry write that produced it.
type Event struct {
	EventID       int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Dispatcher drains the outbox and publishes entry events to Kafka.
// Failed batches go to the DLQ rather than blocking the table, so one
// bad event cannot stall delivery for every tenant.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start runs the polling loop. Call it in a goroutine; it exits when
// the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.drainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// drainOnce claims one batch of unpublished events and delivers it.
// Events that cannot be delivered are parked in the DLQ and still
// marked published, which keeps the outbox scan short.
func (d *Dispatcher) drainOnce(ctx context.Context) error {
	start := time.Now()

	events, err := d.claimDue(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.publish(ctx, events); err != nil {
		log.Printf("outbox: delivery failure: %v", err)
		failedCounter.Add(float64(len(events)))
		if dlqErr := d.parkFailures(ctx, events, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return d.markPublished(ctx, events)
	}

	deliveredCounter.Add(float64(len(events)))
	return d.markPublished(ctx, events)
}

// claimDue locks and stamps a batch of unpublished rows. SKIP LOCKED
// lets several dispatcher replicas drain the table without contending.
func (d *Dispatcher) claimDue(ctx context.Context) ([]Event, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	query := `SELECT event_id, tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.EventID, &event.TenantID, &event.AggregateType, &event.AggregateID, &event.EventType, &event.Topic, &event.SchemaSubject, &event.PartitionKey, &event.Payload); err != nil {
			return nil, err
		}
		events = append(events, event)
		ids = append(ids, event.EventID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return events, nil
}

// publish frames every event for Schema Registry, stamps the routing
// headers the consumer decodes, and writes per topic.
func (d *Dispatcher) publish(ctx context.Context, events []Event) error {
	batches := make(map[string][]kafka.Message)

	for _, event := range events {
		schemaID, err := d.schemaIDFor(ctx, event)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(event.PartitionKey),
			Value: encodeWireFormat(schemaID, []byte(event.Payload)),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "tenant_id", Value: []byte(event.TenantID)},
				{Key: "schema_subject", Value: []byte(event.SchemaSubject)},
			},
		}
		batches[event.Topic] = append(batches[event.Topic], record)
	}

	for topic, records := range batches {
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			return err
		}
	}

	return nil
}

// schemaIDFor resolves the Schema Registry ID for the event's subject,
// caching per subject/schema pair so the registry sees one round trip
// per process per subject.
func (d *Dispatcher) schemaIDFor(ctx context.Context, event Event) (int, error) {
	meta, ok := schemaCatalog[event.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", event.EventType)
	}

	cacheKey := fmt.Sprintf("%s::%s", event.SchemaSubject, meta.Schema)
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}

	id, err := d.registry.EnsureSchema(ctx, event.SchemaSubject, meta.Schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, events []Event) error {
	groups := make(map[string][]int64)
	for _, event := range events {
		groups[event.TenantID] = append(groups[event.TenantID], event.EventID)
	}

	for tenantID, ids := range groups {
		if err := d.markTenantPublished(ctx, tenantID, ids); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) markTenantPublished(ctx context.Context, tenantID string, ids []int64) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

func (d *Dispatcher) parkFailures(ctx context.Context, events []Event, reason string) error {
	for _, event := range events {
		dlqReason := fmt.Sprintf("%s (topic=%s)", reason, event.Topic)
		if err := d.dlq.Write(ctx, event, dlqReason); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(event.Topic).Inc()
	}
	return nil
}

// encodeWireFormat applies Confluent framing: a zero magic byte, the
// schema ID big-endian, then the JSON payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

type schemaMetadata struct {
	Schema string
}

var schemaCatalog = map[string]schemaMetadata{
	"entry.logged": {
		Schema: entryLoggedSchema,
	},
	"entry.state_changed": {
		Schema: entryStateChangedSchema,
	},
}
