package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher writes entry events to Kafka, keeping one writer per topic.
// Writers are created on first use so a fresh deployment with no
// traffic opens no broker connections.
type Publisher struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewPublisher builds a Publisher for the given broker list.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages publishes records to one topic. Records are keyed by
// user ID upstream, so a user's events stay on one partition.
func (p *Publisher) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerFor(topic).WriteMessages(ctx, msgs...)
}

func (p *Publisher) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:  kafka.TCP(p.brokers...),
		Topic: topic,
		// Hash on the record key so per-user ordering survives
		// partition count changes within a deployment.
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close shuts down every writer, returning the first error seen.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
