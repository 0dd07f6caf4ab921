// Package publisher fans sealed audit entries out to Kafka for downstream
// compliance and SIEM consumers. Delivery is asynchronous and best-effort:
// the write path is never blocked, and the durable store remains the source
// of truth.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"veritrail/internal/audit/metrics"
	"veritrail/internal/audit/models"
)

// DefaultTopic is the topic sealed entries are produced to.
const DefaultTopic = "audit.entries"

const defaultBuffer = 1024

// producer is the slice of kgo.Client the worker needs; tests substitute a
// fake.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// Publisher buffers sealed entries and produces them to Kafka from a
// background worker. When the buffer is full the newest entry is dropped
// and counted; audit durability lives in the store, not here.
type Publisher struct {
	client  producer
	topic   string
	inbox   chan *models.AuditEntry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithBuffer overrides the inbox capacity.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan *models.AuditEntry, n)
		}
	}
}

// New connects to the given brokers and returns a publisher for topic.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := newWith(client, topic, opts...)
	return p, nil
}

func newWith(client producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		topic:  topic,
		inbox:  make(chan *models.AuditEntry, defaultBuffer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	client, ok := p.client.(*kgo.Client)
	if !ok {
		return nil
	}
	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Publish enqueues an entry for production. Never blocks; a full buffer
// drops the entry and counts it.
func (p *Publisher) Publish(ctx context.Context, entry *models.AuditEntry) {
	select {
	case p.inbox <- entry:
	default:
		if p.metrics != nil {
			p.metrics.PublishDropped.Inc()
		}
		p.logger.WarnContext(ctx, "audit publish buffer full, entry dropped",
			"tenant_id", entry.TenantID,
			"entry_id", entry.ID,
		)
	}
}

// Run drains the inbox until the context is cancelled. Call from a dedicated
// goroutine.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-p.inbox:
			p.produce(ctx, entry)
		}
	}
}

func (p *Publisher) produce(ctx context.Context, entry *models.AuditEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal audit entry for kafka",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.TenantID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.ErrorContext(ctx, "produce audit entry to kafka",
				"entry_id", entry.ID,
				"error", err,
			)
		}
	})
}

// Close releases the Kafka client.
func (p *Publisher) Close() {
	p.client.Close()
}
