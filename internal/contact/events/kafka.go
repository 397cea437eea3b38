package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"contactsvc/internal/contact/metrics"
	"contactsvc/internal/contact/models"
	"contactsvc/pkg/platform/circuit"
)

var tracer = otel.Tracer("contactsvc/internal/contact/events")

// ErrCircuitOpen is returned while the broker is considered unhealthy.
// Events are dropped, not queued.
var ErrCircuitOpen = errors.New("event publisher circuit open")

// producer is the part of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes events to one topic keyed by primary contact id, so
// every event of one group lands on the same partition in order.
type KafkaPublisher struct {
	client  producer
	topic   string
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type KafkaOption func(*KafkaPublisher)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

func WithKafkaMetrics(m *metrics.Metrics) KafkaOption {
	return func(p *KafkaPublisher) {
		p.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(p *KafkaPublisher) {
		if b != nil {
			p.breaker = b
		}
	}
}

// NewKafkaClient opens a franz-go client producing to topic by default.
func NewKafkaClient(brokers []string, topic, clientID string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func NewKafkaPublisher(client producer, topic string, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		client:  client,
		topic:   topic,
		breaker: circuit.New("contact-events"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends the outcome's events synchronously. While the breaker is
// open a single probe is still attempted per call; its result drives
// recovery.
func (p *KafkaPublisher) Publish(ctx context.Context, o models.Outcome) error {
	evs := FromOutcome(ctx, o)
	if len(evs) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "events.Publish")
	defer span.End()
	span.SetAttributes(attribute.Int("events.count", len(evs)))

	records := make([]*kgo.Record, 0, len(evs))
	for _, e := range evs {
		rec, err := p.record(e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		useFallback, change := p.breaker.RecordFailure()
		if change.Opened {
			p.logger.WarnContext(ctx, "contact event publisher circuit opened", "breaker", p.breaker.Name(), "error", err)
		}
		for _, e := range evs {
			p.metrics.IncrementPublishFailures(string(e.Type))
		}
		if useFallback {
			return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return fmt.Errorf("publish contact events: %w", err)
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "contact event publisher circuit closed", "breaker", p.breaker.Name())
	}
	for _, e := range evs {
		p.logger.DebugContext(ctx, "published contact event",
			"event_type", e.Type,
			"event_id", e.ID,
			"primary_id", e.PrimaryID,
		)
	}
	return nil
}

func (p *KafkaPublisher) record(e Event) (*kgo.Record, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(e.PrimaryID, 10)),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "schema_version", Value: []byte(SchemaVersion)},
		},
	}, nil
}
