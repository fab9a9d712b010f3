package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shelfmate/internal/shared/config"
	"shelfmate/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

type EventType string

const (
	EventUserRegistered  EventType = "user.registered"
	EventUserLoggedIn    EventType = "user.logged_in"
	EventOAuthLogin      EventType = "user.oauth_login"
	EventOAuthLinked     EventType = "user.oauth_linked"
	EventSessionRevoked  EventType = "session.revoked"
	EventPasswordChanged EventType = "user.password_changed"
)

// Event is one auth audit record. It never carries secrets or tokens.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Type       EventType         `json:"type"`
	UserID     string            `json:"userId"`
	Email      string            `json:"email,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func NewEvent(eventType EventType, userID, email string) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		Email:      email,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher defines the contract for emitting auth audit events
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// KafkaPublisher publishes audit events to a Kafka topic, keyed by user id so
// one user's events stay ordered. Publish only queues the message; delivery
// results are logged by a background drain.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	drained  chan struct{}
}

// NewKafkaPublisher creates an async producer for the configured brokers
func NewKafkaPublisher(cfg config.AuditConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()

	// Producer configuration
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Use hash partitioner for consistent routing based on user
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer and starts draining
// its result channels.
func NewKafkaPublisherWithProducer(producer sarama.AsyncProducer, topic string) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		drained:  make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish queues the event. It fails only when ctx ends before the producer
// accepts the message.
func (p *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("producer"), Value: []byte("shelfmate-auth")},
		},
		Metadata:  event.Type,
		Timestamp: event.OccurredAt,
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit event %s not queued: %w", event.Type, ctx.Err())
	}
}

func (p *KafkaPublisher) drain() {
	defer close(p.drained)
	log := logger.GetDefault()

	successes, errs := p.producer.Successes(), p.producer.Errors()
	for successes != nil || errs != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			log.Debug("Audit event published",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"type", fmt.Sprint(msg.Metadata),
			)
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.WithError(perr.Err).Warn("Failed to deliver audit event",
				"topic", perr.Msg.Topic,
				"type", fmt.Sprint(perr.Msg.Metadata),
			)
		}
	}
}

// Close flushes queued events and waits for the drain to finish.
func (p *KafkaPublisher) Close() error {
	p.producer.AsyncClose()
	<-p.drained
	return nil
}

// Noop discards every event. Used when auditing is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, *Event) error { return nil }

func (Noop) Close() error { return nil }

// NewPublisher returns a Kafka publisher when auditing is enabled, Noop otherwise.
func NewPublisher(cfg config.AuditConfig) (Publisher, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewKafkaPublisher(cfg)
}
