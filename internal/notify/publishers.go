package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nats-io/nats.go"
)

// LogPublisher writes events to the structured log. It is the default when no
// broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, event Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connection event",
		"eventId", event.ID,
		"type", event.Type,
		"actorId", event.ActorID,
		"counterpartyId", event.CounterpartyID,
		"requestId", event.RequestID,
	)
	return nil
}

func (LogPublisher) Close() error { return nil }

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Topic    string
}

// KafkaPublisher produces events to a single topic keyed by counterparty so a
// user's notifications stay ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher creates a confluent-kafka-go producer.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
		"acks":              "all",
	}
	if cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", cfg.ClientID)
	}

	p, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: p, topic: cfg.Topic}, nil
}

// Publish waits for the delivery report or ctx, whichever comes first.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.CounterpartyID),
		Value:          payload,
		Timestamp:      event.OccurredAt,
		Headers:        []kafka.Header{{Key: "event-type", Value: []byte(event.Type)}},
	}
	if err := p.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("enqueue kafka message: %w", err)
	}

	select {
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka: unexpected delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery to %s: %w", p.topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka delivery to %s: %w", p.topic, ctx.Err())
	}
}

// Close flushes outstanding messages for up to ten seconds.
func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	remaining := p.producer.Flush(10 * 1000)
	p.producer.Close()
	if remaining > 0 {
		return fmt.Errorf("kafka: %d messages not flushed", remaining)
	}
	return nil
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
}

// NATSPublisher publishes each event on <prefix>.<type>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS with unlimited reconnects.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats publisher: url is required")
	}
	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "teetime.connections"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(p.prefix + "." + string(event.Type))
	msg.Data = payload
	msg.Header.Set("Nats-Msg-Id", event.ID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish nats message: %w", err)
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
