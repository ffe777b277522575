package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox/registry"
)

// outboundMessage is one outbox row ready for a broker.
type outboundMessage struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// sink delivers messages to a broker. Send blocks until the broker acks.
type sink interface {
	Name() string
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg outboundMessage) error
	Close() error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
	Close() error
}

type pubSubSink struct {
	client pubSubClient
}

func newPubSubSink(client pubSubClient) *pubSubSink {
	return &pubSubSink{client: client}
}

func (s *pubSubSink) Name() string { return config.OutboxSinkPubSub }

func (s *pubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubSubSink) Send(ctx context.Context, topic string, msg outboundMessage) error {
	pub := s.client.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses its key until resumed.
		pub.ResumePublish(msg.Key)
		return err
	}
	return nil
}

func (s *pubSubSink) Close() error {
	return s.client.Close()
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaSink struct {
	writer  kafkaWriter
	brokers []string
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

func newKafkaSink(cfg config.KafkaConfig) (*kafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &kafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		brokers: cfg.Brokers,
		dial:    kafka.DialContext,
	}, nil
}

func (s *kafkaSink) Name() string { return config.OutboxSinkKafka }

// Ping succeeds when any broker accepts a connection.
func (s *kafkaSink) Ping(ctx context.Context) error {
	var errs error
	for _, broker := range s.brokers {
		conn, err := s.dial(ctx, "tcp", broker)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dial %s: %w", broker, err))
			continue
		}
		return conn.Close()
	}
	return errs
}

func (s *kafkaSink) Send(ctx context.Context, topic string, msg outboundMessage) error {
	return s.writer.WriteMessages(ctx, kafkaMessage(topic, msg))
}

func (s *kafkaSink) Close() error {
	return s.writer.Close()
}

// kafkaMessage keys by aggregate so one order's events stay on one partition.
func kafkaMessage(topic string, msg outboundMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for _, name := range attributeOrder {
		if value, ok := msg.Attributes[name]; ok {
			headers = append(headers, kafka.Header{Key: name, Value: []byte(value)})
		}
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
	}
}

var attributeOrder = []string{"event_id", "event_type", "aggregate_type", "aggregate_id", "created_at"}
