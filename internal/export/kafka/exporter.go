// Package kafka forwards bus events to a kafka topic for consumers outside the process.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/vovakirdan/socialchat-server/internal/pubsub"
)

const headerTopic = "event"

// Writer is the subset of *kafka.Writer the exporter uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Exporter writes every message lifecycle event to kafka, keyed by thread.
type Exporter struct {
	writer Writer
	log    *zerolog.Logger
}

// NewWriter builds a kafka writer for brokers/topic.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
}

// New creates an exporter around w.
func New(w Writer, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{writer: w, log: logger}
}

// Start subscribes to every bus topic. Subscriptions end when ctx is cancelled or the bus closes.
func (e *Exporter) Start(ctx context.Context, sub pubsub.Subscriber) error {
	for _, topic := range pubsub.AllTopics {
		if err := sub.Subscribe(ctx, topic, e.handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	e.log.Info().Strs("topics", pubsub.AllTopics).Msg("kafka export started")
	return nil
}

func (e *Exporter) handle(ctx context.Context, msg pubsub.Message) error {
	err := e.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Payload,
		Headers: []kafkago.Header{{Key: headerTopic, Value: []byte(msg.Topic)}},
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("export %s: %w", msg.Topic, err)
	}
	e.log.Debug().Str("topic", msg.Topic).Str("key", msg.Key).Msg("event exported")
	return nil
}

// Close flushes and closes the writer.
func (e *Exporter) Close() error {
	return e.writer.Close()
}
