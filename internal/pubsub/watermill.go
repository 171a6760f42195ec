package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// Metadata keys used to carry Message fields through watermill.
const (
	metaKeyTopic = "topic"
	metaKeyKey   = "key"
)

// WatermillBridge implements Publisher and Subscriber on watermill's in-process GoChannel.
type WatermillBridge struct {
	pub message.Publisher
	sub message.Subscriber
	log *zerolog.Logger
}

var (
	_ Publisher  = (*WatermillBridge)(nil)
	_ Subscriber = (*WatermillBridge)(nil)
)

// NewWatermillBridge initializes an in-memory bus.
func NewWatermillBridge(logger *zerolog.Logger) *WatermillBridge {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewLoggerAdapter(logger),
	)

	return &WatermillBridge{
		pub: goChannel,
		sub: goChannel,
		log: logger,
	}
}

func toWatermill(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	wmMsg.Metadata.Set(metaKeyKey, msg.Key)
	return wmMsg
}

func fromWatermill(wmMsg *message.Message) Message {
	metadata := make(map[string]string)
	for k, v := range wmMsg.Metadata {
		if k != metaKeyTopic && k != metaKeyKey {
			metadata[k] = v
		}
	}
	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		Key:      wmMsg.Metadata.Get(metaKeyKey),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements Publisher.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	return wb.pub.Publish(msg.Topic, toWatermill(msg))
}

// Subscribe implements Subscriber. Handler errors nack the message and are logged.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			if err := handler(ctx, fromWatermill(wmMsg)); err != nil {
				wb.log.Warn().Err(err).Str("topic", topic).Str("msg_id", wmMsg.UUID).Msg("bus handler failed")
				wmMsg.Nack()
				continue
			}
			wmMsg.Ack()
		}
		wb.log.Debug().Str("topic", topic).Msg("bus subscription ended")
	}()

	return nil
}

// Close shuts down the bus and ends all subscriptions.
func (wb *WatermillBridge) Close() error {
	return wb.pub.Close()
}

// loggerAdapter routes watermill's internal logging into zerolog.
type loggerAdapter struct {
	log    *zerolog.Logger
	fields watermill.LogFields
}

// NewLoggerAdapter wraps a zerolog logger as a watermill.LoggerAdapter.
func NewLoggerAdapter(logger *zerolog.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{log: logger}
}

func (l *loggerAdapter) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	return ev.Fields(map[string]interface{}(l.fields.Add(fields)))
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.log.Error().Err(err), fields).Msg(msg)
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	// watermill is chatty at info; keep it at debug.
	l.event(l.log.Debug(), fields).Msg(msg)
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), fields).Msg(msg)
}

func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), fields).Msg(msg)
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{log: l.log, fields: l.fields.Add(fields)}
}
