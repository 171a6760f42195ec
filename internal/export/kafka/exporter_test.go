package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/socialchat-server/internal/pubsub"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafkago.Message(nil), w.msgs...)
}

func TestExporterForwardsBusEvents(t *testing.T) {
	logger := zerolog.Nop()
	bus := pubsub.NewWatermillBridge(&logger)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &fakeWriter{}
	exp := New(w, &logger)
	require.NoError(t, exp.Start(ctx, bus))

	require.NoError(t, pubsub.PublishJSON(ctx, bus, pubsub.TopicMessageCreated, "dm:1:2", pubsub.MessageCreated{MessageID: 7}))
	require.NoError(t, pubsub.PublishJSON(ctx, bus, pubsub.TopicThreadDeleted, "dm:1:2", pubsub.ThreadDeleted{}))

	require.Eventually(t, func() bool { return len(w.written()) == 2 }, 2*time.Second, 10*time.Millisecond)

	topics := map[string]bool{}
	for _, m := range w.written() {
		assert.Equal(t, "dm:1:2", string(m.Key))
		require.Len(t, m.Headers, 1)
		topics[string(m.Headers[0].Value)] = true
	}
	assert.True(t, topics[pubsub.TopicMessageCreated])
	assert.True(t, topics[pubsub.TopicThreadDeleted])

	require.NoError(t, exp.Close())
	assert.True(t, w.closed)
}

func TestNewWriterUsesTopic(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "social.events")
	assert.Equal(t, "social.events", w.Topic)
	assert.NoError(t, w.Close())
}
