package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{pending: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	if len(r.pending) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducerPublishTagsEventType(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "orders")
	stamp := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	producer.now = func() time.Time { return stamp }

	publisher := NewEventPublisher(producer)
	orderID := uuid.New()
	err := publisher.PublishOrderRestocked(context.Background(), &models.OrderRestockedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderRestocked, stamp),
		OrderID:   orderID,
		Code:      "EX-1",
	})
	require.NoError(t, err)

	require.Len(t, writer.written, 1)
	msg := writer.written[0]
	assert.Equal(t, "order-"+orderID.String(), string(msg.Key))
	assert.Equal(t, models.EventTypeOrderRestocked, headerValue(msg, eventTypeHeader))
	assert.Equal(t, stamp, msg.Time)
	assert.Contains(t, string(msg.Value), `"code":"EX-1"`)
}

func TestProducerPublishWrapsWriteError(t *testing.T) {
	producer := newProducer(&fakeWriter{err: errors.New("leader not available")}, "orders")

	err := producer.Publish(context.Background(), "k", models.EventTypeOrderCreated, map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Contains(t, err.Error(), "orders")
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte("flaky")},
		kafka.Message{Offset: 2, Value: []byte("broken")},
	)
	consumer := newConsumer(reader, "orders")
	consumer.backoff = time.Millisecond

	var mu sync.Mutex
	calls := map[string]int{}
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls[string(msg.Value)]++
		if string(msg.Value) == "flaky" && calls["flaky"] < 2 {
			return errors.New("redis timeout")
		}
		if string(msg.Value) == "broken" {
			return errors.New("always fails")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Consume(ctx, handler) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls["flaky"])
	assert.Equal(t, consumer.maxAttempts, calls["broken"])
	assert.Equal(t, []int64{1, 2}, reader.committed)
}
