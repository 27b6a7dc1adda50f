package kafka

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sync"
	"testing"
	"time"
)

type fakeWriter struct {
	mu     sync.Mutex
	gate   chan struct{}
	msgs   []kafka.Message
	closed bool
	fail   bool
}

func (w *fakeWriter) WriteMessage(_ context.Context, m kafka.Message) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, m)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestProducer_PublishAndFlush(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 8, zap.NewNop())
	p.Start(context.Background())

	require.True(t, p.Publish(context.Background(), []byte("o1"), []byte(`{"a":1}`),
		kafka.Header{Key: HeaderEventType, Value: []byte(orders.EventOrderCreated)}))
	require.True(t, p.Publish(context.Background(), []byte("o2"), []byte(`{"a":2}`)))

	p.Close()
	p.WaitClosed()

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "o1", string(msgs[0].Key))
	assert.Equal(t, orders.EventOrderCreated, Header(msgs[0].Headers, HeaderEventType))
	assert.True(t, w.closed)

	assert.False(t, p.Publish(context.Background(), []byte("late"), nil), "publish after close is refused")
	p.Close()
}

func TestProducer_DropsWhenFull(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{gate: make(chan struct{})}
	p := NewProducerWithWriter(w, 1, zap.NewNop())
	p.Start(context.Background())

	// The first message is taken by the writer goroutine and blocks on the
	// gate; the second fills the buffer.
	require.True(t, p.Publish(context.Background(), []byte("a"), nil))
	require.Eventually(t, func() bool { return len(p.inbox) == 0 }, time.Second, time.Millisecond)
	require.True(t, p.Publish(context.Background(), []byte("b"), nil))

	done := make(chan bool)
	go func() { done <- p.Publish(context.Background(), []byte("c"), nil) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full inbox")
	}

	close(w.gate)
	p.Close()
	p.WaitClosed()
	assert.Len(t, w.written(), 2)
}

func TestProducer_WriteErrorsAreSwallowed(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{fail: true}
	p := NewProducerWithWriter(w, 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.True(t, p.Publish(context.Background(), []byte("x"), nil))
	cancel()
	p.WaitClosed()
	assert.Empty(t, w.written())
	assert.True(t, w.closed)
}

type fakeReader struct {
	in chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	t.Parallel()
	r := &fakeReader{in: make(chan kafka.Message, 3)}
	r.in <- kafka.Message{Offset: 1, Value: []byte("ok")}
	r.in <- kafka.Message{Offset: 2, Value: []byte("bad")}
	r.in <- kafka.Message{Offset: 3, Value: []byte("ok")}

	c := NewConsumerWithReader(r, 2, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if string(m.Value) == "bad" {
				return errors.New("poison")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
	assert.ElementsMatch(t, []int64{1, 3}, r.commits())
	assert.True(t, r.closed)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()
	o := orders.Order{ID: "o1", OwnerID: "u1", Status: orders.StatusPending, TotalPrice: 42}
	raw := MustMarshal(orders.Envelope{
		EventID:      "e1",
		EventType:    orders.EventOrderCreated,
		EventVersion: orders.EventVersion,
		Payload:      MustMarshal(orders.NewOrderCreatedPayload(o)),
	})

	ev, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "e1", ev.EventID)

	p, err := UnwrapPayload[orders.OrderCreatedPayload](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, "o1", p.OrderID)
	assert.Equal(t, int64(42), p.TotalPrice)

	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}
