package notify

import (
	"context"
	"errors"
	"strconv"

	"github.com/ariefcatur/go-order-inventory/internal/clock"
	kafkax "github.com/ariefcatur/go-order-inventory/internal/kafka"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var errQueueFull = errors.New("producer queue full or closed")

// Publisher is the non-blocking side of kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) bool
}

// KafkaDispatcher turns committed orders into OrderCreated events. It never
// blocks the caller and never reports back; a message the producer cannot
// accept is logged as a DispatchError and forgotten.
type KafkaDispatcher struct {
	pub     Publisher
	service string
	clock   clock.Clock
	logger  *zap.Logger
}

func NewKafkaDispatcher(pub Publisher, service string, clk clock.Clock, logger *zap.Logger) *KafkaDispatcher {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaDispatcher{pub: pub, service: service, clock: clk, logger: logger}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, o orders.Order) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  orders.EventVersion,
		OccurredAt:    d.clock.Now(),
		Producer:      d.service,
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(orders.NewOrderCreatedPayload(o)),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}

	ok := d.pub.Publish(ctx, orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafka.Header{Key: kafkax.HeaderEventType, Value: []byte(orders.EventOrderCreated)},
		kafka.Header{Key: kafkax.HeaderEventVersion, Value: []byte(strconv.Itoa(orders.EventVersion))},
	)
	if !ok {
		err := &orders.DispatchError{OrderID: o.ID, Err: errQueueFull}
		d.logger.Warn("order notification dropped",
			zap.String("order_id", o.ID),
			zap.String("event_id", ev.EventID),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("order notification queued",
		zap.String("order_id", o.ID),
		zap.String("event_id", ev.EventID),
	)
}
