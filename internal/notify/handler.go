package notify

import (
	"context"
	"errors"

	kafkax "github.com/ariefcatur/go-order-inventory/internal/kafka"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// ConfirmationHandler consumes OrderCreated events and emails the customer.
// Each event id is delivered at most once per dedup window.
type ConfirmationHandler struct {
	dedup  Deduper
	mailer Mailer
	logger *zap.Logger
	tracer trace.Tracer
}

func NewConfirmationHandler(dedup Deduper, mailer Mailer, logger *zap.Logger) *ConfirmationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationHandler{
		dedup:  dedup,
		mailer: mailer,
		logger: logger,
		tracer: otel.Tracer("github.com/ariefcatur/go-order-inventory/internal/notify"),
	}
}

// Handle matches kafka.Handler. Undecodable or foreign events are logged and
// acknowledged; Redis or mailer failures return an error so the offset stays
// uncommitted.
func (h *ConfirmationHandler) Handle(ctx context.Context, m kafka.Message) (err error) {
	ctx = kafkax.ExtractTrace(ctx, m.Headers)
	ctx, span := h.tracer.Start(ctx, "notify.order_confirmation", trace.WithSpanKind(trace.SpanKindConsumer))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ev, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		h.logger.Error("skipping undecodable event",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		return nil
	}
	if ev.EventType != orders.EventOrderCreated {
		h.logger.Debug("ignoring event", zap.String("event_type", ev.EventType))
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](ev.Payload)
	if err != nil {
		h.logger.Error("skipping event with bad payload", zap.String("event_id", ev.EventID), zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.String("order.id", p.OrderID), attribute.String("event.id", ev.EventID))

	first, err := h.dedup.Claim(ctx, ev.EventID)
	if err != nil {
		return err
	}
	if !first {
		h.logger.Info("duplicate event", zap.String("event_id", ev.EventID), zap.String("order_id", p.OrderID))
		return nil
	}

	msg, err := RenderConfirmation(p)
	if err != nil {
		if errors.Is(err, orders.ErrValidation) {
			h.logger.Warn("no confirmation sent", zap.String("order_id", p.OrderID), zap.Error(err))
			return nil
		}
		return h.fail(ctx, ev.EventID, p.OrderID, err)
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return h.fail(ctx, ev.EventID, p.OrderID, err)
	}
	h.logger.Info("order confirmation delivered",
		zap.String("order_id", p.OrderID),
		zap.String("event_id", ev.EventID),
		zap.String("trace_id", ev.TraceID),
	)
	return nil
}

func (h *ConfirmationHandler) fail(ctx context.Context, eventID, orderID string, cause error) error {
	if ferr := h.dedup.Forget(ctx, eventID); ferr != nil {
		h.logger.Warn("dedup release failed", zap.String("event_id", eventID), zap.Error(ferr))
	}
	err := &orders.DispatchError{OrderID: orderID, Err: cause}
	h.logger.Error("order confirmation failed", zap.String("order_id", orderID), zap.Error(err))
	return err
}
