package kafka

import (
	"context"
	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

type MessageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

type outbound struct {
	ctx context.Context
	msg kafka.Message
}

// Producer decouples callers from the broker: Publish only enqueues, a single
// goroutine performs the writes. When the inbox is full the message is
// dropped and Publish reports false.
type Producer struct {
	w      MessageWriter
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan outbound
	done   chan struct{}
	once   sync.Once
}

// NewProducer builds a hash-balanced writer for topic, wrapped so every write
// carries the caller's trace context in its headers.
func NewProducer(brokers []string, topic string, buf int, logger *zap.Logger) (*Producer, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(otel.GetTracerProvider()),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
		}),
	)
	if err != nil {
		return nil, err
	}
	return NewProducerWithWriter(w, buf, logger), nil
}

func NewProducerWithWriter(w MessageWriter, buf int, logger *zap.Logger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		w:      w,
		logger: logger,
		inbox:  make(chan outbound, buf),
		done:   make(chan struct{}),
	}
}

// Start runs the write loop. Cancelling ctx has the same effect as Close.
func (p *Producer) Start(ctx context.Context) {
	go p.run()
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-p.done:
		}
	}()
}

func (p *Producer) run() {
	defer close(p.done)
	for ob := range p.inbox {
		ctx, cancel := context.WithTimeout(ob.ctx, writeTimeout)
		if err := p.w.WriteMessage(ctx, ob.msg); err != nil {
			p.logger.Error("kafka write failed",
				zap.ByteString("key", ob.msg.Key),
				zap.Error(err),
			)
		}
		cancel()
	}
	if err := p.w.Close(); err != nil {
		p.logger.Warn("kafka writer close", zap.Error(err))
	}
}

// Publish enqueues a message without blocking. ctx is kept only for its
// values (trace span); its cancellation does not abort the write.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.inbox <- outbound{
		ctx: context.WithoutCancel(ctx),
		msg: kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers},
	}:
		return true
	default:
		return false
	}
}

func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

func (p *Producer) WaitClosed() { <-p.done }
