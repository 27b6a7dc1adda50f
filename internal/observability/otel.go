package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	tracesPath    = "/v1/traces"
	logsPath      = "/v1/logs"
	exportTimeout = 30 * time.Second
	maxQueueSize  = 2048
)

// Options selects the OTLP/HTTP collector. An empty Endpoint disables export;
// the global providers then stay no-op.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	AuthHeader     string
	Insecure       bool
}

func (o Options) Enabled() bool { return o.Endpoint != "" }

func (o Options) headers() map[string]string {
	if o.AuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": o.AuthHeader}
}

func newResource(o Options) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(o.ServiceName),
			semconv.ServiceVersion(o.ServiceVersion),
		),
	)
}

type shutdownFunc func(context.Context) error

func joinShutdown(fns []shutdownFunc) shutdownFunc {
	return func(ctx context.Context) error {
		var err error
		for i := len(fns) - 1; i >= 0; i-- {
			err = errors.Join(err, fns[i](ctx))
		}
		return err
	}
}

// SetupTracing installs the W3C propagator and, when enabled, a batching
// OTLP trace exporter as the global tracer provider.
func SetupTracing(ctx context.Context, o Options) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !o.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(o)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(o.Endpoint),
		otlptracehttp.WithURLPath(tracesPath),
		otlptracehttp.WithHeaders(o.headers()),
	}
	if o.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("OTLP trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp,
			sdktrace.WithExportTimeout(exportTimeout),
			sdktrace.WithMaxQueueSize(maxQueueSize),
		)),
	)
	otel.SetTracerProvider(tp)
	return joinShutdown([]shutdownFunc{tp.Shutdown}), nil
}

// SetupLogging installs a global OTLP logger provider for the otelzap bridge.
func SetupLogging(ctx context.Context, o Options) (func(context.Context) error, error) {
	if !o.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(o)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(o.Endpoint),
		otlploghttp.WithURLPath(logsPath),
		otlploghttp.WithHeaders(o.headers()),
	}
	if o.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exp, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("OTLP log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp,
			sdklog.WithExportTimeout(exportTimeout),
			sdklog.WithMaxQueueSize(maxQueueSize),
		)),
	)
	global.SetLoggerProvider(lp)
	return joinShutdown([]shutdownFunc{lp.Shutdown}), nil
}
