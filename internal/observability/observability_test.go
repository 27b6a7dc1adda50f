package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(Options{ServiceName: "order-api"}, "warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("restock skipped", zap.String("product_id", "p1"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "restock skipped", entry["msg"])
	assert.Equal(t, "p1", entry["product_id"])
	assert.Equal(t, "order-api", entry["service.name"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := newLogger(Options{}, "loud", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()

	shutdownTraces, err := SetupTracing(ctx, Options{ServiceName: "order-api"})
	require.NoError(t, err)
	shutdownLogs, err := SetupLogging(ctx, Options{ServiceName: "order-api"})
	require.NoError(t, err)

	assert.NoError(t, shutdownTraces(ctx))
	assert.NoError(t, shutdownLogs(ctx))

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}
