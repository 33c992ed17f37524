package trace

import (
	"context"
	"testing"

	"manus/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TraceConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// no-op tracer still hands out usable spans
	_, span := Tracer().Start(context.Background(), "test")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(config.TraceConfig{Endpoint: "localhost:4318"}), 2)
	assert.Len(t, exporterOptions(config.TraceConfig{
		Endpoint: "localhost:4318",
		URLPath:  "/v1/traces",
		APIKey:   "k",
	}), 4)
}
