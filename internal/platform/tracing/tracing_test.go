package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/config"
)

func TestNewProvider(t *testing.T) {
	t.Run("none is a no-op", func(t *testing.T) {
		p, err := NewProvider(config.Tracing{Exporter: config.ExporterNone})
		require.NoError(t, err)

		_, span := p.Tracer().Start(context.Background(), "op")
		assert.False(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("stdout records spans", func(t *testing.T) {
		p, err := NewProvider(config.Tracing{Exporter: config.ExporterStdout, ServiceName: "test"})
		require.NoError(t, err)

		_, span := p.Tracer().Start(context.Background(), "op")
		assert.True(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := NewProvider(config.Tracing{Exporter: "jaeger"})
		assert.Error(t, err)
	})
}
