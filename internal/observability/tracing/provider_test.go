package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/stats"),
		attribute.String("parameter", "Pressure"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsPrefixOnly(t *testing.T) {
	err := SafeError(fmt.Errorf("persistence_error: %w", errors.New("insert into timeseries_data failed for Acme")))
	assert.EqualError(t, err, "persistence_error")
	assert.Nil(t, SafeError(nil))
}

func TestDisabledProviderNeverSamples(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	_, span := provider.Tracer("test").Start(t.Context(), "op")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}
