package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/stats", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/workbooks/:handle/sheets", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.POST("/api/ingest/upload", func(c *gin.Context) {
		_ = c.Error(errors.New("persistence_error: insert failed for Acme"))
		c.Status(http.StatusInternalServerError)
	})
	return r, recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsSelector(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet,
		"/api/stats?client=Acme&workspace=LIVE&basis=days", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/stats", spans[0].Name())
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "Acme", attrs["sheetseries.client"].AsString())
	assert.Equal(t, "LIVE", attrs["sheetseries.workspace"].AsString())
	assert.Equal(t, "days", attrs["sheetseries.basis"].AsString())
	assert.NotContains(t, attrs, attribute.Key("sheetseries.region"))
	assert.EqualValues(t, http.StatusOK, attrs["http.status_code"].AsInt64())
}

func TestGinMiddlewareSkipsHealth(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, recorder.Ended())
}

func TestGinMiddlewareRecordsFailures(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/workbooks/01HZX/sheets", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/ingest/upload", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	missing := spans[0]
	assert.Equal(t, "01HZX", spanAttrs(missing)["sheetseries.workbook_handle"].AsString())
	assert.Equal(t, codes.Unset, missing.Status().Code)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	require.Len(t, failed.Events(), 1)
	var message string
	for _, kv := range failed.Events()[0].Attributes {
		if kv.Key == "exception.message" {
			message = kv.Value.AsString()
		}
	}
	assert.Equal(t, "persistence_error", message)
}
