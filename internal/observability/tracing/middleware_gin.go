package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/sheetseries/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// selectorParams are the query parameters that name a stream.
var selectorParams = []struct {
	query string
	key   attribute.Key
}{
	{"client", "sheetseries.client"},
	{"region", "sheetseries.region"},
	{"workspace", "sheetseries.workspace"},
	{"basis", "sheetseries.basis"},
	{"mode", "sheetseries.mode"},
}

// GinMiddleware opens one server span per API request, tagged with the
// selector being queried. /health and /metrics are not traced.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("sheetseries/http")
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/metrics":
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		for _, p := range selectorParams {
			if v := strings.TrimSpace(c.Query(p.query)); v != "" {
				span.SetAttributes(attribute.String(string(p.key), v))
			}
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + method + " " + route)
		if handle := c.Param("handle"); handle != "" {
			span.SetAttributes(attribute.String("sheetseries.workbook_handle", handle))
		}
		status := c.Writer.Status()
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)

		if status < http.StatusBadRequest {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "request error")
		}
	}
}
