package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/sheetseries/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var seenRequestID, seenClient string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/stats", func(c *gin.Context) {
		seenRequestID = obscontext.RequestIDFromContext(c.Request.Context())
		seenClient = obscontext.ClientFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats?client=Acme", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, seenRequestID)
	assert.Equal(t, seenRequestID, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "Acme", seenClient)

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/api/stats", fields["route"])
		assert.EqualValues(t, http.StatusOK, fields["status"])
	}
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestOperationFromSQL(t *testing.T) {
	tests := map[string]string{
		"SELECT * FROM timeseries_data":                  "SELECT",
		"  insert into timeseries_data values (1)":       "INSERT",
		"WITH latest AS (SELECT 1) SELECT * FROM latest": "SELECT",
		"DELETE FROM timeseries_data WHERE ts_utc < ?":   "DELETE",
		"":                                               "UNKNOWN",
	}
	for sql, want := range tests {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "timeseries_data", tableFromSQL(`SELECT * FROM "timeseries_data" WHERE client = $1`))
	assert.Equal(t, "ingest_runs", tableFromSQL("INSERT INTO `ingest_runs` (id) VALUES (?)"))
	assert.Equal(t, "timeseries_data", tableFromSQL("UPDATE timeseries_data SET value = ?"))
	assert.Equal(t, "", tableFromSQL("SELECT 1"))
}
