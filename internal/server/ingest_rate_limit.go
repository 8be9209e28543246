package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sheetseries/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sheetseries/internal/observability/metrics"
	"github.com/smallbiznis/sheetseries/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonClientRate       = "client-rate"
	rateLimitReasonSelectorInFlight = "selector-in-flight"
)

const maxUploadMemory int64 = 32 << 20

type ingestRateLimitKey struct {
	Client string `json:"client"`
	Region string `json:"region"`
}

// IngestRateLimit throttles ingestion per client and serializes concurrent
// ingests of the same (client, region) stream.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		key, err := readIngestKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("ingest rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if key.Client == "" {
			// the handler rejects the request
			c.Next()
			return
		}

		res, err := s.ingestLimiter.AllowClient(ctx, key.Client)
		if err != nil {
			logger.FromContext(ctx).Warn("ingest client rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyIngestRateLimit(c, endpoint, key.Client, rateLimitReasonClientRate, res.RetryAfter.Seconds(), s.obsMetrics)
			return
		}

		var region *string
		if key.Region != "" {
			region = &key.Region
		}
		lease, err := s.ingestLimiter.LockSelector(ctx, key.Client, region)
		if err != nil {
			if errors.Is(err, ratelimit.ErrSelectorBusy) {
				denyIngestRateLimit(c, endpoint, key.Client, rateLimitReasonSelectorInFlight, 1, s.obsMetrics)
				return
			}
			logger.FromContext(ctx).Warn("ingest selector lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		defer func() {
			// release even when the client went away mid-request
			if err := s.ingestLimiter.Unlock(context.WithoutCancel(ctx), lease); err != nil {
				logger.FromContext(ctx).Warn("ingest selector unlock failed", zap.Error(err))
			}
		}()

		recordRateLimitAllowed(ctx, endpoint, key.Client, s.obsMetrics)
		c.Next()
	}
}

func denyIngestRateLimit(c *gin.Context, endpoint, client, reason string, retryAfter float64, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("ingest rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
		zap.String("client", client),
	)
	recordRateLimitDenied(ctx, endpoint, client, reason, metrics)

	seconds := int(math.Ceil(retryAfter))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint, client string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, client, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, client, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, client, endpoint, reason)
}

// readIngestKey peeks at the selector without consuming the request body.
func readIngestKey(c *gin.Context) (ingestRateLimitKey, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
			return ingestRateLimitKey{}, err
		}
		return ingestRateLimitKey{
			Client: strings.TrimSpace(c.Request.PostFormValue("client")),
			Region: strings.TrimSpace(c.Request.PostFormValue("region")),
		}, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ingestRateLimitKey{}, err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return ingestRateLimitKey{}, nil
	}

	var payload ingestRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return ingestRateLimitKey{}, nil
	}
	payload.Client = strings.TrimSpace(payload.Client)
	payload.Region = strings.TrimSpace(payload.Region)
	return payload, nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
