package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sheetseries/internal/observability/logger"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"go.uber.org/zap"
)

const defaultCleanupMonths = 6

// CleanupOldData purges points older than ?months (default 6).
func (s *Server) CleanupOldData(c *gin.Context) {
	months := defaultCleanupMonths
	if raw := strings.TrimSpace(c.Query("months")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, tsdomain.ErrInvalidMonths)
			return
		}
		months = parsed
	}

	ctx := c.Request.Context()
	res, err := s.pointSvc.Purge(ctx, tsdomain.PurgeRequest{Months: months})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordPurge(ctx, "admin", res.Deleted)
	logger.FromContext(ctx).Info("old data purged",
		zap.Int("months", months),
		zap.String("cutoff", res.Cutoff),
		zap.Int64("deleted", res.Deleted),
	)

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"months":  months,
		"cutoff":  res.Cutoff,
		"deleted": res.Deleted,
	})
}
