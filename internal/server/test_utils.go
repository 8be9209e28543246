package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes rows written by end-to-end runs whose clients share a prefix.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	deleted := make(map[string]int64, 2)
	for _, table := range []string{"timeseries_data", "ingest_runs"} {
		res := s.db.WithContext(ctx).Exec(`DELETE FROM `+table+` WHERE client LIKE ?`, like)
		if res.Error != nil {
			AbortWithError(c, res.Error)
			return
		}
		deleted[table] = res.RowsAffected
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": deleted})
}
