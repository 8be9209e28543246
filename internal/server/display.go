package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
)

func (s *Server) GetStats(c *gin.Context) {
	var req analyticsdomain.StatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, newValidationError("n", "invalid_n", "n must be an integer"))
		return
	}

	res, err := s.analyticsSvc.ComputeStats(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetLatest(c *gin.Context) {
	var req analyticsdomain.LatestRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.analyticsSvc.Latest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetSnapshot answers 404 with the explanatory body when nothing is stored at the slot.
func (s *Server) GetSnapshot(c *gin.Context) {
	var req analyticsdomain.SnapshotRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.analyticsSvc.SnapshotAt(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if !res.Found {
		status = http.StatusNotFound
	}
	c.JSON(status, res)
}
