package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
)

func (s *Server) ListClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"clients": s.registry.Get().Names(),
	})
}

// ListRegions answers an empty list for regionless clients.
func (s *Server) ListRegions(c *gin.Context) {
	client := strings.TrimSpace(c.Query("client"))
	if client == "" {
		AbortWithError(c, newValidationError("client", "invalid_client", "client is required"))
		return
	}

	regions, err := s.registry.Get().Regions(client)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"client":  client,
		"regions": regions,
	})
}

// ListWorkspaces lists the workspaces that hold data for one client stream.
func (s *Server) ListWorkspaces(c *gin.Context) {
	var req analyticsdomain.WorkspacesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.analyticsSvc.Workspaces(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) ListCombinations(c *gin.Context) {
	var req analyticsdomain.CombinationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.analyticsSvc.Combinations(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
