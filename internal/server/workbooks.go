package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sheetseries/internal/workbook"
)

func (s *Server) ListWorkbookSheets(c *gin.Context) {
	handle, err := workbook.ParseHandle(c.Param("handle"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	names, err := s.workbooks.Sheets(c.Request.Context(), handle)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"workbook_handle": handle.String(),
		"sheets":          names,
	})
}

// PreviewWorkbookSheet returns the compacted cell grid of one sheet.
func (s *Server) PreviewWorkbookSheet(c *gin.Context) {
	handle, err := workbook.ParseHandle(c.Param("handle"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	name := c.Param("name")

	grid, err := s.workbooks.Preview(c.Request.Context(), handle, name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows := [][]string(grid)
	if rows == nil {
		rows = [][]string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"workbook_handle": handle.String(),
		"sheet":           name,
		"rows":            rows,
	})
}
