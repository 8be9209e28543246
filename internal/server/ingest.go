package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
)

const maxWorkbookBytes int64 = 50 << 20

// UploadWorkbook ingests a multipart workbook upload.
func (s *Server) UploadWorkbook(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}
	if header.Size > maxWorkbookBytes {
		AbortWithError(c, newValidationError("file", "too_large", "file exceeds 50MB"))
		return
	}

	receivedAt, err := parseOptionalTime(c.PostForm("received_at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("received_at", "invalid_received_at", "received_at must be RFC3339 or YYYY-MM-DD"))
		return
	}

	f, err := header.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxWorkbookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.ingestSvc.IngestFile(c.Request.Context(), ingestdomain.FileRequest{
		Source:     rundomain.SourceUpload,
		Client:     c.PostForm("client"),
		Region:     c.PostForm("region"),
		FileName:   header.Filename,
		Data:       data,
		MessageID:  strings.TrimSpace(c.PostForm("message_id")),
		ReceivedAt: receivedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// IngestByClientRegion pulls the newest inbox attachment for a registered stream.
func (s *Server) IngestByClientRegion(c *gin.Context) {
	var req ingestdomain.InboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.LookbackHours < 0 {
		AbortWithError(c, newValidationError("hours", "invalid_hours", "hours must be positive"))
		return
	}
	req.Source = rundomain.SourceInbox

	res, err := s.ingestSvc.IngestFromInbox(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) ListIngestRuns(c *gin.Context) {
	var req rundomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.runSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"runs":      res.Runs,
		"page_info": res.PageInfo,
	})
}
