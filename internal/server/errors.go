package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/fetcher"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	"github.com/smallbiznis/sheetseries/internal/ratelimit"
	"github.com/smallbiznis/sheetseries/internal/sheet"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/internal/workbook"
	"github.com/smallbiznis/sheetseries/pkg/db/pagination"
)

type ValidationError struct {
	Field   string   `json:"field"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Allowed []string `json:"allowed,omitempty"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	OK    bool         `json:"ok"`
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var qErr *analyticsdomain.ValidationError
	if errors.As(err, &qErr) {
		code := qErr.Err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: qErr.Reason,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: qErr.Reason,
					Allowed: qErr.Allowed,
				},
			},
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ratelimit.ErrSelectorBusy):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "ingestion already in progress for this client and region",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "timeout",
			Message: "request timed out",
		}
	case errors.Is(err, tsdomain.ErrPersistence):
		return http.StatusInternalServerError, errorPayload{
			Type:    "persistence_error",
			Message: "failed to persist data",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ingestdomain.ErrInvalidClient),
		errors.Is(err, ingestdomain.ErrEmptyFile),
		errors.Is(err, tsdomain.ErrInvalidClient),
		errors.Is(err, tsdomain.ErrInvalidMonths),
		errors.Is(err, rundomain.ErrInvalidClient),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, sheet.ErrUnsupportedFormat),
		errors.Is(err, workbook.ErrInvalidHandle),
		errors.Is(err, config.ErrRegionRequired),
		errors.Is(err, config.ErrRegionForbidden):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		workbook.IsNotFound(err),
		errors.Is(err, sheet.ErrSheetNotFound),
		errors.Is(err, fetcher.ErrNoAttachment),
		errors.Is(err, config.ErrUnknownClient),
		errors.Is(err, config.ErrUnknownRegion):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, fetcher.ErrNoAttachment):
		return "no matching workbook attachment found"
	case errors.Is(err, config.ErrUnknownClient):
		return "unknown client"
	case errors.Is(err, config.ErrUnknownRegion):
		return "unknown region"
	case workbook.IsNotFound(err):
		return "workbook not found"
	case errors.Is(err, sheet.ErrSheetNotFound):
		return "sheet not found"
	default:
		return "not found"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ingestdomain.ErrInvalidClient),
		errors.Is(err, tsdomain.ErrInvalidClient),
		errors.Is(err, rundomain.ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, tsdomain.ErrInvalidMonths):
		return "invalid_months"
	case errors.Is(err, ingestdomain.ErrEmptyFile):
		return "invalid_file"
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		return "invalid_file_format"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	case errors.Is(err, workbook.ErrInvalidHandle):
		return "invalid_workbook_handle"
	case errors.Is(err, config.ErrRegionRequired):
		return "region_required"
	case errors.Is(err, config.ErrRegionForbidden):
		return "region_not_supported"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "region_required", "region_not_supported":
		return "region"
	case "invalid_file_format":
		return "file"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_client":
		return "client is required"
	case "invalid_months":
		return "months must be between 1 and 120"
	case "invalid_file":
		return "file is empty"
	case "invalid_file_format":
		return "only .xlsx, .xls and .csv workbooks are supported"
	case "region_required":
		return "region is required for this client"
	case "region_not_supported":
		return "this client does not use regions"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog returns the error type and code logged for a failed request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 && payload.Errors[0].Code != "" {
		code = payload.Errors[0].Code
	}
	switch {
	case status >= http.StatusInternalServerError:
		return "server", code
	case status == http.StatusTooManyRequests:
		return "rate_limit", code
	default:
		return "client", code
	}
}
