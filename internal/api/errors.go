package api

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/platelab/labeler/internal/crop"
	"github.com/platelab/labeler/internal/detector"
	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/securefs"
	"github.com/platelab/labeler/internal/triage"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // matches the server log line of this failure
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString(),
	}
}

// statusFor maps a domain error to its HTTP status and a short user message.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, media.ErrEmptyLabel):
		return http.StatusBadRequest, "Label is empty after sanitization"
	case errors.Is(err, media.ErrInvalidPath),
		errors.Is(err, securefs.ErrPathTraversal),
		errors.Is(err, securefs.ErrInvalidPath):
		return http.StatusBadRequest, "Invalid image path"
	case errors.Is(err, media.ErrSourceNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "Image not found"
	case errors.Is(err, detector.ErrNotFound), errors.Is(err, crop.ErrNoBox):
		return http.StatusNotFound, "No license plate detected"
	case errors.Is(err, securefs.ErrDestinationExists):
		return http.StatusConflict, "Destination already exists"
	case errors.Is(err, triage.ErrInvalidTransition):
		return http.StatusConflict, "Move not allowed from the current category"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	case errors.Is(err, detector.ErrDetectionFailed):
		return http.StatusInternalServerError, "Plate detection failed"
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound, "Not found"
	case errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict, "Conflict"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// HandleError logs err with a fresh correlation ID and writes the JSON error body.
func (s *Server) HandleError(c echo.Context, err error) error {
	code, message := statusFor(err)
	return s.writeError(c, err, message, code)
}

func (s *Server) writeError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Debug("API error", fields...)
	}

	if c.Request().Method == http.MethodHead {
		return c.NoContent(code)
	}
	return c.JSON(code, resp)
}

// httpErrorHandler renders errors that escape handlers, such as unknown
// routes, oversized bodies and panics caught by Recover, in the API format.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if werr := s.HandleError(c, err); werr != nil {
		s.log.Warn("failed to write error response", logger.Error(werr))
	}
}

// errorBody is handed to middleware that reject requests on their own.
func errorBody(code int, message string) any {
	return NewErrorResponse(nil, message, code)
}
