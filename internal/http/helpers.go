package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/logging"
	"github.com/libdesk/libdesk/internal/procedures"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// EnvelopeResponse is the {success, data} shape the browser client reads.
type EnvelopeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, logger logrus.FieldLogger, err error, context string) {
	logger.WithError(err).WithFields(logrus.Fields{
		"context":    context,
		"request_id": c.GetString(logging.ContextKeyRequestID),
	}).Error("Internal error")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondEnvelopeError is respondInternalError for routes answering with the envelope shape.
func respondEnvelopeError(c *gin.Context, logger logrus.FieldLogger, err error, context, message string) {
	logger.WithError(err).WithFields(logrus.Fields{
		"context":    context,
		"request_id": c.GetString(logging.ContextKeyRequestID),
	}).Error("Internal error")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, EnvelopeResponse{Success: false, Error: message})
}

// respondError sends an error response with the given status code.
// Use the specific helpers (respondBadRequest, respondInternalError) when possible.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// --- Success Response Helpers ---

// respondCreated sends a 201 Created response with data.
func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// respondData sends a 200 OK envelope around data.
func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, EnvelopeResponse{Success: true, Data: data})
}

// --- Procedure results ---

// resultStatus maps a non-OK procedure result onto an HTTP status.
func resultStatus(r procedures.Result) int {
	if !r.IsDomainError() {
		return http.StatusInternalServerError
	}
	switch r.Kind {
	case procedures.KindNotFound:
		return http.StatusNotFound
	case procedures.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// respondResult writes the error body for a rejected procedure result.
func respondResult(c *gin.Context, r procedures.Result) {
	respondError(c, resultStatus(r), r.Message)
}

// --- Parameter Parsing ---

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
