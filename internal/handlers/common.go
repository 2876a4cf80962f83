package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/session"
	"github.com/examind/test-engine/internal/utils"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case session.IsValidation(err):
		details := interface{}(nil)
		var ve utils.ValidationErrors
		if asValidationErrors(err, &ve) {
			details = ve
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: err.Error(),
			Details: details,
			Code:    "validation_failed",
		})
	case session.IsNotFound(err) || questionbank.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
			Code:    "not_found",
		})
	case session.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
			Code:    "conflict",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "internal server error",
			Code:    "internal_error",
		})
	}
}

func asValidationErrors(err error, target *utils.ValidationErrors) bool {
	ve, ok := err.(utils.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
