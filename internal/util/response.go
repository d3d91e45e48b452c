package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SuccessResponse sends a standard success envelope
func SuccessResponse(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorResponse sends a standard error envelope
func ErrorResponse(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"message": message,
			"details": details,
		},
	})
}

// ErrorResponseWithType sends an error envelope carrying a machine-readable error type
func ErrorResponseWithType(c *gin.Context, status int, errorType, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"errorType": errorType,
			"message":   message,
		},
	})
}

// BadRequest sends a 400 error
func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message, nil)
}

// Unauthorized sends a 401 error
func Unauthorized(c *gin.Context, message string) {
	ErrorResponseWithType(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden sends a 403 error
func Forbidden(c *gin.Context, message string) {
	ErrorResponseWithType(c, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound sends a 404 error
func NotFound(c *gin.Context, message string) {
	ErrorResponseWithType(c, http.StatusNotFound, "NOT_FOUND", message)
}
