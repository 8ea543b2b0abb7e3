package api

import (
	"github.com/gin-gonic/gin"
)

const (
	ErrorCodeValidation  = "validation_error"
	ErrorCodeNotFound    = "not_found"
	ErrorCodeConflict    = "conflict"
	ErrorCodeUnavailable = "unavailable"
	ErrorCodeInternal    = "internal_error"
)

// JSONError writes the {"error":{"code","message"}} envelope.
func JSONError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func AbortJSONError(c *gin.Context, status int, code, message string) {
	JSONError(c, status, code, message)
	c.Abort()
}
