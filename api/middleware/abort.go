package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/models"
)

// identityKey is the context key holding the caller identity used for rate
// limiting and logs. It never holds the raw API key.
const identityKey = "identity"

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}
