package middleware

import (
	"errors"
	"log/slog"

	apiError "markdown-annotator/internal/errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // Execute the handler first

		// detect any errors
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			var apiErr *apiError.APIError

			// if it's our custom APIError
			if !errors.As(err, &apiErr) {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					apiErr = apiError.NotFound("Resource not found", err)
				} else {
					// If it's a raw error we didn't wrap, treat as Internal
					apiErr = apiError.Internal(err)
				}
			}

			requestID := c.GetString(RequestIDKey)
			if apiErr.Status >= 500 {
				slog.Error("request failed",
					"request_id", requestID,
					"path", c.FullPath(),
					"error", apiErr.Internal)
			} else {
				slog.Info(apiErr.Message,
					"request_id", requestID,
					"path", c.FullPath(),
					"status", apiErr.Status,
					"error", apiErr.Internal)
			}

			// Respond with JSON
			c.AbortWithStatusJSON(apiErr.Status, apiErr)
		}
	}
}
