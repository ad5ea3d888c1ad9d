package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/alchemorsel-recommender/internal/logging"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorHandler turns panics and errors left in c.Errors into a JSON error
// response when the handler did not write one itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Ctx(c.Request.Context()).Error().
					Interface("panic", rec).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
				} else {
					c.Abort()
				}
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		last := c.Errors.Last()
		logging.Ctx(c.Request.Context()).Error().Err(last.Err).Str("path", c.Request.URL.Path).Msg("request failed")
		if c.Writer.Written() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{Error: last.Error()})
	}
}
