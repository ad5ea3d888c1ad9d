package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/alchemorsel-recommender/internal/dataset"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, dataset.ErrMissingColumn):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAdminDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrIngestInProgress):
		return http.StatusConflict
	case errors.Is(err, index.ErrDimensionMismatch):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, index.ErrIndexUnavailable),
		errors.Is(err, index.ErrIndexNotFound),
		errors.Is(err, service.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown to the caller. Internal details stay in
// the logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, dataset.ErrMissingColumn),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrAdminDisabled),
		errors.Is(err, service.ErrIngestInProgress):
		return err.Error()
	case errors.Is(err, index.ErrDimensionMismatch):
		return "The recipe index was built with a different embedding model. Re-run ingestion with --recreate."
	case errors.Is(err, index.ErrIndexNotFound):
		return "The recipe index has not been built yet. Run ingestion first."
	case errors.Is(err, context.DeadlineExceeded):
		return "The search took too long. Please try again."
	case errors.Is(err, index.ErrIndexUnavailable):
		return "The recipe search service is unavailable right now. Please try again shortly."
	case errors.Is(err, service.ErrEmbeddingUnavailable):
		return "The embedding service is unavailable right now. Please try again shortly."
	default:
		return "Something went wrong while processing your request."
	}
}

// respondError logs err and writes it as JSON.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	logError(c, status, err)
	c.JSON(status, gin.H{"error": userMessage(err)})
}

func logError(c *gin.Context, status int, err error) {
	log := logging.Ctx(c.Request.Context())
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("request failed")
}
