package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/api"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/middleware"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
}

// New creates the gin engine with the shared middleware, the UI, the API
// and /metrics.
func New(cfg *config.Config, deps api.Dependencies) *Server {
	if cfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	if deps.RequestTimeout == 0 {
		deps.RequestTimeout = cfg.Server.RequestTimeout
	}
	if deps.MaxUploadBytes == 0 {
		deps.MaxUploadBytes = cfg.Admin.MaxUpload
	}
	api.RegisterRoutes(router, deps)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Address(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.http.Addr).Msg("starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
