package api

import (
	"context"
	"embed"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/middleware"
	"github.com/pageza/alchemorsel-recommender/internal/rules"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// Recommender runs searches for the UI and the JSON API.
type Recommender interface {
	Recommend(ctx context.Context, req service.Request) (*service.Result, error)
	Rules() *rules.Ruleset
}

// Ingester loads an uploaded dataset into the index.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader, source string, opts service.IngestOptions) (*service.IngestReport, error)
}

// Authenticator issues and checks admin tokens.
type Authenticator interface {
	middleware.TokenValidator
	Enabled() bool
	Login(username, password string) (string, time.Time, error)
}

// Dependencies are the services the HTTP surface is built on. Ingester and
// Auth may be nil, which disables the admin routes.
type Dependencies struct {
	Recommender    Recommender
	Ingester       Ingester
	Auth           Authenticator
	Index          index.Index
	RateLimiter    *middleware.RateLimiter
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Templates parses the embedded HTML templates.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"join":  strings.Join,
		"title": displayName,
	}).ParseFS(templateFS, "templates/*.html"))
}

// RegisterRoutes registers the UI pages, the JSON API and the admin API.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	router.SetHTMLTemplate(Templates())

	health := NewHealthHandler(deps.Index)
	router.GET("/health", health.Health)
	router.GET("/api/health", health.Health)

	limited := []gin.HandlerFunc{middleware.Timeout(deps.RequestTimeout), deps.RateLimiter.Middleware()}

	pages := NewPageHandler(deps.Recommender)
	router.GET("/", pages.Form)
	router.GET("/recipes", append(limited, pages.Results)...)

	v1 := router.Group("/api/v1")
	recommendations := NewRecommendationHandler(deps.Recommender)
	v1.GET("/rules", recommendations.Rules)
	v1.POST("/recommendations", append(limited, recommendations.Recommend)...)

	if deps.Auth != nil && deps.Ingester != nil {
		admin := NewAdminHandler(deps.Auth, deps.Ingester, deps.MaxUploadBytes)
		admin.RegisterRoutes(v1)
	}
}

// displayName capitalises each word of a rule name for the form selects.
func displayName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
