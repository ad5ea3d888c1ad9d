package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/middleware"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

const defaultMaxUpload = 32 << 20

// AdminHandler exposes token issuance and dataset ingestion.
type AdminHandler struct {
	auth      Authenticator
	ingester  Ingester
	maxUpload int64
}

func NewAdminHandler(auth Authenticator, ingester Ingester, maxUpload int64) *AdminHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &AdminHandler{auth: auth, ingester: ingester, maxUpload: maxUpload}
}

func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := router.Group("/admin")
	{
		admin.POST("/token", h.Token)
		admin.POST("/ingest", middleware.AdminAuth(h.auth), h.Ingest)
	}
}

type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token handles POST /api/v1/admin/token.
func (h *AdminHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, expires, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires})
}

// Ingest handles POST /api/v1/admin/ingest with a multipart "dataset" file.
// Set the "recreate" form field to rebuild an index of the wrong dimension.
func (h *AdminHandler) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	header, err := c.FormFile("dataset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a CSV file is required in the \"dataset\" field"})
		return
	}
	recreate := false
	if v := c.PostForm("recreate"); v != "" {
		if recreate, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recreate must be a boolean"})
			return
		}
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	source := "upload:" + header.Filename
	logging.Ctx(c.Request.Context()).Info().
		Str("source", source).
		Int64("size", header.Size).
		Bool("recreate", recreate).
		Str("admin", c.GetString("admin")).
		Msg("ingestion requested")

	report, err := h.ingester.Ingest(c.Request.Context(), file, source, service.IngestOptions{Recreate: recreate})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
