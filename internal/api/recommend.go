package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/alchemorsel-recommender/internal/service"
)

type RecommendationHandler struct {
	recommender Recommender
}

func NewRecommendationHandler(recommender Recommender) *RecommendationHandler {
	return &RecommendationHandler{recommender: recommender}
}

// RulesResponse lists the values clients may send.
type RulesResponse struct {
	Conditions []string `json:"health_conditions"`
	Cuisines   []string `json:"cuisines"`
	Diets      []string `json:"diets"`
	Allergens  []string `json:"allergens"`
}

// Recommend handles POST /api/v1/recommendations.
func (h *RecommendationHandler) Recommend(c *gin.Context) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.recommender.Recommend(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Rules handles GET /api/v1/rules.
func (h *RecommendationHandler) Rules(c *gin.Context) {
	rs := h.recommender.Rules()
	c.JSON(http.StatusOK, RulesResponse{
		Conditions: rs.ConditionNames(),
		Cuisines:   rs.CuisineNames(),
		Diets:      rs.DietNames(),
		Allergens:  rs.AllergenNames(),
	})
}
