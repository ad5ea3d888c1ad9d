package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

func TestRecommendEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("vegan diet with dairy allergy", func(t *testing.T) {
		w := serve(env.router, jsonRequest(t, http.MethodPost, "/api/v1/recommendations", service.Request{
			Query:     "curry",
			Diets:     []string{"vegan"},
			Allergies: []string{"dairy"},
		}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result service.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.False(t, result.Empty)
		assert.Contains(t, recipeNames(result), "Vegan Curry")
		assert.NotContains(t, recipeNames(result), "Paneer Tikka")
	})

	t.Run("no match is an explicit empty result", func(t *testing.T) {
		w := serve(env.router, jsonRequest(t, http.MethodPost, "/api/v1/recommendations", service.Request{
			Query: "curry",
			Diets: []string{"keto"},
		}))
		require.Equal(t, http.StatusOK, w.Code)

		var result service.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Empty)
		assert.Equal(t, service.EmptyResultMessage, result.Message)
		assert.Empty(t, result.Recommendations)
	})

	t.Run("empty query", func(t *testing.T) {
		w := serve(env.router, jsonRequest(t, http.MethodPost, "/api/v1/recommendations", service.Request{}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), service.ErrEmptyQuery.Error())
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", http.NoBody)
		req.Header.Set("Content-Type", "application/json")
		w := serve(env.router, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRulesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := serve(env.router, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rules RulesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Contains(t, rules.Conditions, "weight loss")
	assert.Contains(t, rules.Cuisines, "indian")
	assert.Contains(t, rules.Diets, "vegan")
	assert.Contains(t, rules.Allergens, "dairy")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"index unavailable", fmt.Errorf("%w: dial tcp: timeout", index.ErrIndexUnavailable), http.StatusServiceUnavailable, "search service is unavailable"},
		{"embedder unavailable", fmt.Errorf("%w: 429", service.ErrEmbeddingUnavailable), http.StatusServiceUnavailable, "embedding service is unavailable"},
		{"dimension mismatch", fmt.Errorf("%w: index has 384, embedder produces 1536", index.ErrDimensionMismatch), http.StatusInternalServerError, "--recreate"},
		{"index missing", index.ErrIndexNotFound, http.StatusServiceUnavailable, "Run ingestion first"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "took too long"},
		{"invalid request", fmt.Errorf("%w: diversity must be between 1 and 5", service.ErrInvalidRequest), http.StatusBadRequest, "diversity must be between 1 and 5"},
		{"unexpected", errors.New("secret internal detail"), http.StatusInternalServerError, "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecommender{}
			rec.On("Recommend", mock.Anything, mock.Anything).Return(nil, tt.err)

			router := gin.New()
			RegisterRoutes(router, Dependencies{Recommender: rec, Index: index.NewMemoryIndex()})

			w := serve(router, jsonRequest(t, http.MethodPost, "/api/v1/recommendations", service.Request{Query: "soup"}))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
			assert.NotContains(t, w.Body.String(), "secret internal detail")

			w = serve(router, httptest.NewRequest(http.MethodGet, "/recipes?q=soup", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `value="soup"`)
			rec.AssertExpectations(t)
		})
	}
}

func TestHealth(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		env := newTestEnv(t)
		w := serve(env.router, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "closed", body["circuit_breaker"])
	})

	t.Run("unreachable", func(t *testing.T) {
		router := gin.New()
		RegisterRoutes(router, Dependencies{
			Recommender: &mockRecommender{},
			Index:       index.NewBreakerIndex(downIndex{index.NewMemoryIndex()}, index.DefaultBreakerConfig()),
		})
		w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "unreachable")
	})
}
