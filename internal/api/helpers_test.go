package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/rules"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testDataset = `name,ingredients,instructions,cuisine,tags,calories,protein,carbs,fats
Vegan Curry,"chickpeas, coconut milk, curry powder, spinach",Simmer everything.,Indian,"vegan, gluten-free, dairy-free",420,14,48,18
Paneer Tikka,"paneer, yogurt, spices, butter",Grill the paneer.,Indian,"vegetarian, gluten-free",520,24,12,38
Chicken Stir Fry,"chicken, soy sauce, broccoli, rice",Stir fry quickly.,Asian,high-protein,450,35,40,12
Green Salad,"lettuce, cucumber, olive oil, lemon",Toss everything.,Mediterranean,"vegan, gluten-free, low-calorie",120,3,8,9
`

const (
	adminUser     = "admin"
	adminPassword = "correct-horse"
)

type testEnv struct {
	router *gin.Engine
	index  *index.MemoryIndex
	auth   *service.AuthService
}

// newTestEnv wires the real services over an in-memory index holding
// testDataset.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := embedding.NewHashingEmbedder(128)
	idx := index.NewMemoryIndex()
	ingest := service.NewIngestService(e, idx, nil, service.IngestConfig{BatchSize: 2})
	_, err := ingest.Ingest(context.Background(), strings.NewReader(testDataset), "recipes.csv", service.IngestOptions{})
	require.NoError(t, err)

	auth, err := service.NewAuthService(service.AuthConfig{
		Username:  adminUser,
		Password:  adminPassword,
		JWTSecret: "test-secret",
	})
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router, Dependencies{
		Recommender: service.NewRecommendationService(e, idx, nil, service.RecommendConfig{TopK: 10, DisplayCount: 5}),
		Ingester:    ingest,
		Auth:        auth,
		Index:       index.NewBreakerIndex(idx, index.DefaultBreakerConfig()),
	})
	return &testEnv{router: router, index: idx, auth: auth}
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func recipeNames(result service.Result) []string {
	out := make([]string, len(result.Recommendations))
	for i, r := range result.Recommendations {
		out[i] = r.Recipe.Name
	}
	return out
}

type mockRecommender struct {
	mock.Mock
}

func (m *mockRecommender) Recommend(ctx context.Context, req service.Request) (*service.Result, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*service.Result)
	return result, args.Error(1)
}

func (m *mockRecommender) Rules() *rules.Ruleset {
	return rules.Default()
}

type downIndex struct {
	*index.MemoryIndex
}

func (downIndex) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}
