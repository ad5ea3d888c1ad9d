package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

func testConfig(backend string, dim int) *config.Config {
	return &config.Config{
		Embedding: config.EmbeddingConfig{Provider: "hashing", Dimension: dim},
		Index:     config.IndexConfig{Backend: backend, Collection: "recipes", BreakerThreshold: 3, BreakerTimeout: time.Second},
		Recommend: config.RecommendConfig{TopK: 10, DisplayCount: 3},
		Ingest:    config.IngestConfig{BatchSize: 2},
	}
}

const testCSV = `name,ingredients,instructions,cuisine,tags,calories,protein,carbs,fats
Tomato Soup,"tomato, basil, olive oil",Simmer.,Italian,vegan,180,4,20,8
Bean Chili,"beans, chili, corn",Stew.,Mexican,vegan,350,18,45,9
`

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "hashing", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, embedding.HashingModel, e.Model())
	assert.Equal(t, 64, e.Dimension())

	e, err = NewEmbedder(config.EmbeddingConfig{Provider: "openai", APIKey: "sk-test", Dimension: 1536})
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultOpenAIModel, e.Model())

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "openai", Dimension: 1536})
	assert.Error(t, err)

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "word2vec", Dimension: 10})
	assert.Error(t, err)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(testConfig("pinecone", 32))
	assert.ErrorContains(t, err, "unknown index backend")
}

func TestIngestThenRecommend(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(backend, 64)
			cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "recipes.db")
			a, err := New(cfg)
			require.NoError(t, err)
			defer a.Close()

			ctx := context.Background()
			// Missing index is tolerated at startup.
			require.NoError(t, a.CheckCompatibility(ctx))

			report, err := a.IngestService(nil).Ingest(ctx, strings.NewReader(testCSV), "recipes.csv", service.IngestOptions{})
			require.NoError(t, err)
			assert.Equal(t, 2, report.Indexed)
			require.NoError(t, a.CheckCompatibility(ctx))

			result, err := a.RecommendationService().Recommend(ctx, service.Request{Query: "bean chili", Cuisine: "mexican"})
			require.NoError(t, err)
			require.Len(t, result.Recommendations, 1)
			assert.Equal(t, "Bean Chili", result.Recommendations[0].Recipe.Name)
		})
	}
}

func TestCheckCompatibilityRejectsOtherDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.db")

	cfg := testConfig("sqlite", 64)
	cfg.Database.SQLitePath = path
	a, err := New(cfg)
	require.NoError(t, err)
	_, err = a.IngestService(nil).Ingest(context.Background(), strings.NewReader(testCSV), "recipes.csv", service.IngestOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg = testConfig("sqlite", 128)
	cfg.Database.SQLitePath = path
	b, err := New(cfg)
	require.NoError(t, err)
	defer b.Close()
	assert.ErrorIs(t, b.CheckCompatibility(context.Background()), index.ErrDimensionMismatch)
}

func TestObjectsFor(t *testing.T) {
	a := &App{Config: &config.Config{Storage: config.StorageConfig{Region: "us-east-1"}}}

	objects, err := a.ObjectsFor(context.Background(), "data/recipes.csv")
	require.NoError(t, err)
	assert.Nil(t, objects)

	objects, err = a.ObjectsFor(context.Background(), "s3://bucket/recipes.csv")
	require.NoError(t, err)
	assert.NotNil(t, objects)
}
