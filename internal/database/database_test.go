package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/database"
	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/model"
	"github.com/pageza/alchemorsel-recommender/internal/testhelpers"
)

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{
		Index:    config.IndexConfig{Backend: "sqlite"},
		Database: config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "recipes.db")},
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	defer database.Close(db)

	assert.NoError(t, database.HealthCheck(context.Background(), db))
}

func TestOpenRejectsNonSQLBackends(t *testing.T) {
	_, err := database.Open(&config.Config{Index: config.IndexConfig{Backend: "qdrant"}})
	assert.Error(t, err)
}

func TestPostgresVectorIndex(t *testing.T) {
	_, db := testhelpers.SetupTestDatabase(t)
	ctx := context.Background()

	idx, err := index.NewSQLIndex(db, "")
	require.NoError(t, err)
	e := embedding.NewHashingEmbedder(64)
	require.NoError(t, idx.EnsureIndex(ctx, e.Dimension(), false))

	recipes := []model.Recipe{
		{Name: "Vegan Curry", Ingredients: []string{"chickpeas", "coconut milk"}, Tags: []string{"vegan"}, Nutrition: model.Nutrition{"calories": 420}, Source: "pg.csv", Row: 0},
		{Name: "Chocolate Cake", Ingredients: []string{"cocoa", "flour"}, Nutrition: model.Nutrition{"calories": 510}, Source: "pg.csv", Row: 1},
	}
	texts := []string{recipes[0].Text(), recipes[1].Text()}
	vectors, err := e.Embed(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{
		{ID: recipes[0].EntryID(), Vector: vectors[0], Recipe: recipes[0]},
		{ID: recipes[1].EntryID(), Vector: vectors[1], Recipe: recipes[1]},
	}))

	matches, err := idx.Query(ctx, vectors[1], 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Chocolate Cake", matches[0].Recipe.Name)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	assert.Equal(t, []string{"cocoa", "flour"}, matches[0].Recipe.Ingredients)

	assert.ErrorIs(t, idx.EnsureIndex(ctx, 32, false), index.ErrDimensionMismatch)
}

func TestNewRedisClient(t *testing.T) {
	url := testhelpers.SetupTestRedis(t)

	client, err := database.NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	_, err = database.NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
