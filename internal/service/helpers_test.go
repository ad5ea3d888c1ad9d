package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/model"
)

const testDataset = `name,ingredients,instructions,cuisine,tags,calories,protein,carbs,fats,sugar,sodium
Vegan Curry,"chickpeas, coconut milk, curry powder, spinach",Simmer everything.,Indian,"vegan, gluten-free, dairy-free",420,14,48,18,6,300
Paneer Tikka,"paneer, yogurt, spices, butter",Grill the paneer.,Indian,"vegetarian, gluten-free",520,24,12,38,4,700
Chicken Stir Fry,"chicken, soy sauce, broccoli, rice",Stir fry quickly.,Asian,high-protein,450,35,40,12,5,900
Margherita Pasta,"pasta, tomato, basil, mozzarella cheese",Boil the pasta.,Italian,vegetarian,610,20,80,22,8,600
Peanut Noodles,"rice noodles, peanuts, lime, garlic",Toss the noodles.,Asian,"vegan, contains-nuts",500,15,60,20,9,650
Almond Cake,"almond flour, sugar, eggs, butter",Bake for forty minutes.,Italian,"vegetarian, contains-nuts, high-sugar",450,8,42,20,30,200
Green Salad,"lettuce, cucumber, olive oil, lemon",Toss everything.,Mediterranean,"vegan, gluten-free, low-calorie, low-carb",120,3,8,9,3,150
Broken Row,,No ingredients.,Italian,vegan,100,1,1,1,,
`

const testDimension = 256

type pipeline struct {
	embedder  *embedding.HashingEmbedder
	index     *index.MemoryIndex
	ingest    *IngestService
	recommend *RecommendationService
	report    *IngestReport
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		embedder: embedding.NewHashingEmbedder(testDimension),
		index:    index.NewMemoryIndex(),
	}
	p.ingest = NewIngestService(p.embedder, p.index, nil, IngestConfig{BatchSize: 3})
	p.recommend = NewRecommendationService(p.embedder, p.index, nil, RecommendConfig{TopK: 30, DisplayCount: 10})

	report, err := p.ingest.Ingest(context.Background(), strings.NewReader(testDataset), "recipes.csv", IngestOptions{})
	require.NoError(t, err)
	p.report = report
	return p
}

func names(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Recipe.Name
	}
	return out
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	vectors, _ := args.Get(0).([][]float32)
	return vectors, args.Error(1)
}

func (m *mockEmbedder) Dimension() int {
	return m.Called().Int(0)
}

func (m *mockEmbedder) Model() string {
	return "mock"
}

type failingIndex struct {
	*index.MemoryIndex
	err error
}

func (f *failingIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	return nil, f.err
}
