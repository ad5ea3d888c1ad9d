package index

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

type fakeQdrant struct {
	size      uint64
	exists    bool
	deleted   int
	points    []*qdrant.PointStruct
	lastQuery *qdrant.QueryPoints
	queryErr  error
}

func (f *fakeQdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, nil
}

func (f *fakeQdrant) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.exists = true
	f.size = req.GetVectorsConfig().GetParams().GetSize()
	f.points = nil
	return nil
}

func (f *fakeQdrant) DeleteCollection(ctx context.Context, name string) error {
	f.exists = false
	f.deleted++
	return nil
}

func (f *fakeQdrant) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: f.size, Distance: qdrant.Distance_Cosine}),
			},
		},
	}, nil
}

func (f *fakeQdrant) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.points = append(f.points, req.GetPoints()...)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastQuery = req
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]*qdrant.ScoredPoint, 0, len(f.points))
	for i, p := range f.points {
		out = append(out, &qdrant.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: 1 - float32(i)*0.1})
	}
	return out, nil
}

func (f *fakeQdrant) HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, nil
}

func (f *fakeQdrant) Close() error { return nil }

func TestQdrantIndex(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{}
	idx := newQdrantIndex(fake, "recipes")

	_, err := idx.Dimension(ctx)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	require.NoError(t, idx.EnsureIndex(ctx, 3, false))
	assert.Equal(t, uint64(3), fake.size)

	curry := entry("data.csv", 0, "Vegan Curry", 1, 0, 0)
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{curry}))
	require.Len(t, fake.points, 1)
	assert.Equal(t, curry.ID, fake.points[0].GetId().GetUuid())
	assert.Equal(t, "data.csv", fake.points[0].GetPayload()["source"].GetStringValue())
	assert.Equal(t, int64(0), fake.points[0].GetPayload()["row"].GetIntegerValue())

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 7)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, curry.ID, matches[0].ID)
	assert.Equal(t, curry.Recipe, matches[0].Recipe)
	assert.Equal(t, uint64(7), fake.lastQuery.GetLimit())
	assert.Equal(t, "recipes", fake.lastQuery.GetCollectionName())

	_, err = idx.Query(ctx, []float32{1, 0}, 7)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	assert.ErrorIs(t, idx.EnsureIndex(ctx, 5, false), ErrDimensionMismatch)
	require.NoError(t, idx.EnsureIndex(ctx, 5, true))
	assert.Equal(t, 1, fake.deleted)
	assert.Equal(t, uint64(5), fake.size)

	assert.NoError(t, idx.Ping(ctx))
}

func TestQdrantIndexQueryError(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{exists: true, size: 2, queryErr: errors.New("unavailable")}
	idx := NewBreakerIndex(newQdrantIndex(fake, "recipes"), DefaultBreakerConfig())

	_, err := idx.Query(ctx, []float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestQdrantIndexSkipsUnreadablePayload(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{}
	idx := newQdrantIndex(fake, "recipes")
	require.NoError(t, idx.EnsureIndex(ctx, 3, false))

	curry := entry("data.csv", 0, "Vegan Curry", 1, 0, 0)
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{curry}))
	fake.points = append([]*qdrant.PointStruct{{
		Id:      qdrant.NewID("broken"),
		Payload: qdrant.NewValueMap(map[string]any{"recipe": "{not json"}),
	}}, fake.points...)

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, curry.ID, matches[0].ID)
}

func TestQdrantIndexNoticesExternalRebuild(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{exists: true, size: 3}
	idx := NewBreakerIndex(newQdrantIndex(fake, "recipes"), DefaultBreakerConfig())

	_, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)

	fake.size = 5
	fake.queryErr = errors.New("wrong input: vector dimension error")
	_, err = idx.Query(ctx, []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	fake.queryErr = nil
	_, err = idx.Query(ctx, []float32{1, 0, 0, 0, 0}, 5)
	require.NoError(t, err, "the new dimension is cached after the recheck")

	fake.exists = false
	fake.queryErr = errors.New("collection recipes not found")
	_, err = idx.Query(ctx, []float32{1, 0, 0, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}
