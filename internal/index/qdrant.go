package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/model"
)

// QdrantConfig locates a hosted or self-managed Qdrant collection.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// qdrantClient is the subset of *qdrant.Client used by QdrantIndex.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantIndex stores each entry as a point whose payload carries the recipe
// as JSON plus its source and row.
type QdrantIndex struct {
	client     qdrantClient
	collection string

	mu  sync.Mutex
	dim int
}

// NewQdrantIndex connects to Qdrant over gRPC.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return newQdrantIndex(client, cfg.Collection), nil
}

func newQdrantIndex(client qdrantClient, collection string) *QdrantIndex {
	return &QdrantIndex{client: client, collection: collection}
}

func (q *QdrantIndex) EnsureIndex(ctx context.Context, dim int, recreate bool) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	existing, err := q.Dimension(ctx)
	switch {
	case err == nil && existing == dim:
		return nil
	case err == nil && !recreate:
		return existingMismatch(existing, dim)
	case err == nil:
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("failed to delete collection %s: %w", q.collection, err)
		}
	case !errors.Is(err, ErrIndexNotFound):
		return err
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	q.setDim(dim)
	return nil
}

func (q *QdrantIndex) setDim(dim int) {
	q.mu.Lock()
	q.dim = dim
	q.mu.Unlock()
}

func (q *QdrantIndex) cachedDim(ctx context.Context) (int, error) {
	q.mu.Lock()
	dim := q.dim
	q.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}
	return q.Dimension(ctx)
}

// recheck forgets the cached dimension after a failed call and describes the
// collection again. A dropped collection reports ErrIndexNotFound and one
// rebuilt at another size reports ErrDimensionMismatch; otherwise cause is
// returned.
func (q *QdrantIndex) recheck(ctx context.Context, dim int, cause error) error {
	q.setDim(0)
	current, err := q.Dimension(ctx)
	switch {
	case errors.Is(err, ErrIndexNotFound):
		return err
	case err == nil && current != dim:
		return existingMismatch(current, dim)
	}
	return cause
}

func (q *QdrantIndex) Dimension(ctx context.Context) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection %s: %w", q.collection, err)
	}
	if !exists {
		return 0, ErrIndexNotFound
	}
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to describe collection %s: %w", q.collection, err)
	}
	size := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if size == 0 {
		return 0, fmt.Errorf("collection %s has no single dense vector config", q.collection)
	}
	q.setDim(size)
	return size, nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := q.cachedDim(ctx)
	if err != nil {
		return err
	}
	if err := validateEntries(entries, dim); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		doc, err := json.Marshal(e.Recipe)
		if err != nil {
			return fmt.Errorf("failed to encode recipe %s: %w", e.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"recipe": string(doc),
				"name":   e.Recipe.Name,
				"source": e.Recipe.Source,
				"row":    int64(e.Recipe.Row),
			}),
		}
	}

	wait := true
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return q.recheck(ctx, dim, fmt.Errorf("failed to upsert %d points: %w", len(points), err))
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	dim, err := q.cachedDim(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(vector, dim); err != nil {
		return nil, err
	}

	limit := uint64(topK)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, q.recheck(ctx, dim, fmt.Errorf("failed to query collection %s: %w", q.collection, err))
	}

	matches := make([]model.Match, 0, len(points))
	for _, p := range points {
		var recipe model.Recipe
		if err := json.Unmarshal([]byte(p.GetPayload()["recipe"].GetStringValue()), &recipe); err != nil {
			log := logging.WithComponent("index")
			log.Warn().Err(err).
				Str("collection", q.collection).
				Str("point", p.GetId().GetUuid()).
				Msg("skipping point with unreadable recipe payload")
			continue
		}
		matches = append(matches, model.Match{ID: p.GetId().GetUuid(), Score: p.GetScore(), Recipe: recipe})
	}
	return matches, nil
}

func (q *QdrantIndex) Ping(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
