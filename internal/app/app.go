// Package app builds the embedder, vector index and services from the loaded
// configuration. The API server and the ingest CLI share it so both sides
// always agree on model and index.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/database"
	"github.com/pageza/alchemorsel-recommender/internal/dataset"
	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/metrics"
	"github.com/pageza/alchemorsel-recommender/internal/service"
)

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Embedder embedding.Embedder
	Index    *index.BreakerIndex

	closers []func() error
}

// New builds the embedder and the index backend selected by cfg.
func New(cfg *config.Config) (*App, error) {
	e, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Embedder: e}
	backend, err := a.openIndex()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, backend.Close)

	log := logging.WithComponent("index")
	a.Index = index.NewBreakerIndex(backend, index.BreakerConfig{
		Name:             "vector-index",
		FailureThreshold: cfg.Index.BreakerThreshold,
		Timeout:          cfg.Index.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues("vector-index").Set(0)

	log.Info().
		Str("backend", cfg.Index.Backend).
		Str("collection", cfg.Index.Collection).
		Str("model", e.Model()).
		Int("dimension", e.Dimension()).
		Msg("vector index configured")
	return a, nil
}

// NewEmbedder creates the configured embedding provider.
func NewEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimension,
		})
	case "hashing":
		return embedding.NewHashingEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func (a *App) openIndex() (index.Index, error) {
	cfg := a.Config
	switch cfg.Index.Backend {
	case "qdrant":
		return index.NewQdrantIndex(index.QdrantConfig{
			Host:       cfg.Index.QdrantHost,
			Port:       cfg.Index.QdrantPort,
			APIKey:     cfg.Index.QdrantAPIKey,
			UseTLS:     cfg.Index.QdrantTLS,
			Collection: cfg.Index.Collection,
		})
	case "postgres", "sqlite":
		db, err := database.Open(cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
		return index.NewSQLIndex(db, cfg.Index.Collection)
	case "memory":
		return index.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// CheckCompatibility refuses an index built for another vector size. A
// missing index is only logged since ingestion creates it.
func (a *App) CheckCompatibility(ctx context.Context) error {
	err := service.CheckCompatibility(ctx, a.Embedder, a.Index)
	if errors.Is(err, index.ErrIndexNotFound) {
		logging.Warn().Str("collection", a.Config.Index.Collection).Msg("vector index does not exist yet; run ingestion")
		return nil
	}
	return err
}

// RecommendationService builds the search pipeline.
func (a *App) RecommendationService() *service.RecommendationService {
	return service.NewRecommendationService(a.Embedder, a.Index, nil, service.RecommendConfig{
		TopK:         a.Config.Recommend.TopK,
		DisplayCount: a.Config.Recommend.DisplayCount,
	})
}

// IngestService builds the ingestion pipeline. objects may be nil.
func (a *App) IngestService(objects dataset.ObjectGetter) *service.IngestService {
	return service.NewIngestService(a.Embedder, a.Index, objects, service.IngestConfig{
		BatchSize: a.Config.Ingest.BatchSize,
		Delay:     a.Config.Ingest.Delay,
	})
}

// ObjectsFor returns an S3 client when location is an s3:// URI and nil
// otherwise.
func (a *App) ObjectsFor(ctx context.Context, location string) (dataset.ObjectGetter, error) {
	if !strings.HasPrefix(location, "s3://") {
		return nil, nil
	}
	client, err := config.NewS3Client(ctx, a.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return client, nil
}

// Close releases the index and any database connection, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
