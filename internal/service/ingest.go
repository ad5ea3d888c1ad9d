package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pageza/alchemorsel-recommender/internal/dataset"
	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/metrics"
	"github.com/pageza/alchemorsel-recommender/internal/model"
)

// ErrIngestInProgress is returned when an ingestion is already running.
var ErrIngestInProgress = errors.New("an ingestion is already running")

// IngestConfig controls batching.
type IngestConfig struct {
	BatchSize int
	// Delay is slept between batches to respect provider rate limits.
	Delay time.Duration
}

// IngestOptions are per-run switches.
type IngestOptions struct {
	// Recreate drops an index whose dimension does not match the embedder.
	Recreate bool
}

// SkippedRow explains why a dataset row was not indexed.
type SkippedRow struct {
	Row    int    `json:"row"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Source   string        `json:"source"`
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Batches  int           `json:"batches"`
	Skipped  []SkippedRow  `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// IngestService loads a dataset, embeds each valid recipe and writes it to
// the index in batches.
type IngestService struct {
	embedder embedding.Embedder
	index    index.Index
	cfg      IngestConfig
	objects  dataset.ObjectGetter
	log      zerolog.Logger

	running sync.Mutex
}

// NewIngestService creates an IngestService. objects may be nil when only
// local datasets are ingested.
func NewIngestService(e embedding.Embedder, idx index.Index, objects dataset.ObjectGetter, cfg IngestConfig) *IngestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &IngestService{
		embedder: e,
		index:    idx,
		cfg:      cfg,
		objects:  objects,
		log:      logging.WithComponent("ingest"),
	}
}

// IngestLocation opens a local path or s3:// URI and ingests it.
func (s *IngestService) IngestLocation(ctx context.Context, location string, opts IngestOptions) (*IngestReport, error) {
	rc, err := dataset.Open(ctx, location, s.objects)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return s.Ingest(ctx, rc, location, opts)
}

// Ingest reads a CSV dataset from r. Malformed rows are skipped and reported;
// embedding or index failures abort the run and return the partial report.
func (s *IngestService) Ingest(ctx context.Context, r io.Reader, source string, opts IngestOptions) (*IngestReport, error) {
	if !s.running.TryLock() {
		return nil, ErrIngestInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	rows, err := dataset.Load(r, source)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{Source: source, Total: len(rows), Skipped: []SkippedRow{}}
	defer func() { report.Duration = time.Since(start) }()

	var recipes []model.Recipe
	for _, row := range rows {
		if row.Err != nil {
			report.Skipped = append(report.Skipped, SkippedRow{Row: row.Recipe.Row, Name: row.Recipe.Name, Reason: row.Err.Error()})
			s.log.Warn().Int("row", row.Recipe.Row).Str("name", row.Recipe.Name).Err(row.Err).Msg("skipping row")
			continue
		}
		recipes = append(recipes, row.Recipe)
	}
	metrics.IngestRows.WithLabelValues("skipped").Add(float64(len(report.Skipped)))

	if err := s.index.EnsureIndex(ctx, s.embedder.Dimension(), opts.Recreate); err != nil {
		return report, fmt.Errorf("failed to prepare index: %w", err)
	}

	for i := 0; i < len(recipes); i += s.cfg.BatchSize {
		if i > 0 && s.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.cfg.Delay):
			}
		}
		end := min(i+s.cfg.BatchSize, len(recipes))
		if err := s.ingestBatch(ctx, recipes[i:end]); err != nil {
			return report, fmt.Errorf("batch starting at recipe %d: %w", i, err)
		}
		report.Indexed += end - i
		report.Batches++
		s.log.Info().Int("batch", report.Batches).Int("indexed", report.Indexed).Int("pending", len(recipes)-end).Msg("batch indexed")
	}

	s.log.Info().
		Str("source", source).
		Int("total", report.Total).
		Int("indexed", report.Indexed).
		Int("skipped", len(report.Skipped)).
		Msg("ingestion finished")
	return report, nil
}

func (s *IngestService) ingestBatch(ctx context.Context, batch []model.Recipe) error {
	start := time.Now()
	defer func() { metrics.IngestBatchDuration.Observe(time.Since(start).Seconds()) }()

	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Text()
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		metrics.IndexErrors.WithLabelValues("embed").Inc()
		return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d recipes", ErrEmbeddingUnavailable, len(vectors), len(batch))
	}

	entries := make([]model.IndexEntry, len(batch))
	for i, r := range batch {
		entries[i] = model.IndexEntry{ID: r.EntryID(), Vector: vectors[i], Recipe: r}
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		metrics.IndexErrors.WithLabelValues("upsert").Inc()
		return err
	}
	metrics.IngestRows.WithLabelValues("indexed").Add(float64(len(entries)))
	return nil
}
