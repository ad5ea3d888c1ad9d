// Package index stores recipe embeddings and answers nearest-neighbour
// queries against them.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

var (
	// ErrDimensionMismatch means a vector does not fit the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension does not match index dimension")
	// ErrIndexNotFound means the collection or table has not been created.
	ErrIndexNotFound = errors.New("vector index does not exist")
	// ErrIndexUnavailable wraps failures talking to the index backend.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrEmptyVector is returned when an entry is upserted without a vector.
	ErrEmptyVector = errors.New("index entry has no vector")
)

// Index is the narrow contract every vector backend implements.
type Index interface {
	// EnsureIndex creates the index for vectors of length dim. An existing
	// index of another dimension is an ErrDimensionMismatch unless recreate is
	// set, in which case it is dropped and rebuilt empty.
	EnsureIndex(ctx context.Context, dim int, recreate bool) error
	// Dimension reports the vector length of the existing index.
	Dimension(ctx context.Context) (int, error)
	// Upsert inserts or replaces entries by ID.
	Upsert(ctx context.Context, entries []model.IndexEntry) error
	// Query returns up to topK matches ordered by descending similarity.
	Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error)
	Ping(ctx context.Context) error
	Close() error
}

func validateEntries(entries []model.IndexEntry, dim int) error {
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyVector, e.ID)
		}
		if dim > 0 && len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %s has %d, index has %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return nil
}

func checkQuery(vector []float32, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

func existingMismatch(existing, want int) error {
	return fmt.Errorf("%w: index has %d, embedder produces %d (pass --recreate to rebuild)", ErrDimensionMismatch, existing, want)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// rankByCosine scores every candidate against vector and keeps the best topK.
// Ties are broken by ID so results are deterministic.
func rankByCosine(vector []float32, candidates []model.IndexEntry, topK int) []model.Match {
	matches := make([]model.Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, model.Match{ID: c.ID, Score: Cosine(vector, c.Vector), Recipe: c.Recipe})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
