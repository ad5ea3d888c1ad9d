package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

// BreakerConfig tunes the circuit breaker around an index backend.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	// OnStateChange is optional and receives every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig trips after five consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Name: "vector-index", FailureThreshold: 5, Timeout: 30 * time.Second}
}

// BreakerIndex wraps backend errors as ErrIndexUnavailable and stops calling
// a backend that keeps failing. Caller errors (dimension mismatch, missing
// index, empty vectors) pass through and do not count as failures.
type BreakerIndex struct {
	next Index
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerIndex wraps next.
func NewBreakerIndex(next Index, cfg BreakerConfig) *BreakerIndex {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || callerError(err)
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &BreakerIndex{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func callerError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrIndexNotFound) ||
		errors.Is(err, ErrEmptyVector) ||
		errors.Is(err, context.Canceled)
}

func (b *BreakerIndex) do(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if err == nil || callerError(err) {
		return out, err
	}
	return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
}

// State exposes the breaker state for health reporting.
func (b *BreakerIndex) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerIndex) EnsureIndex(ctx context.Context, dim int, recreate bool) error {
	_, err := b.do(func() (any, error) { return nil, b.next.EnsureIndex(ctx, dim, recreate) })
	return err
}

func (b *BreakerIndex) Dimension(ctx context.Context) (int, error) {
	out, err := b.do(func() (any, error) { return b.next.Dimension(ctx) })
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

func (b *BreakerIndex) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	_, err := b.do(func() (any, error) { return nil, b.next.Upsert(ctx, entries) })
	return err
}

func (b *BreakerIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	out, err := b.do(func() (any, error) { return b.next.Query(ctx, vector, topK) })
	if err != nil {
		return nil, err
	}
	return out.([]model.Match), nil
}

func (b *BreakerIndex) Ping(ctx context.Context) error {
	_, err := b.do(func() (any, error) { return nil, b.next.Ping(ctx) })
	return err
}

func (b *BreakerIndex) Close() error {
	return b.next.Close()
}
