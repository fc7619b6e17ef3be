package modelstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

// BreakerStore guards model loads with one circuit breaker per key. After
// maxFailures consecutive failures for a key its breaker opens and loads of
// that key fail fast for timeout, sending its forecasts straight to the
// smoothing fallback. Other keys are unaffected.
type BreakerStore struct {
	inner       domain.ModelStore
	maxFailures uint32
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with per-key circuit breakers.
func NewBreakerStore(inner domain.ModelStore, maxFailures uint32, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *BreakerStore {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &BreakerStore{
		inner:       inner,
		maxFailures: maxFailures,
		timeout:     timeout,
		logger:      logger,
		metrics:     metrics,
		breakers:    map[string]*gobreaker.CircuitBreaker{},
	}
}

func (b *BreakerStore) breaker(key string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model-store:" + key,
		MaxRequests: 1,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("model store breaker state changed",
				"breaker", name,
				"pollutant", key,
				"from", from.String(),
				"to", to.String(),
			)
			b.metrics.BreakerState.WithLabelValues(key).Set(float64(to))
		},
	})
	b.breakers[key] = cb
	b.metrics.BreakerState.WithLabelValues(key).Set(float64(gobreaker.StateClosed))
	return cb
}

func (b *BreakerStore) Exists(key string) bool {
	return b.inner.Exists(key)
}

func (b *BreakerStore) Load(key string) (domain.Model, error) {
	res, err := b.breaker(key).Execute(func() (interface{}, error) {
		return b.inner.Load(key)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.ModelLoads.WithLabelValues("rejected").Inc()
		return nil, &domain.ModelLoadError{Key: key, Err: fmt.Errorf("model store unavailable: %w", err)}
	}
	if err != nil {
		return nil, err
	}
	m, _ := res.(domain.Model)
	return m, nil
}

// State returns the breaker state for key. Keys never loaded are closed.
func (b *BreakerStore) State(key string) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.breakers[key]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}
