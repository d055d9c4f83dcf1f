package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/observability"
)

func fastConfig() map[domain.SourceType]ProviderConfig {
	return map[domain.SourceType]ProviderConfig{
		domain.SourceTypeArXiv: {
			RateLimit:            1000,
			Burst:                1000,
			FailureThreshold:     3,
			Cooldown:             time.Minute,
			MaxAttempts:          3,
			RetryInitialInterval: time.Millisecond,
			CallTimeout:          time.Second,
		},
	}
}

func TestRegistry_CallSuccess(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, zerolog.Nop())

	var calls atomic.Int32
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateClosed, r.State(domain.SourceTypeArXiv))
}

func TestRegistry_RetriesTransientThenSucceeds(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, zerolog.Nop())

	var calls atomic.Int32
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return domain.NewProviderError(domain.SourceTypeArXiv, 503, "unavailable", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRegistry_ExhaustedRetriesBecomeTransientError(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, zerolog.Nop())

	var calls atomic.Int32
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		return domain.NewProviderError(domain.SourceTypeArXiv, 500, "boom", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderTransient)
	assert.Equal(t, int32(3), calls.Load(), "MaxAttempts bounds the retry loop")
}

func TestRegistry_NonTransientErrorIsNotRetried(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, zerolog.Nop())

	var calls atomic.Int32
	wantErr := domain.NewProviderError(domain.SourceTypeArXiv, 400, "bad request", nil)
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		return wantErr
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotErrorIs(t, err, domain.ErrProviderTransient)
}

func TestRegistry_OpenBreakerFailsFastWithoutIO(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, zerolog.Nop())
	failing := func(ctx context.Context) error {
		return domain.NewProviderError(domain.SourceTypeArXiv, 500, "down", nil)
	}

	// One Call makes three attempts, so the threshold of three consecutive
	// failures is reached within the first Call.
	_ = r.Call(context.Background(), domain.SourceTypeArXiv, failing)
	require.Equal(t, StateOpen, r.State(domain.SourceTypeArXiv))

	var calls atomic.Int32
	start := time.Now()
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Zero(t, calls.Load(), "no I/O attempt while open")
	assert.Less(t, time.Since(start), 100*time.Millisecond, "rejection is immediate")
}

func TestRegistry_CancellationStopsRetries(t *testing.T) {
	r := NewRegistry(fastConfig(), nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	err := r.Call(ctx, domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		cancel()
		return domain.NewProviderError(domain.SourceTypeArXiv, 503, "unavailable", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_UnknownProviderUsesDefaults(t *testing.T) {
	r := NewRegistry(nil, nil, zerolog.Nop())

	err := r.Call(context.Background(), domain.SourceTypePubMed, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, r.State(domain.SourceTypePubMed))
}

func TestRegistry_TimeoutTreatedAsTransient(t *testing.T) {
	cfgs := fastConfig()
	cfg := cfgs[domain.SourceTypeArXiv]
	cfg.CallTimeout = 5 * time.Millisecond
	cfg.MaxAttempts = 2
	cfgs[domain.SourceTypeArXiv] = cfg
	r := NewRegistry(cfgs, nil, zerolog.Nop())

	var calls atomic.Int32
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderTransient)
	assert.Equal(t, int32(2), calls.Load(), "timeout retried like any transient failure")
}

func TestRegistry_ErrorClassification(t *testing.T) {
	assert.True(t, domain.IsTransient(domain.NewProviderError("x", 429, "slow down", nil)))
	assert.True(t, domain.IsTransient(domain.NewProviderError("x", 502, "bad gateway", nil)))
	assert.True(t, domain.IsTransient(domain.NewProviderError("x", 0, "connection reset", errors.New("net"))))
	assert.False(t, domain.IsTransient(domain.NewProviderError("x", 404, "missing", nil)))
	assert.False(t, domain.IsTransient(errors.New("opaque")))
}

func TestRegistry_BreakerOpeningMidCallStopsRetries(t *testing.T) {
	cfgs := fastConfig()
	cfg := cfgs[domain.SourceTypeArXiv]
	cfg.FailureThreshold = 1
	cfgs[domain.SourceTypeArXiv] = cfg
	r := NewRegistry(cfgs, nil, zerolog.Nop())

	var calls atomic.Int32
	err := r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		calls.Add(1)
		return domain.NewProviderError(domain.SourceTypeArXiv, 500, "down", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "remaining attempts must not do I/O through an open circuit")
	assert.Equal(t, StateOpen, r.State(domain.SourceTypeArXiv))
}

func TestRegistry_RecordsBreakerTransitions(t *testing.T) {
	// promauto registers on the default registry, so the namespace must be
	// unique per test.
	m := observability.NewMetrics("test_resilience_breaker_transitions")
	cfgs := fastConfig()
	cfg := cfgs[domain.SourceTypeArXiv]
	cfg.FailureThreshold = 1
	cfg.MaxAttempts = 1
	cfgs[domain.SourceTypeArXiv] = cfg
	r := NewRegistry(cfgs, m, zerolog.Nop())

	_ = r.Call(context.Background(), domain.SourceTypeArXiv, func(ctx context.Context) error {
		return domain.NewProviderError(domain.SourceTypeArXiv, 500, "down", nil)
	})

	require.Equal(t, StateOpen, r.State(domain.SourceTypeArXiv))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("arxiv", "open")))
}
