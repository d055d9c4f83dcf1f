package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/observability"
)

// ProviderConfig holds the resilience settings for one provider.
type ProviderConfig struct {
	// RateLimit is the sustained request rate per second.
	RateLimit float64

	// Burst is the token bucket capacity.
	Burst int

	// FailureThreshold is consecutive failures before the circuit opens.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before a probe.
	Cooldown time.Duration

	// MaxAttempts bounds the retry loop, including the first attempt.
	MaxAttempts int

	// RetryInitialInterval is the base delay for exponential backoff.
	// Jitter is applied by the backoff implementation.
	RetryInitialInterval time.Duration

	// CallTimeout is the per-attempt deadline for the wrapped operation.
	CallTimeout time.Duration
}

// DefaultProviderConfig returns the settings applied when a provider has no
// explicit configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		RateLimit:            5,
		Burst:                5,
		FailureThreshold:     5,
		Cooldown:             60 * time.Second,
		MaxAttempts:          3,
		RetryInitialInterval: time.Second,
		CallTimeout:          30 * time.Second,
	}
}

// entry bundles the shared mutable state for one provider.
type entry struct {
	limiter *rate.Limiter
	breaker *CircuitBreaker
	cfg     ProviderConfig
}

// Registry provides rate-limited, breaker-guarded, retried execution of
// outbound provider operations. Entries are created lazily on first use.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[domain.SourceType]*entry
	configs map[domain.SourceType]ProviderConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewRegistry creates a Registry with per-provider configurations. Providers
// absent from the map fall back to DefaultProviderConfig. The metrics
// parameter may be nil (metrics recording will be skipped).
func NewRegistry(configs map[domain.SourceType]ProviderConfig, metrics *observability.Metrics, logger zerolog.Logger) *Registry {
	if configs == nil {
		configs = make(map[domain.SourceType]ProviderConfig)
	}
	return &Registry{
		entries: make(map[domain.SourceType]*entry),
		configs: configs,
		metrics: metrics,
		logger:  logger.With().Str("component", "resilience").Logger(),
	}
}

// get returns the entry for a provider, creating it on first access.
func (r *Registry) get(provider domain.SourceType) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[provider]; ok {
		return e
	}

	cfg, ok := r.configs[provider]
	if !ok {
		cfg = DefaultProviderConfig()
	}
	applyConfigDefaults(&cfg)

	breakerCfg := BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
	}
	if r.metrics != nil {
		breakerCfg.OnStateChange = func(state BreakerState) {
			r.metrics.RecordBreakerTransition(string(provider), state.String())
		}
	}

	e := &entry{
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker: NewCircuitBreaker(provider, breakerCfg),
		cfg:     cfg,
	}
	r.entries[provider] = e
	return e
}

// State returns the breaker state for a provider, StateClosed if the
// provider has not been used yet.
func (r *Registry) State(provider domain.SourceType) BreakerState {
	r.mu.Lock()
	e, ok := r.entries[provider]
	r.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return e.breaker.State()
}

// Call executes op for the given provider under the provider's rate limiter,
// circuit breaker and retry policy.
//
// Semantics:
//   - An open breaker rejects immediately with a CircuitOpenError (no I/O),
//     so the aggregator can proceed with other providers.
//   - The limiter blocks until a token is available or the context ends.
//   - Transient failures (network errors, 5xx, 429, timeouts) are retried
//     with exponential backoff and jitter, bounded by MaxAttempts.
//   - After retries are exhausted the last error is wrapped with
//     ErrProviderTransient so the caller treats the provider as unavailable
//     for the rest of the run.
func (r *Registry) Call(ctx context.Context, provider domain.SourceType, op func(ctx context.Context) error) error {
	e := r.get(provider)

	if err := e.breaker.Allow(); err != nil {
		r.logger.Debug().
			Str("provider", string(provider)).
			Msg("circuit open, rejecting call without I/O")
		return err
	}

	attempt := 0
	run := func() error {
		attempt++

		// The breaker may have opened on an earlier attempt of this same
		// call; stop retrying instead of issuing I/O through an open circuit.
		if attempt > 1 {
			if err := e.breaker.Allow(); err != nil {
				return backoff.Permanent(err)
			}
		}

		if r.metrics != nil && e.limiter.Tokens() < 1 {
			r.metrics.RecordRateLimitWait(string(provider))
		}
		if err := e.limiter.Wait(ctx); err != nil {
			// Context ended while waiting for a token; not a provider fault.
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		}
		err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			e.breaker.RecordSuccess()
			return nil
		}

		// A timed-out attempt counts as a transient failure for breaker and
		// retry purposes, but caller cancellation stops the loop.
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		e.breaker.RecordFailure(err)

		if errors.Is(err, context.DeadlineExceeded) || domain.IsTransient(err) {
			r.logger.Warn().
				Str("provider", string(provider)).
				Int("attempt", attempt).
				Err(err).
				Msg("transient provider failure, will retry")
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryInitialInterval
	bo.MaxElapsedTime = 0

	maxRetries := uint64(0)
	if e.cfg.MaxAttempts > 1 {
		maxRetries = uint64(e.cfg.MaxAttempts - 1)
	}

	err := backoff.Retry(run, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err == nil {
		return nil
	}

	// backoff unwraps Permanent errors before returning, so classify by
	// transience: only exhausted transient failures get the sentinel wrap.
	if errors.Is(err, context.DeadlineExceeded) || domain.IsTransient(err) {
		return fmt.Errorf("%w: %s after %d attempts: %w",
			domain.ErrProviderTransient, provider, attempt, err)
	}
	return err
}

// applyConfigDefaults fills zero fields with the default settings.
func applyConfigDefaults(cfg *ProviderConfig) {
	def := DefaultProviderConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
}
