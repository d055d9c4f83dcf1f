// Package resilience wraps every outbound provider call with a per-provider
// token-bucket rate limiter, a circuit breaker and retry with exponential
// backoff. Limiter and breaker state are shared mutable state guarded here;
// no other package accesses it directly.
package resilience

import (
	"sync"
	"time"

	"github.com/helixir/scholarsearch/internal/domain"
)

// BreakerState represents the circuit breaker state machine:
// Closed -> Open -> HalfOpen -> Closed.
type BreakerState int

const (
	// StateClosed admits all calls.
	StateClosed BreakerState = iota

	// StateOpen rejects calls immediately without attempting I/O.
	StateOpen

	// StateHalfOpen admits a single probe call after the cooldown elapses.
	StateHalfOpen
)

// String returns a human-readable name for the breaker state.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration

	// OnStateChange, when set, is called with the new state on every
	// transition. Called with the breaker's lock held, so it must not call
	// back into the breaker.
	OnStateChange func(state BreakerState)
}

// CircuitBreaker tracks consecutive failures for one provider. It is safe
// for concurrent use.
type CircuitBreaker struct {
	mu            sync.Mutex
	cfg           BreakerConfig
	provider      domain.SourceType
	state         BreakerState
	consecutive   int
	openedAt      time.Time
	probeInFlight bool
	lastError     string

	// now is injectable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker for the given provider.
func NewCircuitBreaker(provider domain.SourceType, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		cfg:      cfg,
		provider: provider,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. While Open it returns a
// CircuitOpenError without any I/O; once the cooldown elapses it transitions
// to HalfOpen and admits exactly one probe call.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		retryAt := b.openedAt.Add(b.cfg.Cooldown)
		if b.now().Before(retryAt) {
			return &domain.CircuitOpenError{
				Provider:  b.provider,
				RetryAt:   retryAt,
				LastError: b.lastError,
			}
		}
		b.setState(StateHalfOpen)
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return &domain.CircuitOpenError{
				Provider:  b.provider,
				RetryAt:   b.openedAt.Add(b.cfg.Cooldown),
				LastError: b.lastError,
			}
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.probeInFlight = false
	b.setState(StateClosed)
	b.lastError = ""
}

// RecordFailure increments the consecutive failure count, opening the
// circuit at the threshold. A failed half-open probe reopens immediately.
func (b *CircuitBreaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.lastError = err.Error()
	}

	if b.state == StateHalfOpen {
		b.setState(StateOpen)
		b.openedAt = b.now()
		b.probeInFlight = false
		return
	}

	b.consecutive++
	if b.consecutive >= b.cfg.FailureThreshold {
		b.setState(StateOpen)
		b.openedAt = b.now()
	}
}

// setState updates the state and notifies the transition hook when the state
// actually changed. Callers hold b.mu.
func (b *CircuitBreaker) setState(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(state)
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
