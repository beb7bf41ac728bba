// Package breaker implements the per-provider circuit breaker guarding
// ModelRouter adapter calls (§4.3).
package breaker

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold    = 5
	defaultResetTimeout        = 30 * time.Second
	defaultHalfOpenSuccessThreshold = 1
)

// Config configures the breaker's thresholds. Zero values fall back to the
// spec defaults.
type Config struct {
	FailureThreshold         int
	ResetTimeout             time.Duration
	HalfOpenSuccessThreshold int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaultResetTimeout
	}
	if c.HalfOpenSuccessThreshold <= 0 {
		c.HalfOpenSuccessThreshold = defaultHalfOpenSuccessThreshold
	}
	return c
}

// Breaker is a single provider's circuit breaker state.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:   cfg.withDefaults(),
		state: Closed,
		now:   time.Now,
	}
}

// ErrOpen is returned by Call when the breaker is open and fails fast
// instead of invoking fn. Callers distinguish this from the wrapped
// function's own errors by checking for it (§4.3).
type ErrOpen struct {
	Provider string
}

func (e *ErrOpen) Error() string {
	if e.Provider == "" {
		return "circuit breaker open"
	}
	return "circuit breaker open for provider " + e.Provider
}

// State reports the breaker's current state, resolving a stale open state
// to half-open when the reset timeout has elapsed without mutating it
// (callers that want the transition to stick should use Call or Allow).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && b.now().Sub(b.lastFailureTime) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed right now, transitioning
// open->half-open as a side effect when the reset timeout has elapsed.
func (b *Breaker) Allow(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.lastFailureTime) >= b.cfg.ResetTimeout {
			b.state = HalfOpen
			b.successCount = 0
		} else {
			return &ErrOpen{Provider: provider}
		}
	}
	return nil
}

// RecordSuccess reports a successful call outcome (§4.3).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenSuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// RecordFailure reports a failed call outcome (§4.3).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = b.now()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		b.state = Open
		b.successCount = 0
	}
}

// Call runs fn guarded by the breaker: fails fast with ErrOpen if the
// breaker is open, otherwise runs fn and records the outcome.
func (b *Breaker) Call(provider string, fn func() error) error {
	if err := b.Allow(provider); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
