package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a breaker. Exactly one at a time.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is matched by errors.Is against the fail-fast error returned while
// the circuit is open. Callers should treat it as retryable.
var ErrOpen = errors.New("circuit open")

// OpenError carries the estimated cool-down remaining before the next probe
// is allowed.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry after %s", e.Name, e.RetryAfter)
}

func (e *OpenError) Unwrap() error { return ErrOpen }

type Config struct {
	// Threshold is the failure count that opens the circuit.
	Threshold int
	// ResetTimeout is the cool-down before a single probe is allowed through.
	ResetTimeout time.Duration
	// MonitoringWindow bounds how long failures count against Threshold.
	MonitoringWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     time.Minute,
		MonitoringWindow: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.MonitoringWindow <= 0 {
		c.MonitoringWindow = d.MonitoringWindow
	}
	return c
}

// StateChangeFunc is notified after a transition, outside the breaker lock.
type StateChangeFunc func(name string, from, to State)

// RejectFunc is notified when a call is rejected while open.
type RejectFunc func(name string)

// Breaker guards calls to a single downstream collaborator. All state is
// mutex-protected; it is shared by every concurrent caller of that
// collaborator.
type Breaker struct {
	name     string
	cfg      Config
	onChange StateChangeFunc
	onReject RejectFunc

	mu           sync.Mutex
	state        State
	failureCount int
	windowStart  time.Time
	lastFailure  time.Time
	probing      bool

	now func() time.Time
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		state: StateClosed,
		now:   time.Now,
	}
}

// Do executes fn under the breaker. While open it fails fast with *OpenError
// without invoking fn; after ResetTimeout exactly one call is let through as
// a half-open probe.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.allow()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	b.record(probe, callErr)
	return callErr
}

func (b *Breaker) allow() (probe bool, err error) {
	b.mu.Lock()

	now := b.now()
	switch b.state {
	case StateOpen:
		since := now.Sub(b.lastFailure)
		if since <= b.cfg.ResetTimeout {
			b.mu.Unlock()
			b.rejected()
			return false, &OpenError{Name: b.name, RetryAfter: b.cfg.ResetTimeout - since}
		}
		// cool-down elapsed: this call becomes the probe
		b.transition(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		return true, nil

	case StateHalfOpen:
		if b.probing {
			// one probe at a time; everyone else keeps failing fast
			b.mu.Unlock()
			b.rejected()
			return false, &OpenError{Name: b.name, RetryAfter: b.cfg.ResetTimeout}
		}
		b.probing = true
		b.mu.Unlock()
		return true, nil

	default: // StateClosed
		b.mu.Unlock()
		return false, nil
	}
}

func (b *Breaker) record(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if probe {
		b.probing = false
		if callErr == nil {
			b.failureCount = 0
			b.transition(StateClosed)
			return
		}
		// failed probe extends the cool-down
		b.lastFailure = now
		b.transition(StateOpen)
		return
	}

	if callErr == nil || b.state != StateClosed {
		return
	}

	// failures older than the monitoring window do not count
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.cfg.MonitoringWindow {
		b.windowStart = now
		b.failureCount = 0
	}

	b.failureCount++
	b.lastFailure = now

	if b.failureCount >= b.cfg.Threshold {
		b.transition(StateOpen)
	}
}

// Trip forces the circuit open, starting a fresh cool-down.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()
	b.probing = false
	b.transition(StateOpen)
}

// Reset forces the circuit closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.windowStart = time.Time{}
	b.probing = false
	b.transition(StateClosed)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

func (b *Breaker) Name() string { return b.name }

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		go b.onChange(b.name, from, to)
	}
}

func (b *Breaker) rejected() {
	if b.onReject != nil {
		b.onReject(b.name)
	}
}
