// Package resilience guards model backends and storage with a circuit
// breaker, a deadline runner and jittered backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while a breaker is
// open or its half-open probes are used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// BreakerOptions tunes a Breaker. Zero fields take defaults: 5 failures,
// 30s cooldown, 1 probe.
//
// OnChange runs with the breaker locked and must not call back into it.
// IsFailure decides which errors count; nil counts all of them.
type BreakerOptions struct {
	Threshold int
	Cooldown  time.Duration
	Probes    int
	IsFailure func(error) bool
	OnChange  func(name string, from, to State)
}

// BreakerStatus is a point-in-time view of a breaker.
type BreakerStatus struct {
	Name     string        `json:"name"`
	State    State         `json:"state"`
	Failures int           `json:"consecutive_failures"`
	Trips    int           `json:"trips"`
	RetryIn  time.Duration `json:"retry_in_ns,omitempty"`
}

// Breaker opens after Threshold consecutive failures, rejects calls for
// Cooldown, then lets Probes calls through half-open. One successful
// probe closes it again; a failed one reopens it.
type Breaker struct {
	name   string
	opts   BreakerOptions
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	trips    int
	openedAt time.Time
	probes   int
}

func NewBreaker(name string, opts BreakerOptions) *Breaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Probes <= 0 {
		opts.Probes = 1
	}
	return &Breaker{
		name:   name,
		opts:   opts,
		now:    time.Now,
		logger: slog.Default().With("component", "breaker", "name", name),
	}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do calls fn unless the breaker rejects it or ctx is already done, and
// records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.opts.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.probes = 1
	case StateHalfOpen:
		if b.probes >= b.opts.Probes {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || (b.opts.IsFailure != nil && !b.opts.IsFailure(err)) {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
			b.probes = 0
			b.logger.Info("circuit closed")
		}
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.trip()
		b.logger.Warn("probe failed, circuit reopened", "error", err)
	case b.state == StateClosed && b.failures >= b.opts.Threshold:
		b.trip()
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "error", err)
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.trips++
	b.probes = 0
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.opts.OnChange != nil {
		b.opts.OnChange(b.name, from, to)
	}
}

// Status snapshots the breaker for readiness and admin endpoints.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BreakerStatus{Name: b.name, State: b.state, Failures: b.failures, Trips: b.trips}
	if b.state == StateOpen {
		st.RetryIn = max(0, b.opts.Cooldown-b.now().Sub(b.openedAt))
	}
	return st
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	b.transition(StateClosed)
}
