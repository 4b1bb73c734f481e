package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func fail(context.Context) error { return errBackend }
func pass(context.Context) error { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(opts BreakerOptions) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker("encoder", opts)
	b.now = c.now
	return b, c
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []State
	b, _ := newTestBreaker(BreakerOptions{
		Threshold: 2,
		OnChange:  func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	ctx := context.Background()

	assert.ErrorIs(t, b.Do(ctx, fail), errBackend)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)

	st := b.Status()
	assert.Equal(t, 1, st.Trips)
	assert.Equal(t, 30*time.Second, st.RetryIn)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerOptions{Threshold: 2})
	ctx := context.Background()
	b.Do(ctx, fail)
	b.Do(ctx, pass)
	b.Do(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 1, b.Status().Failures)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, c := newTestBreaker(BreakerOptions{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()
	require.Error(t, b.Do(ctx, fail))
	require.Equal(t, StateOpen, b.State())

	c.advance(time.Minute)
	require.NoError(t, b.Do(ctx, pass))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, c := newTestBreaker(BreakerOptions{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()
	b.Do(ctx, fail)
	c.advance(time.Minute)

	assert.ErrorIs(t, b.Do(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 2, b.Status().Trips)
	assert.ErrorIs(t, b.Do(ctx, pass), ErrCircuitOpen)
}

func TestBreakerLimitsConcurrentProbes(t *testing.T) {
	b, c := newTestBreaker(BreakerOptions{Threshold: 1, Cooldown: time.Second})
	ctx := context.Background()
	b.Do(ctx, fail)
	c.advance(time.Second)

	err := b.Do(ctx, func(ctx context.Context) error {
		assert.ErrorIs(t, b.Do(ctx, pass), ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerOptions{
		Threshold: 1,
		IsFailure: func(err error) bool { return !errors.Is(err, context.Canceled) },
	})
	require.Error(t, b.Do(context.Background(), func(context.Context) error { return context.Canceled }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSkipsDoneContext(t *testing.T) {
	b, _ := newTestBreaker(BreakerOptions{Threshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(BreakerOptions{Threshold: 1})
	b.Do(context.Background(), fail)
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Do(context.Background(), pass))
}

func TestStateText(t *testing.T) {
	text, err := StateHalfOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "half-open", string(text))
}

func TestBackoffStopsOnSuccess(t *testing.T) {
	attempts := 0
	err := Backoff{Attempts: 4, Base: time.Millisecond}.Do(context.Background(), "load", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBackoffPermanent(t *testing.T) {
	attempts := 0
	err := Backoff{Attempts: 5, Base: time.Millisecond}.Do(context.Background(), "load", func(context.Context) error {
		attempts++
		return Permanent(errBackend)
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 1, attempts)
}

func TestBackoffExhausts(t *testing.T) {
	attempts := 0
	err := Backoff{Attempts: 2, Base: time.Millisecond}.Do(context.Background(), "load", func(context.Context) error {
		attempts++
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestBackoffHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Backoff{Attempts: 10, Base: time.Hour}.Do(ctx, "load", func(context.Context) error {
		cancel()
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 5 * time.Second}.withDefaults()
	assert.Equal(t, time.Second, b.delay(1))
	assert.Equal(t, 4*time.Second, b.delay(3))
	assert.Equal(t, 5*time.Second, b.delay(4))
	assert.Equal(t, 5*time.Second, b.delay(80))
}

func TestWithinDeadline(t *testing.T) {
	_, err := Within(context.Background(), 10*time.Millisecond, func(ctx context.Context) ([]int, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithinParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Within(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithinReturnsValue(t *testing.T) {
	v, err := Within(context.Background(), time.Second, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWithinZeroRunsInline(t *testing.T) {
	v, err := Within(context.Background(), 0, func(ctx context.Context) (int, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return 7, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}
