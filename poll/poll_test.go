package poll_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/poll"
	"github.com/blockberries/moka/types"
)

var ref = types.NewTransactionReference("ab12")

func fastPolicy(attempts int) poll.Policy {
	return poll.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1,
		MaxAttempts:     attempts,
	}
}

func newPoller(t *testing.T, p poll.Policy) *poll.Poller {
	t.Helper()
	poller, err := poll.New(p, poll.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return poller
}

func pending() error { return &moka.NotFoundError{Message: "unknown transaction reference"} }

func TestResolve_PendingThenSuccess(t *testing.T) {
	p := newPoller(t, fastPolicy(10))

	var calls atomic.Int32
	v, err := poll.Resolve(context.Background(), p, ref, func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", pending()
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestResolve_TerminalFailureStopsAtOnce(t *testing.T) {
	p := newPoller(t, fastPolicy(10))

	rejected := &moka.TransactionRejectedError{ClassName: moka.RejectedExceptionClass, Message: "nonce too low"}
	var calls atomic.Int32
	_, err := poll.Resolve(context.Background(), p, ref, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, rejected
	})
	assert.Same(t, rejected, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolve_AttemptBound(t *testing.T) {
	p := newPoller(t, fastPolicy(4))

	var calls atomic.Int32
	_, err := poll.Resolve(context.Background(), p, ref, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, pending()
	})
	timeout, ok := moka.IsPollTimeout(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 4, timeout.Attempts)
	assert.True(t, timeout.Reference.Equal(ref))
	assert.EqualValues(t, 4, calls.Load())
}

func TestResolve_TimeBound(t *testing.T) {
	p := newPoller(t, poll.Policy{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      1,
		Timeout:         30 * time.Millisecond,
	})

	start := time.Now()
	_, err := poll.Resolve(context.Background(), p, ref, func(context.Context) (int, error) {
		return 0, pending()
	})
	_, ok := moka.IsPollTimeout(err)
	require.True(t, ok, "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_Cancellation(t *testing.T) {
	p := newPoller(t, poll.Policy{
		InitialInterval: time.Hour,
		MaxInterval:     time.Hour,
		Multiplier:      1,
		MaxAttempts:     5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := poll.Resolve(ctx, p, ref, func(context.Context) (int, error) {
			calls.Add(1)
			return 0, pending()
		})
		done <- err
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolve_CancelledBeforeStart(t *testing.T) {
	p := newPoller(t, fastPolicy(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := poll.Resolve(ctx, p, ref, func(context.Context) (int, error) {
		t.Fatal("fetch called after cancellation")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_TransportErrorIsNotRetried(t *testing.T) {
	p := newPoller(t, fastPolicy(5))

	var calls atomic.Int32
	_, err := poll.Resolve(context.Background(), p, ref, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, &moka.TransportError{Op: "POST", Endpoint: "/get/response", Err: errors.New("connection refused")}
	})
	_, ok := moka.IsTransport(err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, calls.Load())
}

func TestPoller_Response(t *testing.T) {
	p := newPoller(t, fastPolicy(5))

	var calls atomic.Int32
	r, err := p.Response(context.Background(), ref, func(_ context.Context, got types.TransactionReference) (types.Response, error) {
		assert.True(t, got.Equal(ref))
		if calls.Add(1) == 1 {
			return nil, pending()
		}
		return &types.VoidMethodCallSuccessfulResponse{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.ResponseVoidMethodCallSuccessful, r.Kind())
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, poll.DefaultPolicy().Validate())

	bad := []poll.Policy{
		{},
		{InitialInterval: time.Second, MaxInterval: time.Millisecond, Multiplier: 1, MaxAttempts: 1},
		{InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 0.5, MaxAttempts: 1},
		{InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 1, Jitter: 1, MaxAttempts: 1},
		{InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 1},
	}
	for _, p := range bad {
		assert.Error(t, p.Validate(), "%+v", p)
		_, err := poll.New(p)
		assert.Error(t, err)
	}
}
