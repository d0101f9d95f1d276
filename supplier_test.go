package moka

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/moka/types"
)

func TestSupplier_CachesTerminalOutcome(t *testing.T) {
	ref := types.NewTransactionReference("cafe")
	var calls atomic.Int64
	s := NewSupplier(ref, func(context.Context) (string, error) {
		calls.Add(1)
		return "done", nil
	})

	assert.Equal(t, ref, s.ReferenceOfRequest())
	for range 3 {
		v, err := s.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestSupplier_CachesFailure(t *testing.T) {
	var calls atomic.Int64
	s := NewSupplier(types.NewTransactionReference("cafe"), func(context.Context) (int, error) {
		calls.Add(1)
		return 0, &TransactionFailedError{ClassName: "io.hotmoka.beans.TransactionException", Message: "out of gas"}
	})

	_, err1 := s.Get(context.Background())
	_, err2 := s.Get(context.Background())
	_, ok := IsFailed(err2)
	require.True(t, ok)
	assert.Same(t, err1, err2)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSupplier_RetriesAfterPollTimeout(t *testing.T) {
	ref := types.NewTransactionReference("cafe")
	var calls atomic.Int64
	s := NewSupplier(ref, func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, &PollTimeoutError{Reference: ref, Attempts: 3}
		}
		return 42, nil
	})

	_, err := s.Get(context.Background())
	_, ok := IsPollTimeout(err)
	require.True(t, ok)

	v, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSupplier_OneResolutionAtATime(t *testing.T) {
	var running, maxRunning atomic.Int64
	s := NewSupplier(types.NewTransactionReference("cafe"), func(context.Context) (int, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return 7, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxRunning.Load())
}

func TestSupplier_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	s := NewSupplier(types.NewTransactionReference("cafe"), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	go s.Get(context.Background())
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
