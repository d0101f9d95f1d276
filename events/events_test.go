package events_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/events"
	mokatest "github.com/blockberries/moka/testing"
	"github.com/blockberries/moka/types"
)

var (
	creatorA = types.NewStorageReference(types.NewTransactionReference("aa"), 0)
	creatorB = types.NewStorageReference(types.NewTransactionReference("bb"), 1)
	event1   = types.NewStorageReference(types.NewTransactionReference("e1"), 0)
	event2   = types.NewStorageReference(types.NewTransactionReference("e2"), 0)
)

func newManager(t *testing.T) (*events.Manager, *mokatest.Broker) {
	t.Helper()
	b := mokatest.NewBroker()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/node"
	m := events.NewForURL(url, events.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = m.Close() })
	return m, b
}

type recorder struct {
	mu  sync.Mutex
	got []types.Event
}

func (r *recorder) handle(event, creator types.StorageReference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, types.Event{Event: event, Creator: creator})
}

func (r *recorder) events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.got...)
}

func TestCreatorFilter(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	var onlyA, all recorder
	_, err := m.SubscribeToEvents(ctx, &creatorA, onlyA.handle)
	require.NoError(t, err)
	_, err = m.SubscribeToEvents(ctx, nil, all.handle)
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, types.Event{Event: event1, Creator: creatorA}))
	require.NoError(t, m.Publish(ctx, types.Event{Event: event2, Creator: creatorB}))

	require.Eventually(t, func() bool { return len(all.events()) == 2 }, 2*time.Second, 5*time.Millisecond)
	got := onlyA.events()
	require.Len(t, got, 1)
	assert.True(t, got[0].Event.Equal(event1))
	assert.True(t, got[0].Creator.Equal(creatorA))
}

func TestSingleTopicSubscription(t *testing.T) {
	m, b := newManager(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.SubscribeToEvents(ctx, nil, func(_, _ types.StorageReference) {})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, b.Subscribers(events.Topic))
	assert.EqualValues(t, 1, b.Connections.Load())
	assert.Equal(t, 3, m.Watchers())
}

func TestNodePublishedEvent(t *testing.T) {
	m, b := newManager(t)
	var r recorder
	_, err := m.SubscribeToEvents(context.Background(), &creatorB, r.handle)
	require.NoError(t, err)

	body, err := json.Marshal(types.Event{Event: event2, Creator: creatorB})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Publish(events.Topic, body))
	require.Eventually(t, func() bool { return len(r.events()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcherClose(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	var calls atomic.Int32
	sub, err := m.SubscribeToEvents(ctx, nil, func(_, _ types.StorageReference) { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, types.Event{Event: event1, Creator: creatorA}))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, m.Watchers())
	require.NoError(t, m.Publish(ctx, types.Event{Event: event2, Creator: creatorA}))
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCloseWaitsForRunningHandler(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	release := make(chan struct{})
	var running, finished atomic.Int32
	_, err := m.SubscribeToEvents(ctx, nil, func(_, _ types.StorageReference) {
		running.Add(1)
		<-release
		finished.Add(1)
	})
	require.NoError(t, err)
	require.NoError(t, m.Publish(ctx, types.Event{Event: event1, Creator: creatorA}))
	require.Eventually(t, func() bool { return running.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = m.Close()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.EqualValues(t, 1, finished.Load())

	_, err = m.SubscribeToEvents(ctx, nil, func(_, _ types.StorageReference) {})
	assert.ErrorIs(t, err, moka.ErrClosed)
	assert.ErrorIs(t, m.Publish(ctx, types.Event{}), moka.ErrClosed)
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	m, b := newManager(t)
	ctx := context.Background()

	var r recorder
	_, err := m.SubscribeToEvents(ctx, &creatorA, r.handle)
	require.NoError(t, err)

	b.DropConnections()
	require.Eventually(t, func() bool { return b.Subscribers(events.Topic) == 0 }, 2*time.Second, 5*time.Millisecond)

	// A publish may still hit the dead connection before its loss is
	// noticed, so keep publishing until one is delivered.
	require.Eventually(t, func() bool {
		_ = m.Publish(ctx, types.Event{Event: event1, Creator: creatorA})
		return len(r.events()) >= 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 2, b.Connections.Load())
}

func TestSubscribeRefused(t *testing.T) {
	m, b := newManager(t)
	b.RejectSubscribe.Store(true)
	_, err := m.SubscribeToEvents(context.Background(), nil, func(_, _ types.StorageReference) {})
	require.Error(t, err)
	assert.Equal(t, 0, m.Watchers())
}
