// Package events multiplexes the event topic of a node to per-creator
// watchers over one STOMP connection.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/stomp"
	"github.com/blockberries/moka/types"
)

// Compile-time interface check.
var _ moka.EventSource = (*Manager)(nil)

// Destinations used by Hotmoka nodes.
const (
	Topic       = "/topic/events"
	PublishPath = "/events"
)

// Dialer opens the STOMP connection.
type Dialer func(ctx context.Context) (*stomp.Client, error)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager connects on first use, subscribes once to the event topic
// and hands each event to the watchers of its creator. A lost
// connection is re-established by the next subscription or publish;
// existing watchers survive it.
type Manager struct {
	dial   Dialer
	logger *zap.Logger

	mu     sync.Mutex
	client *stomp.Client
	closed bool

	// watchMu is separate from mu: dispatch takes it while connect,
	// holding mu, may be joining the dispatch goroutine of a lost
	// connection.
	watchMu  sync.RWMutex
	watchers map[uint64]*watcher
	nextID   uint64
}

// New returns a manager connecting with dial.
func New(dial Dialer, opts ...Option) *Manager {
	m := &Manager{dial: dial, logger: zap.NewNop(), watchers: make(map[uint64]*watcher)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewForURL returns a manager for the broker at url, typically
// "ws://host:port/node".
func NewForURL(url string, opts ...Option) *Manager {
	m := New(nil, opts...)
	m.dial = func(ctx context.Context) (*stomp.Client, error) {
		return stomp.Dial(ctx, url, stomp.WithLogger(m.logger))
	}
	return m
}

// connect returns the live client, dialing and subscribing if needed.
// It must be called with m.mu held.
func (m *Manager) connect(ctx context.Context) (*stomp.Client, error) {
	if m.closed {
		return nil, moka.ErrClosed
	}
	if m.client != nil {
		select {
		case <-m.client.Done():
			m.logger.Info("event connection lost, reconnecting")
			_ = m.client.Close()
			m.client = nil
		default:
			return m.client, nil
		}
	}
	c, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := stomp.Subscribe(ctx, c, Topic, m.dispatch); err != nil {
		_ = c.Close()
		return nil, err
	}
	m.client = c
	return c, nil
}

// dispatch runs on the subscription's dispatch goroutine.
func (m *Manager) dispatch(e types.Event) {
	m.watchMu.RLock()
	ws := make([]*watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		ws = append(ws, w)
	}
	m.watchMu.RUnlock()

	for _, w := range ws {
		w.deliver(e)
	}
}

// SubscribeToEvents registers handler for the events created by
// creator, or for every event if creator is nil. It returns once the
// node acknowledged the topic subscription.
func (m *Manager) SubscribeToEvents(ctx context.Context, creator *types.StorageReference, handler moka.EventHandler) (moka.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.connect(ctx); err != nil {
		return nil, err
	}
	w := &watcher{manager: m, handler: handler}
	if creator != nil {
		c := *creator
		w.creator = &c
	}
	m.watchMu.Lock()
	w.id = m.nextID
	m.nextID++
	m.watchers[w.id] = w
	m.watchMu.Unlock()
	m.logger.Debug("event watcher added", zap.Uint64("id", w.id), zap.Bool("filtered", creator != nil))
	return w, nil
}

// Publish sends an event to the node, which forwards it to the topic.
func (m *Manager) Publish(ctx context.Context, e types.Event) error {
	m.mu.Lock()
	c, err := m.connect(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return stomp.SendJSON(ctx, c, PublishPath, e)
}

// Watchers returns the number of registered watchers.
func (m *Manager) Watchers() int {
	m.watchMu.RLock()
	defer m.watchMu.RUnlock()
	return len(m.watchers)
}

// Close closes the connection. Handlers are not called after Close
// returns. It must not be called from a handler.
func (m *Manager) Close() error {
	m.mu.Lock()
	c := m.client
	m.closed = true
	m.client = nil
	m.mu.Unlock()

	var err error
	if c != nil {
		err = c.Close()
	}
	m.watchMu.Lock()
	m.watchers = make(map[uint64]*watcher)
	m.watchMu.Unlock()
	return err
}

type watcher struct {
	manager *Manager
	id      uint64
	creator *types.StorageReference
	handler moka.EventHandler

	// mu is held for reading while the handler runs, so Close waits
	// for a running call and prevents later ones.
	mu     sync.RWMutex
	closed bool
}

func (w *watcher) deliver(e types.Event) {
	if w.creator != nil && !w.creator.Equal(e.Creator) {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	w.handler(e.Event, e.Creator)
}

// Close removes the watcher. It must not be called from its handler.
func (w *watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	m := w.manager
	m.watchMu.Lock()
	delete(m.watchers, w.id)
	m.watchMu.Unlock()
	return nil
}
