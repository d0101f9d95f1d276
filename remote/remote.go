// Package remote implements moka.Node against a live Hotmoka node.
//
// Requests travel through a moka.Transport, REST by default. Requests
// left unsigned are signed with the signer of their caller when a
// signature.Provider is configured. Posted transactions are resolved
// by the polling engine; events use a separate STOMP connection opened
// on first use.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/events"
	"github.com/blockberries/moka/poll"
	"github.com/blockberries/moka/rest"
	"github.com/blockberries/moka/signature"
	"github.com/blockberries/moka/types"
)

// Compile-time interface check.
var _ moka.Node = (*Node)(nil)

// ErrNoEvents is returned by event operations of a node built without
// an event connection.
var ErrNoEvents = errors.New("moka remote: events not configured")

// Journal records posted transactions and their outcome.
type Journal interface {
	RecordPosted(ctx context.Context, ref types.TransactionReference, req types.Request) error
	RecordOutcome(ctx context.Context, ref types.TransactionReference, resp types.Response, outcome error) error
}

// Option configures a Node.
type Option func(*Node)

// WithSigners signs unsigned requests with the signer of their caller.
func WithSigners(p signature.Provider) Option {
	return func(n *Node) { n.signers = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithPollPolicy sets the policy resolving posted transactions.
func WithPollPolicy(p poll.Policy) Option {
	return func(n *Node) { n.policy = p }
}

// WithJournal records posted transactions in j.
func WithJournal(j Journal) Option {
	return func(n *Node) { n.journal = j }
}

// WithEvents uses m for events. The node closes m on Close.
func WithEvents(m *events.Manager) Option {
	return func(n *Node) { n.events = m }
}

// WithEventsURL connects events to the broker at url instead of the
// one derived from the node URL.
func WithEventsURL(url string) Option {
	return func(n *Node) { n.eventsURL = url }
}

// WithRESTOptions passes options to the REST transport built by Dial.
func WithRESTOptions(opts ...rest.Option) Option {
	return func(n *Node) { n.restOpts = append(n.restOpts, opts...) }
}

// Node is a client of a Hotmoka node. It is safe for concurrent use.
type Node struct {
	transport moka.Transport
	signers   signature.Provider
	policy    poll.Policy
	poller    *poll.Poller
	journal   Journal
	events    *events.Manager
	eventsURL string
	restOpts  []rest.Option
	logger    *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// New returns a node client over t.
func New(t moka.Transport, opts ...Option) (*Node, error) {
	n := &Node{transport: t, policy: poll.DefaultPolicy(), logger: zap.NewNop()}
	for _, o := range opts {
		o(n)
	}
	poller, err := poll.New(n.policy, poll.WithLogger(n.logger))
	if err != nil {
		return nil, fmt.Errorf("moka remote: %w", err)
	}
	n.poller = poller
	if n.events == nil && n.eventsURL != "" {
		n.events = events.NewForURL(n.eventsURL, events.WithLogger(n.logger))
	}
	return n, nil
}

// Dial returns a client of the REST node at baseURL. Events are
// delivered by the broker at the same address under /node, unless
// WithEvents or WithEventsURL say otherwise.
func Dial(baseURL string, opts ...Option) (*Node, error) {
	var preset Node
	for _, o := range opts {
		o(&preset)
	}
	logger := preset.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t, err := rest.New(baseURL, append([]rest.Option{rest.WithLogger(logger)}, preset.restOpts...)...)
	if err != nil {
		return nil, err
	}
	if preset.events == nil && preset.eventsURL == "" {
		ws, err := EventsURL(baseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithEventsURL(ws))
	}
	return New(t, opts...)
}

// EventsURL derives the STOMP endpoint of the node at baseURL:
// http://host:port becomes ws://host:port/node.
func EventsURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("moka remote: base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("moka remote: base url %q is not http(s)", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/node"
	return u.String(), nil
}

// Close releases the transport and the event connection.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		var errs []error
		if n.events != nil {
			errs = append(errs, n.events.Close())
		}
		errs = append(errs, n.transport.Close())
		n.closeErr = errors.Join(errs...)
	})
	return n.closeErr
}

func (n *Node) get(ctx context.Context, endpoint string, out any) error {
	n.logger.Debug("node call", zap.String("method", "GET"), zap.String("endpoint", endpoint))
	return n.transport.Get(ctx, endpoint, out)
}

func (n *Node) post(ctx context.Context, endpoint string, in, out any) error {
	n.logger.Debug("node call", zap.String("method", "POST"), zap.String("endpoint", endpoint))
	return n.transport.Post(ctx, endpoint, in, out)
}
