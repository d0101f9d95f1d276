// Package rest talks to a Hotmoka node over its HTTP JSON endpoints.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/moka"
)

// Compile-time interface checks.
var (
	_ moka.Transport = (*Transport)(nil)
	_ moka.Backend   = (*Backend)(nil)
)

// DefaultTimeout bounds a single round trip.
const DefaultTimeout = 30 * time.Second

// maxReplySize caps the bytes read from a reply body.
const maxReplySize = 64 << 20

// Option configures a Backend or Transport.
type Option func(*Backend)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.client = c }
}

// WithTimeout sets the timeout of the HTTP client. A client given with
// WithHTTPClient is copied, not changed.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		c := *b.client
		c.Timeout = d
		b.client = &c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// Backend forwards calls to a REST node. Placed behind a gRPC server it
// turns that server into a gateway for the node.
type Backend struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

// NewBackend returns a backend for the node at baseURL, for instance
// "http://localhost:8080".
func NewBackend(baseURL string, opts ...Option) (*Backend, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("moka rest: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("moka rest: base url %q is not http(s)", baseURL)
	}
	b := &Backend{
		base:   strings.TrimRight(u.String(), "/"),
		client: &http.Client{Timeout: DefaultTimeout},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Handle sends call to the node and returns its reply whatever the
// status. Only failures to reach the node are errors.
func (b *Backend) Handle(ctx context.Context, call moka.Call) (moka.Reply, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, b.base+call.Endpoint, body)
	if err != nil {
		return moka.Reply{}, err
	}
	req.Header.Set("Accept", "application/json")
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return moka.Reply{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return moka.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	b.logger.Debug("node call",
		zap.String("method", call.Method),
		zap.String("endpoint", call.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))
	return moka.Reply{Status: resp.StatusCode, Body: data}, nil
}

// Close releases idle connections.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// Transport is a moka.Transport over HTTP. It is safe for concurrent
// use and keeps no per-request state.
type Transport struct {
	backend *Backend
}

// New returns a transport for the node at baseURL.
func New(baseURL string, opts ...Option) (*Transport, error) {
	b, err := NewBackend(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Transport{backend: b}, nil
}

// Get calls a GET endpoint.
func (t *Transport) Get(ctx context.Context, endpoint string, out any) error {
	return moka.Invoke(ctx, http.MethodGet, endpoint, nil, out, t.backend.Handle)
}

// Post calls a POST endpoint with in as its JSON body.
func (t *Transport) Post(ctx context.Context, endpoint string, in, out any) error {
	return moka.Invoke(ctx, http.MethodPost, endpoint, in, out, t.backend.Handle)
}

// Close releases idle connections.
func (t *Transport) Close() error { return t.backend.Close() }
