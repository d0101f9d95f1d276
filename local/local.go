// Package local provides an in-process moka.Transport.
//
// For nodes compiled into the same binary as the client, or fakes in
// tests, this adapter calls a moka.Backend directly. Bodies are still
// JSON, so replies go through the same decoding and error
// classification as over the network.
package local

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/blockberries/moka"
)

// Compile-time interface check.
var _ moka.Transport = (*Connection)(nil)

// Connection is an in-process transport to a backend.
type Connection struct {
	backend moka.Backend
	closed  atomic.Bool
}

// NewConnection returns a connection calling backend.
func NewConnection(backend moka.Backend) *Connection {
	return &Connection{backend: backend}
}

func (c *Connection) Get(ctx context.Context, endpoint string, out any) error {
	return moka.Invoke(ctx, http.MethodGet, endpoint, nil, out, c.handle)
}

func (c *Connection) Post(ctx context.Context, endpoint string, in, out any) error {
	return moka.Invoke(ctx, http.MethodPost, endpoint, in, out, c.handle)
}

func (c *Connection) handle(ctx context.Context, call moka.Call) (moka.Reply, error) {
	if c.closed.Load() {
		return moka.Reply{}, moka.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return moka.Reply{}, err
	}
	return c.backend.Handle(ctx, call)
}

// Close makes later calls fail with moka.ErrClosed.
func (c *Connection) Close() error {
	c.closed.Store(true)
	return nil
}

// Backend returns the underlying backend for advanced use cases.
func (c *Connection) Backend() moka.Backend {
	return c.backend
}
