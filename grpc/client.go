package mokagrpc

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/grpc"

	"github.com/blockberries/moka"
)

// Compile-time interface checks.
var (
	_ moka.Transport = (*Client)(nil)
	_ moka.Backend   = (*Client)(nil)
)

// Client is a moka.Transport to a GRPCServer.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a node gateway.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("moka grpc: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return moka.Invoke(ctx, http.MethodGet, endpoint, nil, out, c.Handle)
}

func (c *Client) Post(ctx context.Context, endpoint string, in, out any) error {
	return moka.Invoke(ctx, http.MethodPost, endpoint, in, out, c.Handle)
}

// Handle sends one call, which makes a Client usable as the backend of
// another server.
func (c *Client) Handle(ctx context.Context, call moka.Call) (moka.Reply, error) {
	resp := new(CallReply)
	if err := c.cc.Invoke(ctx, fullMethod("Call"), toWire(call), resp); err != nil {
		return moka.Reply{}, err
	}
	return resp.reply(), nil
}
