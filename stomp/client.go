// Package stomp is a STOMP 1.2 client over a single WebSocket
// connection, as offered by Hotmoka nodes at <url>/node.
//
// Every WebSocket message carries one frame. Subscriptions are
// acknowledged through RECEIPT frames: Subscribe returns only once the
// broker confirmed the subscription. Each subscription owns a buffered
// channel drained by its own dispatch goroutine, so a slow handler
// delays only its own subscription until the buffer fills.
package stomp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/blockberries/moka"
)

// Defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultBuffer           = 64
)

// Subprotocol is the WebSocket subprotocol requested on dial.
const Subprotocol = "v12.stomp"

// ErrClosed is returned by operations on a closed client.
var ErrClosed = moka.ErrClosed

// BrokerError is an ERROR frame sent by the broker.
type BrokerError struct {
	Message string
	Body    string
}

func (e *BrokerError) Error() string {
	if e.Body == "" {
		return "stomp broker error: " + e.Message
	}
	return fmt.Sprintf("stomp broker error: %s: %s", e.Message, e.Body)
}

func brokerError(f *frame.Frame) *BrokerError {
	return &BrokerError{Message: f.Header.Get(frame.Message), Body: string(f.Body)}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHandshakeTimeout bounds the CONNECT/CONNECTED exchange when the
// dial context has no earlier deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// WithBuffer sets the capacity of each subscription channel.
func WithBuffer(n int) Option {
	return func(c *Client) { c.buffer = n }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client is a STOMP connection. It is safe for concurrent use.
type Client struct {
	conn             *websocket.Conn
	logger           *zap.Logger
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	buffer           int
	guard            stateGuard

	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	subs     map[string]*Subscription
	receipts map[string]chan *frame.Frame

	closing   chan struct{}
	loopDone  chan struct{}
	loopErr   error
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the broker at rawURL (ws:// or wss://) and completes
// the STOMP handshake.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	c := &Client{
		logger:           zap.NewNop(),
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: DefaultHandshakeTimeout,
		buffer:           DefaultBuffer,
		subs:             make(map[string]*Subscription),
		receipts:         make(map[string]chan *frame.Frame),
		closing:          make(chan struct{}),
		loopDone:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("moka stomp: url: %w", err)
	}
	dialer := *c.dialer
	dialer.Subprotocols = []string{Subprotocol}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, &moka.TransportError{Op: frame.CONNECT, Endpoint: rawURL, Err: err}
	}
	c.conn = conn

	if err := c.handshake(ctx, u.Host); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &moka.TransportError{Op: frame.CONNECT, Endpoint: rawURL, Err: err}
	}
	c.logger.Info("stomp connected", zap.String("url", rawURL))
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, host string) error {
	deadline := time.Now().Add(c.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	_ = c.conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, host,
		frame.HeartBeat, "0,0")
	if err := c.write(connect); err != nil {
		return err
	}
	for {
		frames, err := c.readFrames()
		if err != nil {
			return err
		}
		if len(frames) == 0 {
			continue
		}
		switch f := frames[0]; f.Command {
		case frame.CONNECTED:
			if err := c.guard.connected(); err != nil {
				return err
			}
			_ = c.conn.SetReadDeadline(time.Time{})
			_ = c.conn.SetWriteDeadline(time.Time{})
			for _, rest := range frames[1:] {
				c.dispatch(rest)
			}
			return nil
		case frame.ERROR:
			return brokerError(f)
		default:
			return fmt.Errorf("expected CONNECTED, got %s", f.Command)
		}
	}
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrames parses the frames of one WebSocket message. Heart-beats
// are skipped.
func decodeFrames(data []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
}

func (c *Client) write(f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readFrames() ([]*frame.Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return decodeFrames(data)
}

func (c *Client) readLoop() {
	defer close(c.loopDone)
	for {
		frames, err := c.readFrames()
		if err != nil {
			if c.guard.load() == stateConnected {
				c.logger.Warn("stomp connection lost", zap.Error(err))
			}
			c.loopErr = err
			return
		}
		for _, f := range frames {
			c.dispatch(f)
		}
	}
}

func (c *Client) dispatch(f *frame.Frame) {
	switch f.Command {
	case frame.MESSAGE:
		id := f.Header.Get(frame.Subscription)
		c.mu.Lock()
		s := c.subs[id]
		c.mu.Unlock()
		if s == nil {
			c.logger.Debug("message for unknown subscription", zap.String("subscription", id))
			return
		}
		s.deliver(f.Body, c.closing)
	case frame.RECEIPT:
		c.resolveReceipt(f.Header.Get(frame.ReceiptId), f)
	case frame.ERROR:
		c.logger.Warn("stomp broker error",
			zap.String("message", f.Header.Get(frame.Message)),
			zap.ByteString("body", f.Body))
		if id := f.Header.Get(frame.ReceiptId); id != "" {
			c.resolveReceipt(id, f)
		}
	}
}

func (c *Client) resolveReceipt(id string, f *frame.Frame) {
	c.mu.Lock()
	ch, ok := c.receipts[id]
	delete(c.receipts, id)
	c.mu.Unlock()
	if ok {
		ch <- f
	}
}

func (c *Client) awaitReceipt(ctx context.Context, id string, ch <-chan *frame.Frame) error {
	select {
	case f := <-ch:
		if f.Command == frame.ERROR {
			return brokerError(f)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.receipts, id)
		c.mu.Unlock()
		return ctx.Err()
	case <-c.loopDone:
		return &moka.TransportError{Op: frame.SUBSCRIBE, Err: fmt.Errorf("connection lost: %w", c.loopErr)}
	}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	after func() error
}

// AfterSubscribe runs fn once the broker acknowledged the subscription
// and before Subscribe returns. If fn fails the subscription is
// cancelled and the error returned.
func AfterSubscribe(fn func() error) SubscribeOption {
	return func(o *subscribeOptions) { o.after = fn }
}

// SubscribeBytes subscribes to destination and passes each message body
// to handler. Handler calls of one subscription never overlap.
func (c *Client) SubscribeBytes(ctx context.Context, destination string, handler func([]byte), opts ...SubscribeOption) (*Subscription, error) {
	if err := c.guard.checkOpen(); err != nil {
		return nil, err
	}
	select {
	case <-c.loopDone:
		return nil, &moka.TransportError{Op: frame.SUBSCRIBE, Endpoint: destination, Err: fmt.Errorf("connection lost: %w", c.loopErr)}
	default:
	}
	var so subscribeOptions
	for _, o := range opts {
		o(&so)
	}

	s := &Subscription{
		id:          uuid.NewString(),
		destination: destination,
		client:      c,
		ch:          make(chan []byte, c.buffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	receipt := uuid.NewString()
	ack := make(chan *frame.Frame, 1)
	c.mu.Lock()
	c.subs[s.id] = s
	c.receipts[receipt] = ack
	c.mu.Unlock()
	go s.run(handler)

	err := c.write(frame.New(frame.SUBSCRIBE,
		frame.Id, s.id,
		frame.Destination, destination,
		frame.Ack, "auto",
		frame.Receipt, receipt))
	if err != nil {
		err = &moka.TransportError{Op: frame.SUBSCRIBE, Endpoint: destination, Err: err}
	} else {
		err = c.awaitReceipt(ctx, receipt, ack)
	}
	if err == nil && so.after != nil {
		err = so.after()
	}
	if err != nil {
		_ = s.Unsubscribe()
		return nil, err
	}
	c.logger.Debug("stomp subscribed", zap.String("destination", destination), zap.String("id", s.id))
	return s, nil
}

// Subscribe subscribes to destination and decodes each message body as
// JSON into a T. Undecodable messages are logged and dropped.
func Subscribe[T any](ctx context.Context, c *Client, destination string, handler func(T), opts ...SubscribeOption) (*Subscription, error) {
	return c.SubscribeBytes(ctx, destination, func(body []byte) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			c.logger.Warn("dropping undecodable message", zap.String("destination", destination), zap.Error(err))
			return
		}
		handler(v)
	}, opts...)
}

// Send sends body to destination.
func (c *Client) Send(ctx context.Context, destination, contentType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.guard.checkOpen(); err != nil {
		return err
	}
	f := frame.New(frame.SEND, frame.Destination, destination)
	if contentType != "" {
		f.Header.Add(frame.ContentType, contentType)
	}
	f.Body = body
	if err := c.write(f); err != nil {
		return &moka.TransportError{Op: frame.SEND, Endpoint: destination, Err: err}
	}
	return nil
}

// SendJSON sends v encoded as JSON to destination.
func SendJSON(ctx context.Context, c *Client, destination string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return &moka.EncodingError{Field: destination, Reason: err.Error()}
	}
	return c.Send(ctx, destination, "application/json", body)
}

// Done is closed when the connection is gone, after Close or because
// the broker went away.
func (c *Client) Done() <-chan struct{} { return c.loopDone }

// Close disconnects, stops the read loop and waits for every
// subscription dispatcher to return. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		wasOpen := c.guard.load() == stateConnected
		c.guard.beginClose()
		close(c.closing)
		if wasOpen {
			_ = c.write(frame.New(frame.DISCONNECT))
		}
		c.closeErr = c.conn.Close()
		<-c.loopDone

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]*Subscription)
		c.mu.Unlock()
		for _, s := range subs {
			s.stop()
		}
		c.guard.closed()
		c.logger.Info("stomp closed")
	})
	return c.closeErr
}

// Subscription is an active subscription.
type Subscription struct {
	id          string
	destination string
	client      *Client

	ch   chan []byte
	quit chan struct{}
	done chan struct{}

	unsubscribe sync.Once
	stopOnce    sync.Once
}

// ID returns the subscription id sent to the broker.
func (s *Subscription) ID() string { return s.id }

// Destination returns the subscribed destination.
func (s *Subscription) Destination() string { return s.destination }

func (s *Subscription) run(handler func([]byte)) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case body := <-s.ch:
			select {
			case <-s.quit:
				return
			default:
			}
			handler(body)
		}
	}
}

func (s *Subscription) deliver(body []byte, closing <-chan struct{}) {
	select {
	case s.ch <- body:
	case <-s.quit:
	case <-closing:
	}
}

// stop ends the dispatcher and waits for it.
func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.done
	})
}

// Unsubscribe cancels the subscription. No handler call starts after it
// returns. It must not be called from the handler.
func (s *Subscription) Unsubscribe() error {
	var err error
	s.unsubscribe.Do(func() {
		c := s.client
		c.mu.Lock()
		delete(c.subs, s.id)
		c.mu.Unlock()
		if c.guard.checkOpen() == nil {
			err = c.write(frame.New(frame.UNSUBSCRIBE, frame.Id, s.id))
		}
		s.stop()
	})
	return err
}

// Close is Unsubscribe.
func (s *Subscription) Close() error { return s.Unsubscribe() }
