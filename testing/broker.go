package mokatest

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Broker is a minimal STOMP 1.2 broker over WebSocket, enough to test
// event subscriptions. Frames sent to a routed destination are
// broadcast as MESSAGE frames to the subscribers of its target.
type Broker struct {
	// Routes maps SEND destinations to subscription destinations.
	Routes map[string]string
	// RejectSubscribe makes the broker answer SUBSCRIBE with ERROR.
	RejectSubscribe atomic.Bool
	// SkipReceipts makes the broker ignore receipt requests.
	SkipReceipts atomic.Bool

	Connections atomic.Int64
	Sent        atomic.Int64

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]string // id → destination, guarded by Broker.mu
}

// NewBroker returns a broker routing /events to /topic/events, as a
// Hotmoka node does.
func NewBroker() *Broker {
	return &Broker{
		Routes:   map[string]string{"/events": "/topic/events"},
		upgrader: websocket.Upgrader{Subprotocols: []string{"v12.stomp"}, CheckOrigin: func(*http.Request) bool { return true }},
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades the request and serves one STOMP session.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &session{conn: conn, subs: make(map[string]string)}
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
	b.Connections.Add(1)

	defer func() {
		b.mu.Lock()
		delete(b.sessions, s)
		b.mu.Unlock()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		rd := frame.NewReader(bytes.NewReader(data))
		for {
			f, err := rd.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return
			}
			if f != nil && !b.handle(s, f) {
				return
			}
		}
	}
}

// handle serves one client frame and reports whether the session goes on.
func (b *Broker) handle(s *session, f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return s.send(frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0")) == nil
	case frame.SUBSCRIBE:
		receipt := f.Header.Get(frame.Receipt)
		if b.RejectSubscribe.Load() {
			e := frame.New(frame.ERROR, frame.Message, "subscription refused")
			if receipt != "" {
				e.Header.Add(frame.ReceiptId, receipt)
			}
			return s.send(e) == nil
		}
		b.mu.Lock()
		s.subs[f.Header.Get(frame.Id)] = f.Header.Get(frame.Destination)
		b.mu.Unlock()
		if receipt != "" && !b.SkipReceipts.Load() {
			return s.send(frame.New(frame.RECEIPT, frame.ReceiptId, receipt)) == nil
		}
	case frame.UNSUBSCRIBE:
		b.mu.Lock()
		delete(s.subs, f.Header.Get(frame.Id))
		b.mu.Unlock()
	case frame.SEND:
		b.Sent.Add(1)
		dest := f.Header.Get(frame.Destination)
		if target, ok := b.Routes[dest]; ok {
			dest = target
		}
		b.Publish(dest, f.Body)
	case frame.DISCONNECT:
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			_ = s.send(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
		}
		return false
	}
	return true
}

func (s *session) send(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// Publish sends body to every subscriber of destination and returns the
// number of deliveries.
func (b *Broker) Publish(destination string, body []byte) int {
	type target struct {
		s  *session
		id string
	}
	var targets []target
	b.mu.Lock()
	for s := range b.sessions {
		for id, dest := range s.subs {
			if dest == destination {
				targets = append(targets, target{s, id})
			}
		}
	}
	b.mu.Unlock()

	n := 0
	for _, t := range targets {
		m := frame.New(frame.MESSAGE,
			frame.Destination, destination,
			frame.Subscription, t.id,
			frame.MessageId, uuid.NewString(),
			frame.ContentType, "application/json")
		m.Body = body
		if t.s.send(m) == nil {
			n++
		}
	}
	return n
}

// Subscribers returns the number of live subscriptions to destination.
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for s := range b.sessions {
		for _, dest := range s.subs {
			if dest == destination {
				n++
			}
		}
	}
	return n
}

// DropConnections closes every session, as a broker restart would.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.sessions {
		s.conn.Close()
	}
}
