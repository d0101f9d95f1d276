package stomp

import (
	"fmt"
	"sync/atomic"
)

// connState is a state of the connection state machine.
type connState uint32

const (
	// stateConnecting: CONNECT sent, waiting for CONNECTED. Nothing
	// else may be sent.
	stateConnecting connState = iota
	// stateConnected: frames flow both ways. Subscribe and Send are
	// allowed.
	stateConnected
	// stateClosing: Close has been called. New operations fail and
	// the read loop is winding down.
	stateClosing
	// stateClosed: the socket is closed and every dispatcher joined.
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "Connecting"
	case stateConnected:
		return "Connected"
	case stateClosing:
		return "Closing"
	case stateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// stateGuard enforces the connection state machine.
type stateGuard struct {
	state atomic.Uint32
}

func (g *stateGuard) load() connState { return connState(g.state.Load()) }

// transition moves from one state to another and reports whether the
// guard was in the expected state.
func (g *stateGuard) transition(from, to connState) bool {
	return g.state.CompareAndSwap(uint32(from), uint32(to))
}

// connected transitions Connecting → Connected.
func (g *stateGuard) connected() error {
	if !g.transition(stateConnecting, stateConnected) {
		return fmt.Errorf("moka stomp: CONNECTED received in state %s", g.load())
	}
	return nil
}

// beginClose transitions Connecting or Connected → Closing. It reports
// false if another caller already started closing.
func (g *stateGuard) beginClose() bool {
	return g.transition(stateConnected, stateClosing) || g.transition(stateConnecting, stateClosing)
}

// closed transitions Closing → Closed.
func (g *stateGuard) closed() { g.state.Store(uint32(stateClosed)) }

// checkOpen fails unless frames may be sent.
func (g *stateGuard) checkOpen() error {
	if s := g.load(); s != stateConnected {
		return fmt.Errorf("moka stomp: connection is %s: %w", s, ErrClosed)
	}
	return nil
}
