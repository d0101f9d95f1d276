package mokagrpc

import "github.com/blockberries/moka"

// CallRequest is the wire form of a moka.Call.
type CallRequest struct {
	Method   string `cramberry:"1"`
	Endpoint string `cramberry:"2"`
	Body     []byte `cramberry:"3"`
}

// CallReply is the wire form of a moka.Reply.
type CallReply struct {
	Status uint32 `cramberry:"1"`
	Body   []byte `cramberry:"2"`
}

func toWire(c moka.Call) *CallRequest {
	return &CallRequest{Method: c.Method, Endpoint: c.Endpoint, Body: c.Body}
}

func (r *CallRequest) call() moka.Call {
	return moka.Call{Method: r.Method, Endpoint: r.Endpoint, Body: r.Body}
}

func (r *CallReply) reply() moka.Reply {
	return moka.Reply{Status: int(r.Status), Body: r.Body}
}
