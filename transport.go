package moka

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/blockberries/moka/types"
)

// Transport moves JSON between the client and the node endpoints.
// Endpoints are paths such as "/get/manifest". Implementations must be
// safe for concurrent use.
type Transport interface {
	// Get calls a GET endpoint and decodes the reply into out.
	Get(ctx context.Context, endpoint string, out any) error

	// Post calls a POST endpoint with in as JSON body and decodes the
	// reply into out. A nil out discards the reply body.
	Post(ctx context.Context, endpoint string, in, out any) error

	Close() error
}

// Call is one endpoint invocation carried by a non-HTTP transport.
type Call struct {
	Method   string
	Endpoint string
	Body     []byte
}

// Reply is the node's answer to a Call: an HTTP status and a JSON body.
type Reply struct {
	Status int
	Body   []byte
}

// Backend serves Calls on the node side of the gRPC and in-process
// transports. An error means the call could not be served at all;
// node errors travel as a non-2xx Reply.
type Backend interface {
	Handle(ctx context.Context, call Call) (Reply, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, call Call) (Reply, error)

func (f BackendFunc) Handle(ctx context.Context, call Call) (Reply, error) { return f(ctx, call) }

// DecodeReply interprets a node reply for endpoint. A 2xx reply is
// decoded into out. Any other status carries the node error model,
// which is mapped through ClassifyRemote. Undecodable bodies yield a
// ProtocolError.
func DecodeReply(endpoint string, status int, body []byte, out any) error {
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &ProtocolError{Endpoint: endpoint, Err: err}
		}
		return nil
	}
	var m types.ErrorModel
	if err := json.Unmarshal(body, &m); err != nil || (m.Message == "" && m.ExceptionClassName == "") {
		return &RemoteError{Status: status, Message: http.StatusText(status)}
	}
	return ClassifyRemote(status, m)
}

// Invoke marshals in as the JSON body of a call to endpoint, passes the
// call to handle and decodes the reply into out. A failure of handle is
// reported as a TransportError.
func Invoke(ctx context.Context, method, endpoint string, in, out any, handle func(context.Context, Call) (Reply, error)) error {
	call := Call{Method: method, Endpoint: endpoint}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return &EncodingError{Field: endpoint, Reason: err.Error()}
		}
		call.Body = body
	}
	reply, err := handle(ctx, call)
	if err != nil {
		return &TransportError{Op: method, Endpoint: endpoint, Err: err}
	}
	return DecodeReply(endpoint, reply.Status, reply.Body, out)
}
