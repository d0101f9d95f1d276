// Package mokatest provides test utilities for code built on moka:
// a configurable fake node reachable over HTTP or as a moka.Backend, a
// fake STOMP broker, a harness wiring a client to both, and a transport
// conformance suite.
package mokatest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/codec"
	"github.com/blockberries/moka/types"
)

// Compile-time interface checks.
var (
	_ moka.Backend = (*FakeNode)(nil)
	_ http.Handler = (*FakeNode)(nil)
)

// Exception classes reported by the fake node.
const (
	RejectedClass      = "io.hotmoka.beans.TransactionRejectedException"
	TransactionClass   = "io.hotmoka.beans.TransactionException"
	CodeExecutionClass = "io.hotmoka.beans.CodeExecutionException"
	NoSuchElementClass = "java.util.NoSuchElementException"
	InternalClass      = "java.lang.InternalError"
)

// NodeError is an error the fake node reports through its error model.
type NodeError struct {
	Status             int
	ExceptionClassName string
	Message            string
}

func (e *NodeError) Error() string { return e.ExceptionClassName + ": " + e.Message }

// Rejected returns the error of a node refusing a request.
func Rejected(format string, args ...any) *NodeError {
	return &NodeError{Status: http.StatusBadRequest, ExceptionClassName: RejectedClass, Message: fmt.Sprintf(format, args...)}
}

// Unknown returns the error of a node that does not know something.
func Unknown(format string, args ...any) *NodeError {
	return &NodeError{Status: http.StatusNotFound, ExceptionClassName: NoSuchElementClass, Message: fmt.Sprintf(format, args...)}
}

// FakeNode is a configurable in-memory Hotmoka node for client testing.
// Hooks are optional; unset hooks answer with sensible defaults.
// Submitted requests are executed by ExecuteFn and their responses
// kept, so get/response and get/request answer for them afterwards.
//
// A posted transaction stays unknown to get/response for PendingPolls
// queries, which lets tests exercise polling.
type FakeNode struct {
	TakamakaCode       types.TransactionReference
	Manifest           types.StorageReference
	SignatureAlgorithm string
	PendingPolls       int
	// RejectOnPost makes post report rejections at once instead of
	// through get/response.
	RejectOnPost bool

	StateFn    func(context.Context, types.StorageReference) (types.State, error)
	ClassTagFn func(context.Context, types.StorageReference) (types.ClassTag, error)
	// ExecuteFn computes the response of a submitted request. mode is
	// one of moka.ModeAdd, moka.ModePost, moka.ModeRun.
	ExecuteFn func(ctx context.Context, mode string, req types.Request) (types.Response, error)
	// ReferenceFn computes the reference of a request. It defaults to
	// codec.ReferenceOf.
	ReferenceFn func(types.Request) (types.TransactionReference, error)

	// Call counters.
	Calls         atomic.Int64
	AddCalls      atomic.Int64
	PostCalls     atomic.Int64
	RunCalls      atomic.Int64
	ResponseCalls atomic.Int64

	mu        sync.Mutex
	requests  map[string]types.Request
	responses map[string]types.Response
	failures  map[string]error
	polls     map[string]int
	submitted []types.Request
}

// NewFakeNode returns a fake node accepting unsigned requests.
func NewFakeNode() *FakeNode {
	takamaka := types.NewTransactionReference("c0de000000000000000000000000000000000000000000000000000000000001")
	return &FakeNode{
		TakamakaCode:       takamaka,
		Manifest:           types.NewStorageReference(types.NewTransactionReference("11a0000000000000000000000000000000000000000000000000000000000002"), 0),
		SignatureAlgorithm: "empty",
		requests:           make(map[string]types.Request),
		responses:          make(map[string]types.Response),
		failures:           make(map[string]error),
		polls:              make(map[string]int),
	}
}

// Submitted returns the requests submitted so far, in order.
func (n *FakeNode) Submitted() []types.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Request(nil), n.submitted...)
}

// Store records a committed transaction as if it had been submitted.
func (n *FakeNode) Store(ref types.TransactionReference, req types.Request, resp types.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := ref.String()
	if req != nil {
		n.requests[key] = req
	}
	n.responses[key] = resp
}

// ServeHTTP serves the node endpoints over HTTP.
func (n *FakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := n.Handle(r.Context(), moka.Call{Method: r.Method, Endpoint: r.URL.Path, Body: body})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(reply.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(reply.Status)
	_, _ = w.Write(reply.Body)
}

// Handle serves one call.
func (n *FakeNode) Handle(ctx context.Context, call moka.Call) (moka.Reply, error) {
	n.Calls.Add(1)
	switch call.Endpoint {
	case moka.EndpointTakamakaCode:
		return okReply(n.TakamakaCode)
	case moka.EndpointManifest:
		return okReply(n.Manifest)
	case moka.EndpointSignatureAlgorithm:
		return okReply(types.SignatureAlgorithmResponse{Algorithm: n.SignatureAlgorithm})
	case moka.EndpointState:
		var ref types.StorageReference
		if err := json.Unmarshal(call.Body, &ref); err != nil {
			return badRequest(err)
		}
		if n.StateFn == nil {
			return okReply(types.State{Updates: []types.Update{}})
		}
		return reply(n.StateFn(ctx, ref))
	case moka.EndpointClassTag:
		var ref types.StorageReference
		if err := json.Unmarshal(call.Body, &ref); err != nil {
			return badRequest(err)
		}
		if n.ClassTagFn == nil {
			return okReply(types.ClassTag{ClassName: "io.takamaka.code.lang.Contract", Jar: n.TakamakaCode})
		}
		return reply(n.ClassTagFn(ctx, ref))
	case moka.EndpointRequest:
		var ref types.TransactionReference
		if err := json.Unmarshal(call.Body, &ref); err != nil {
			return badRequest(err)
		}
		return n.request(ref)
	case moka.EndpointResponse, moka.EndpointPolledResponse:
		n.ResponseCalls.Add(1)
		var ref types.TransactionReference
		if err := json.Unmarshal(call.Body, &ref); err != nil {
			return badRequest(err)
		}
		return n.response(ref)
	}
	mode, kind, ok := moka.ParseSubmitEndpoint(call.Endpoint)
	if !ok {
		return errorReply(&NodeError{Status: http.StatusNotFound, ExceptionClassName: InternalClass, Message: "no endpoint " + call.Endpoint})
	}
	return n.submit(ctx, mode, kind, call.Body)
}

func (n *FakeNode) request(ref types.TransactionReference) (moka.Reply, error) {
	n.mu.Lock()
	req, ok := n.requests[ref.String()]
	n.mu.Unlock()
	if !ok {
		return errorReply(Unknown("unknown transaction reference %s", ref))
	}
	data, err := types.MarshalRequest(req)
	if err != nil {
		return moka.Reply{}, err
	}
	return moka.Reply{Status: http.StatusOK, Body: data}, nil
}

func (n *FakeNode) response(ref types.TransactionReference) (moka.Reply, error) {
	key := ref.String()
	n.mu.Lock()
	resp, known := n.responses[key]
	failure, failed := n.failures[key]
	pending := (known || failed) && n.polls[key] < n.PendingPolls
	if pending {
		n.polls[key]++
	}
	n.mu.Unlock()

	switch {
	case pending || (!known && !failed):
		return errorReply(Unknown("unknown transaction reference %s", ref))
	case failed:
		return errorReply(failure)
	}
	data, err := types.MarshalResponse(resp)
	if err != nil {
		return moka.Reply{}, err
	}
	return moka.Reply{Status: http.StatusOK, Body: data}, nil
}

func (n *FakeNode) submit(ctx context.Context, mode string, kind types.RequestKind, body []byte) (moka.Reply, error) {
	switch mode {
	case moka.ModeAdd:
		n.AddCalls.Add(1)
	case moka.ModePost:
		n.PostCalls.Add(1)
	case moka.ModeRun:
		n.RunCalls.Add(1)
	}

	req := types.NewRequest(kind)
	if err := json.Unmarshal(body, req); err != nil {
		return badRequest(err)
	}
	refOf := n.ReferenceFn
	if refOf == nil {
		refOf = codec.ReferenceOf
	}
	ref, err := refOf(req)
	if err != nil {
		return badRequest(err)
	}
	execute := n.ExecuteFn
	if execute == nil {
		execute = DefaultExecute
	}
	resp, execErr := execute(ctx, mode, req)

	if mode != moka.ModeRun {
		n.mu.Lock()
		key := ref.String()
		n.submitted = append(n.submitted, req)
		n.requests[key] = req
		if execErr != nil {
			n.failures[key] = execErr
		} else {
			n.responses[key] = resp
		}
		n.mu.Unlock()
	}

	if mode == moka.ModePost {
		var rejected *NodeError
		if n.RejectOnPost && errors.As(execErr, &rejected) && rejected.ExceptionClassName == RejectedClass {
			return errorReply(execErr)
		}
		return okReply(ref)
	}
	if execErr != nil {
		return errorReply(execErr)
	}
	return n.outcome(ref, resp)
}

// outcome shapes the reply of add and run from a response.
func (n *FakeNode) outcome(ref types.TransactionReference, resp types.Response) (moka.Reply, error) {
	switch r := resp.(type) {
	case types.FailedResponse:
		class := TransactionClass
		switch r.Kind() {
		case types.ResponseConstructorCallException, types.ResponseMethodCallException:
			class = CodeExecutionClass
		}
		return errorReply(&NodeError{Status: http.StatusBadRequest, ExceptionClassName: class, Message: r.Failure().String()})
	case *types.JarStoreInitialResponse, *types.JarStoreSuccessfulResponse:
		return okReply(ref)
	case *types.GameteCreationResponse:
		return okReply(r.Gamete)
	case *types.ConstructorCallSuccessfulResponse:
		return okReply(r.NewObject)
	case *types.MethodCallSuccessfulResponse:
		return okReply(r.Result)
	case *types.InitializationResponse, *types.VoidMethodCallSuccessfulResponse:
		return moka.Reply{Status: http.StatusOK}, nil
	}
	return errorReply(fmt.Errorf("no outcome for %T", resp))
}

// DefaultExecute succeeds at every request: jars are stored as given,
// gametes and new objects are the first object of their transaction,
// and non-void methods return the zero value of their return type.
func DefaultExecute(_ context.Context, _ string, req types.Request) (types.Response, error) {
	ref, err := codec.ReferenceOf(req)
	if err != nil {
		return nil, err
	}
	created := types.StorageReference{Transaction: ref, Progressive: new(big.Int)}
	gas := types.Gas{CPU: big.NewInt(100), RAM: big.NewInt(50), Storage: big.NewInt(10)}

	switch r := req.(type) {
	case *types.JarStoreInitialRequest:
		return &types.JarStoreInitialResponse{InstrumentedJar: r.Jar, Dependencies: r.Dependencies}, nil
	case *types.GameteCreationRequest, *types.RedGreenGameteCreationRequest:
		return &types.GameteCreationResponse{Gamete: created}, nil
	case *types.InitializationRequest:
		return &types.InitializationResponse{}, nil
	case *types.JarStoreRequest:
		return &types.JarStoreSuccessfulResponse{Gas: gas, InstrumentedJar: r.Jar, Dependencies: r.Dependencies}, nil
	case *types.ConstructorCallRequest:
		return &types.ConstructorCallSuccessfulResponse{Gas: gas, NewObject: created}, nil
	case *types.InstanceMethodCallRequest:
		return methodResponse(r.Method, gas), nil
	case *types.StaticMethodCallRequest:
		return methodResponse(r.Method, gas), nil
	}
	return nil, fmt.Errorf("unsupported request %T", req)
}

func methodResponse(m types.MethodSignature, gas types.Gas) types.Response {
	if m.IsVoid() {
		return &types.VoidMethodCallSuccessfulResponse{Gas: gas}
	}
	return &types.MethodCallSuccessfulResponse{Gas: gas, Result: ZeroValue(m.ReturnType)}
}

// ZeroValue returns the default value of a storage type.
func ZeroValue(t types.StorageType) types.StorageValue {
	switch t {
	case types.BooleanType:
		return types.BooleanValue(false)
	case types.ByteType:
		return types.ByteValue(0)
	case types.CharType:
		return types.CharValue(0)
	case types.ShortType:
		return types.ShortValue(0)
	case types.IntType:
		return types.IntValue(0)
	case types.LongType:
		return types.LongValue(0)
	case types.FloatType:
		return types.FloatValue(0)
	case types.DoubleType:
		return types.DoubleValue(0)
	case types.BigIntegerType:
		return types.BigIntegerValue(new(big.Int))
	case types.StringType:
		return types.StringValue("")
	}
	return types.NullValue()
}

func okReply(v any) (moka.Reply, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return moka.Reply{}, err
	}
	return moka.Reply{Status: http.StatusOK, Body: data}, nil
}

func reply[T any](v T, err error) (moka.Reply, error) {
	if err != nil {
		return errorReply(err)
	}
	return okReply(v)
}

func badRequest(err error) (moka.Reply, error) {
	return errorReply(&NodeError{Status: http.StatusBadRequest, ExceptionClassName: "java.lang.IllegalArgumentException", Message: err.Error()})
}

func errorReply(err error) (moka.Reply, error) {
	ne := &NodeError{Status: http.StatusInternalServerError, ExceptionClassName: InternalClass, Message: err.Error()}
	errors.As(err, &ne)
	if ne.Status == 0 {
		ne.Status = http.StatusInternalServerError
	}
	data, merr := json.Marshal(types.ErrorModel{Message: ne.Message, ExceptionClassName: ne.ExceptionClassName})
	if merr != nil {
		return moka.Reply{}, merr
	}
	return moka.Reply{Status: ne.Status, Body: data}, nil
}
