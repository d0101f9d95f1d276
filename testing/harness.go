package mokatest

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/blockberries/moka/poll"
	"github.com/blockberries/moka/remote"
	"github.com/blockberries/moka/types"
)

// ChainID is the chain id of the requests built by this package.
const ChainID = "moka-test"

// Harness serves a FakeNode and a Broker from one HTTP server, the
// broker at /node as a Hotmoka node does, and builds clients for it.
type Harness struct {
	t      *testing.T
	Node   *FakeNode
	Broker *Broker
	Server *httptest.Server
}

// NewHarness starts a fake node. It is stopped when the test ends.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	h := &Harness{t: t, Node: NewFakeNode(), Broker: NewBroker()}
	mux := http.NewServeMux()
	mux.Handle("/node", h.Broker)
	mux.Handle("/", h.Node)
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Server.Close)
	return h
}

// URL returns the base URL of the node.
func (h *Harness) URL() string { return h.Server.URL }

// EventsURL returns the WebSocket URL of the broker.
func (h *Harness) EventsURL() string {
	return "ws" + strings.TrimPrefix(h.Server.URL, "http") + "/node"
}

// Client returns a REST client of the node that polls with
// FastPolicy and logs to the test. It is closed when the test ends.
func (h *Harness) Client(opts ...remote.Option) *remote.Node {
	h.t.Helper()
	base := []remote.Option{
		remote.WithLogger(zaptest.NewLogger(h.t)),
		remote.WithPollPolicy(FastPolicy()),
	}
	n, err := remote.Dial(h.URL(), append(base, opts...)...)
	if err != nil {
		h.t.Fatalf("remote.Dial(%s) failed: %v", h.URL(), err)
	}
	h.t.Cleanup(func() { _ = n.Close() })
	return n
}

// InstallJar adds a jar store transaction paid by caller and returns
// its reference.
func (h *Harness) InstallJar(client *remote.Node, caller types.StorageReference, nonce int64, jar []byte) types.TransactionReference {
	h.t.Helper()
	ref, err := client.AddJarStoreTransaction(context.Background(), NewJarStore(caller, nonce, jar))
	if err != nil {
		h.t.Fatalf("AddJarStoreTransaction failed: %v", err)
	}
	return ref
}

// --- Helper Factories ---

// FastPolicy polls every few milliseconds, for tests.
func FastPolicy() poll.Policy {
	return poll.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      1.5,
		MaxAttempts:     50,
	}
}

// Account returns the i-th object of a fixed transaction, to be used
// as caller or receiver.
func Account(i int64) types.StorageReference {
	return types.NewStorageReference(types.NewTransactionReference("acc0000000000000000000000000000000000000000000000000000000000001"), i)
}

// Classpath is the classpath of the requests built by this package.
func Classpath() types.TransactionReference {
	return types.NewTransactionReference("c0de000000000000000000000000000000000000000000000000000000000001")
}

// NonInitial returns the common fields of a request paid by caller.
func NonInitial(caller types.StorageReference, nonce int64) types.NonInitialRequest {
	return types.NonInitialRequest{
		Caller:    caller,
		Nonce:     big.NewInt(nonce),
		Classpath: Classpath(),
		GasLimit:  big.NewInt(100_000),
		GasPrice:  big.NewInt(1),
		ChainID:   ChainID,
	}
}

// NewJarStore builds an unsigned jar store request.
func NewJarStore(caller types.StorageReference, nonce int64, jar []byte) *types.JarStoreRequest {
	return &types.JarStoreRequest{
		NonInitialRequest: NonInitial(caller, nonce),
		Jar:               jar,
		Dependencies:      []types.TransactionReference{Classpath()},
	}
}

// NewConstructorCall builds an unsigned constructor call request.
func NewConstructorCall(caller types.StorageReference, nonce int64, c types.ConstructorSignature, actuals ...types.StorageValue) *types.ConstructorCallRequest {
	return &types.ConstructorCallRequest{NonInitialRequest: NonInitial(caller, nonce), Constructor: c, Actuals: actuals}
}

// NewInstanceCall builds an unsigned instance method call request.
func NewInstanceCall(caller types.StorageReference, nonce int64, receiver types.StorageReference, m types.MethodSignature, actuals ...types.StorageValue) *types.InstanceMethodCallRequest {
	return &types.InstanceMethodCallRequest{NonInitialRequest: NonInitial(caller, nonce), Method: m, Actuals: actuals, Receiver: receiver}
}

// NewStaticCall builds an unsigned static method call request.
func NewStaticCall(caller types.StorageReference, nonce int64, m types.MethodSignature, actuals ...types.StorageValue) *types.StaticMethodCallRequest {
	return &types.StaticMethodCallRequest{NonInitialRequest: NonInitial(caller, nonce), Method: m, Actuals: actuals}
}
