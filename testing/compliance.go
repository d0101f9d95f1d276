package mokatest

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/codec"
	"github.com/blockberries/moka/types"
)

// TransportFactory returns a transport reaching node.
type TransportFactory func(t *testing.T, node *FakeNode) moka.Transport

// RunTransportSuite runs a standard conformance suite against a
// moka.Transport implementation, checking that JSON bodies, statuses
// and node errors survive the trip.
//
// The factory is called with a fresh node for each test.
func RunTransportSuite(t *testing.T, factory TransportFactory) {
	t.Helper()

	open := func(t *testing.T) (*FakeNode, moka.Transport) {
		t.Helper()
		node := NewFakeNode()
		tr := factory(t, node)
		t.Cleanup(func() { _ = tr.Close() })
		return node, tr
	}

	t.Run("get", func(t *testing.T) {
		node, tr := open(t)
		var manifest types.StorageReference
		if err := tr.Get(context.Background(), moka.EndpointManifest, &manifest); err != nil {
			t.Fatalf("get manifest: %v", err)
		}
		if !manifest.Equal(node.Manifest) {
			t.Errorf("manifest = %s, want %s", manifest, node.Manifest)
		}
		var alg types.SignatureAlgorithmResponse
		if err := tr.Get(context.Background(), moka.EndpointSignatureAlgorithm, &alg); err != nil {
			t.Fatalf("get signature algorithm: %v", err)
		}
		if alg.Algorithm != node.SignatureAlgorithm {
			t.Errorf("algorithm = %q, want %q", alg.Algorithm, node.SignatureAlgorithm)
		}
	})

	t.Run("post_body", func(t *testing.T) {
		node, tr := open(t)
		var seen types.StorageReference
		node.ClassTagFn = func(_ context.Context, object types.StorageReference) (types.ClassTag, error) {
			seen = object
			return types.ClassTag{ClassName: "io.hotmoka.Counter", Jar: node.TakamakaCode}, nil
		}
		var tag types.ClassTag
		if err := tr.Post(context.Background(), moka.EndpointClassTag, Account(3), &tag); err != nil {
			t.Fatalf("get class tag: %v", err)
		}
		if !seen.Equal(Account(3)) {
			t.Errorf("node saw %s, want %s", seen, Account(3))
		}
		if tag.ClassName != "io.hotmoka.Counter" {
			t.Errorf("class = %q", tag.ClassName)
		}
	})

	t.Run("submission", func(t *testing.T) {
		node, tr := open(t)
		req := NewJarStore(Account(0), 1, []byte("jar"))
		endpoint, _ := moka.SubmitEndpoint(moka.ModeAdd, req.Kind())
		var ref types.TransactionReference
		if err := tr.Post(context.Background(), endpoint, req, &ref); err != nil {
			t.Fatalf("add jar store: %v", err)
		}
		want, err := codec.ReferenceOf(req)
		if err != nil {
			t.Fatal(err)
		}
		if !ref.Equal(want) {
			t.Errorf("reference = %s, want %s", ref, want)
		}
		if got := node.AddCalls.Load(); got != 1 {
			t.Errorf("add calls = %d, want 1", got)
		}
	})

	t.Run("empty_reply", func(t *testing.T) {
		_, tr := open(t)
		req := NewInstanceCall(Account(0), 1, Account(1), types.NewVoidMethodSignature("io.hotmoka.Counter", "reset"))
		endpoint, _ := moka.SubmitEndpoint(moka.ModeAdd, req.Kind())
		var raw json.RawMessage
		if err := tr.Post(context.Background(), endpoint, req, &raw); err != nil {
			t.Fatalf("add void call: %v", err)
		}
		if len(raw) != 0 && string(raw) != "null" {
			t.Errorf("void call replied %s", raw)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		_, tr := open(t)
		var raw json.RawMessage
		err := tr.Post(context.Background(), moka.EndpointResponse, types.NewTransactionReference("ff"), &raw)
		if _, ok := moka.IsNotFound(err); !ok {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		node, tr := open(t)
		node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
			return nil, Rejected("unknown caller")
		}
		req := NewJarStore(Account(0), 1, []byte("jar"))
		endpoint, _ := moka.SubmitEndpoint(moka.ModeAdd, req.Kind())
		err := tr.Post(context.Background(), endpoint, req, nil)
		rej, ok := moka.IsRejected(err)
		if !ok {
			t.Fatalf("expected TransactionRejectedError, got %v", err)
		}
		if rej.Message != "unknown caller" {
			t.Errorf("message = %q", rej.Message)
		}
	})

	t.Run("failed", func(t *testing.T) {
		node, tr := open(t)
		cause := types.Cause{ClassName: "java.lang.ArithmeticException", Message: "/ by zero", Where: "Math.java:4"}
		node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
			return &types.MethodCallFailedResponse{GasForPenalty: big.NewInt(0), Cause: cause}, nil
		}
		req := NewStaticCall(Account(0), 1, types.NewMethodSignature("io.hotmoka.Math", "div", types.IntType))
		endpoint, _ := moka.SubmitEndpoint(moka.ModeAdd, req.Kind())
		err := tr.Post(context.Background(), endpoint, req, nil)
		failed, ok := moka.IsFailed(err)
		if !ok {
			t.Fatalf("expected TransactionFailedError, got %v", err)
		}
		if failed.Message != cause.String() {
			t.Errorf("message = %q, want %q", failed.Message, cause.String())
		}
	})

	t.Run("unknown_endpoint", func(t *testing.T) {
		_, tr := open(t)
		err := tr.Get(context.Background(), "/get/nothing", nil)
		if _, ok := moka.IsRemote(err); !ok {
			t.Fatalf("expected RemoteError, got %v", err)
		}
	})

	t.Run("concurrent", func(t *testing.T) {
		node, tr := open(t)
		const n = 16
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var code types.TransactionReference
				if err := tr.Get(context.Background(), moka.EndpointTakamakaCode, &code); err != nil {
					errs <- err
					return
				}
				if !code.Equal(node.TakamakaCode) {
					errs <- &moka.ProtocolError{Endpoint: moka.EndpointTakamakaCode}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
		if got := node.Calls.Load(); got != n {
			t.Errorf("calls = %d, want %d", got, n)
		}
	})
}
