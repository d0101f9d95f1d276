package remote_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/codec"
	"github.com/blockberries/moka/local"
	"github.com/blockberries/moka/poll"
	"github.com/blockberries/moka/remote"
	"github.com/blockberries/moka/rest"
	"github.com/blockberries/moka/signature"
	mokatest "github.com/blockberries/moka/testing"
	"github.com/blockberries/moka/types"
)

var (
	caller   = mokatest.Account(0)
	receiver = mokatest.Account(1)
	nonceOf  = types.NewMethodSignature("io.takamaka.code.lang.Account", "nonce", types.BigIntegerType)
	setter   = types.NewVoidMethodSignature("io.hotmoka.Counter", "set", types.IntType)
)

func TestGetters(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	ctx := context.Background()

	code, err := n.GetTakamakaCode(ctx)
	require.NoError(t, err)
	assert.True(t, code.Equal(h.Node.TakamakaCode))

	manifest, err := n.GetManifest(ctx)
	require.NoError(t, err)
	assert.True(t, manifest.Equal(h.Node.Manifest))

	alg, err := n.GetSignatureAlgorithmForRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, "empty", alg)

	h.Node.StateFn = func(_ context.Context, object types.StorageReference) (types.State, error) {
		return types.State{Updates: []types.Update{
			types.ClassTagUpdate(object, "io.hotmoka.Counter", code),
			types.FieldUpdate(object, types.FieldSignature{DefiningClass: "io.hotmoka.Counter", Name: "count", Type: types.IntType}, types.IntValue(3)),
		}}, nil
	}
	state, err := n.GetState(ctx, receiver)
	require.NoError(t, err)
	require.Len(t, state.Updates, 2)
	assert.True(t, state.Updates[0].IsClassTag())
	assert.True(t, state.Updates[1].Value.Equal(types.IntValue(3)))

	tag, err := n.GetClassTag(ctx, receiver)
	require.NoError(t, err)
	assert.Equal(t, "io.takamaka.code.lang.Contract", tag.ClassName)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	ref := types.NewTransactionReference("dead")

	_, err := n.GetResponse(context.Background(), ref)
	nf, ok := moka.IsNotFound(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "unknown transaction reference dead", nf.Message)

	_, err = n.GetRequest(context.Background(), ref)
	_, ok = moka.IsNotFound(err)
	assert.True(t, ok)
}

func TestAddJarStore(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	req := mokatest.NewJarStore(caller, 1, []byte("jar"))

	ref, err := n.AddJarStoreTransaction(context.Background(), req)
	require.NoError(t, err)
	want, err := codec.ReferenceOf(req)
	require.NoError(t, err)
	assert.True(t, want.Equal(ref))

	got, err := n.GetRequest(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("jar"), got.(*types.JarStoreRequest).Jar)

	resp, err := n.GetResponse(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, types.ResponseJarStoreSuccessful, resp.Kind())
}

func TestAddInitialTransactions(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	ctx := context.Background()

	jar, err := n.AddJarStoreInitialTransaction(ctx, &types.JarStoreInitialRequest{Jar: []byte("base")})
	require.NoError(t, err)
	assert.False(t, jar.IsZero())

	gamete, err := n.AddGameteCreationTransaction(ctx, &types.GameteCreationRequest{
		Classpath: jar, InitialAmount: big.NewInt(1_000_000), PublicKey: "key",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), gamete.Progressive.Int64())

	_, err = n.AddRedGreenGameteCreationTransaction(ctx, &types.RedGreenGameteCreationRequest{
		Classpath: jar, InitialAmount: big.NewInt(1), RedInitialAmount: big.NewInt(2), PublicKey: "key",
	})
	require.NoError(t, err)

	require.NoError(t, n.AddInitializationTransaction(ctx, &types.InitializationRequest{Classpath: jar, Manifest: gamete}))
	assert.EqualValues(t, 4, h.Node.AddCalls.Load())
}

func TestAddMethodCalls(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	ctx := context.Background()

	v, err := n.AddInstanceMethodCallTransaction(ctx, mokatest.NewInstanceCall(caller, 1, receiver, nonceOf))
	require.NoError(t, err)
	require.NotNil(t, v)
	b, ok := v.BigInt()
	require.True(t, ok)
	assert.Zero(t, b.Sign())

	v, err = n.AddInstanceMethodCallTransaction(ctx, mokatest.NewInstanceCall(caller, 2, receiver, setter, types.IntValue(5)))
	require.NoError(t, err)
	assert.Nil(t, v)

	static := types.NewMethodSignature("io.hotmoka.Math", "answer", types.IntType)
	v, err = n.AddStaticMethodCallTransaction(ctx, mokatest.NewStaticCall(caller, 3, static))
	require.NoError(t, err)
	require.NotNil(t, v)

	object, err := n.AddConstructorCallTransaction(ctx, mokatest.NewConstructorCall(caller, 4, types.NewConstructorSignature("io.hotmoka.Counter")))
	require.NoError(t, err)
	assert.False(t, object.Transaction.IsZero())
}

func TestRunDoesNotCommit(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	h.Node.ExecuteFn = func(_ context.Context, mode string, _ types.Request) (types.Response, error) {
		assert.Equal(t, moka.ModeRun, mode)
		return &types.MethodCallSuccessfulResponse{Result: types.IntValue(42)}, nil
	}
	req := mokatest.NewInstanceCall(caller, 0, receiver, types.NewMethodSignature("io.hotmoka.Counter", "get", types.IntType))

	v, err := n.RunInstanceMethodCallTransaction(context.Background(), req)
	require.NoError(t, err)
	i, _ := v.Int64()
	assert.EqualValues(t, 42, i)

	_, err = n.RunStaticMethodCallTransaction(context.Background(), mokatest.NewStaticCall(caller, 0, nonceOf))
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.Node.RunCalls.Load())
	assert.Empty(t, h.Node.Submitted())
}

func TestAddRejected(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	h.Node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
		return nil, mokatest.Rejected("incorrect nonce: the required nonce is 7")
	}
	_, err := n.AddJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	rej, ok := moka.IsRejected(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "incorrect nonce: the required nonce is 7", rej.Message)
	assert.Equal(t, mokatest.RejectedClass, rej.ClassName)
}

func TestAddFailed(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	cause := types.Cause{ClassName: "io.takamaka.code.lang.RequirementViolationException", Message: "not enough coins", Where: "Counter.java:12"}
	h.Node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
		return &types.MethodCallExceptionResponse{Cause: cause}, nil
	}
	_, err := n.AddInstanceMethodCallTransaction(context.Background(), mokatest.NewInstanceCall(caller, 1, receiver, setter, types.IntValue(1)))
	failed, ok := moka.IsFailed(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, mokatest.CodeExecutionClass, failed.ClassName)
	assert.Equal(t, cause.String(), failed.Message)
}

func TestLocalErrorsNeverReachTheNetwork(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()

	bad := mokatest.NewJarStore(caller, 1, []byte("jar"))
	bad.Nonce = big.NewInt(-1)
	_, err := n.AddJarStoreTransaction(context.Background(), bad)
	_, ok := moka.IsEncoding(err)
	assert.True(t, ok, "got %v", err)

	signed := h.Client(remote.WithSigners(signature.ProviderFunc(func(context.Context, types.StorageReference) (*signature.Signer, error) {
		return signature.NewSigner("rsa", nil)
	})))
	_, err = signed.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	_, ok = moka.IsUnknownAlgorithm(err)
	assert.True(t, ok, "got %v", err)

	assert.Zero(t, h.Node.Calls.Load())
}

func TestSigningOnSubmit(t *testing.T) {
	h := mokatest.NewHarness(t)
	seed := make([]byte, 32)
	signer, err := signature.NewSigner("ed25519", seed)
	require.NoError(t, err)
	n := h.Client(remote.WithSigners(signature.Single(signer)))

	req := mokatest.NewJarStore(caller, 1, []byte("jar"))
	_, err = n.AddJarStoreTransaction(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, req.Signature, 64)

	body, err := codec.EncodeBody(req)
	require.NoError(t, err)
	want, err := signer.SignBytes(body)
	require.NoError(t, err)
	assert.Equal(t, want, req.Signature)

	submitted := h.Node.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, req.Signature, submitted[0].(*types.JarStoreRequest).Signature)

	// An already signed request is left untouched.
	presigned := mokatest.NewJarStore(caller, 2, []byte("jar"))
	presigned.Signature = []byte{9}
	_, err = n.AddJarStoreTransaction(context.Background(), presigned)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, presigned.Signature)
}

func TestPostAndPoll(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.PendingPolls = 3
	n := h.Client()

	sup, err := n.PostInstanceMethodCallTransaction(context.Background(), mokatest.NewInstanceCall(caller, 1, receiver, nonceOf))
	require.NoError(t, err)
	want, err := codec.ReferenceOf(mokatest.NewInstanceCall(caller, 1, receiver, nonceOf))
	require.NoError(t, err)
	assert.True(t, want.Equal(sup.ReferenceOfRequest()))
	assert.Zero(t, h.Node.ResponseCalls.Load())

	v, err := sup.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.EqualValues(t, 4, h.Node.ResponseCalls.Load())

	again, err := sup.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, v, again)
	assert.EqualValues(t, 4, h.Node.ResponseCalls.Load())
	assert.EqualValues(t, 1, h.Node.PostCalls.Load())
}

func TestPostOutcomes(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	ctx := context.Background()

	jarReq := mokatest.NewJarStore(caller, 1, []byte("jar"))
	jarSup, err := n.PostJarStoreTransaction(ctx, jarReq)
	require.NoError(t, err)
	jar, err := jarSup.Get(ctx)
	require.NoError(t, err)
	assert.True(t, jar.Equal(jarSup.ReferenceOfRequest()))

	objSup, err := n.PostConstructorCallTransaction(ctx, mokatest.NewConstructorCall(caller, 2, types.NewConstructorSignature("io.hotmoka.Counter")))
	require.NoError(t, err)
	obj, err := objSup.Get(ctx)
	require.NoError(t, err)
	assert.True(t, obj.Transaction.Equal(objSup.ReferenceOfRequest()))

	voidSup, err := n.PostStaticMethodCallTransaction(ctx, mokatest.NewStaticCall(caller, 3, types.NewVoidMethodSignature("io.hotmoka.Log", "ping")))
	require.NoError(t, err)
	v, err := voidSup.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPostRejectedIsCached(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	h.Node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
		return nil, mokatest.Rejected("caller has not enough funds to buy 100000 units of gas")
	}

	sup, err := n.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	require.NoError(t, err)
	_, err = sup.Get(context.Background())
	_, ok := moka.IsRejected(err)
	require.True(t, ok, "got %v", err)
	calls := h.Node.ResponseCalls.Load()
	assert.EqualValues(t, 1, calls)

	_, again := sup.Get(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, calls, h.Node.ResponseCalls.Load())
}

func TestPostRejectedAtSubmission(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.RejectOnPost = true
	h.Node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
		return nil, mokatest.Rejected("illegal classpath")
	}
	n := h.Client()
	sup, err := n.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	assert.Nil(t, sup)
	_, ok := moka.IsRejected(err)
	assert.True(t, ok, "got %v", err)
}

func TestPostFailed(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.PendingPolls = 1
	n := h.Client()
	cause := types.Cause{ClassName: "io.takamaka.code.lang.OutOfGasError", Message: "out of gas"}
	h.Node.ExecuteFn = func(context.Context, string, types.Request) (types.Response, error) {
		return &types.ConstructorCallFailedResponse{GasForPenalty: big.NewInt(1), Cause: cause}, nil
	}
	sup, err := n.PostConstructorCallTransaction(context.Background(), mokatest.NewConstructorCall(caller, 1, types.NewConstructorSignature("io.hotmoka.Counter")))
	require.NoError(t, err)
	_, err = sup.Get(context.Background())
	failed, ok := moka.IsFailed(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "io.takamaka.code.lang.OutOfGasError", failed.ClassName)
	assert.Equal(t, "out of gas", failed.Message)
}

func TestPollTimeoutThenRequery(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.PendingPolls = 10
	policy := mokatest.FastPolicy()
	policy.MaxAttempts = 3
	n := h.Client(remote.WithPollPolicy(policy))

	sup, err := n.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	require.NoError(t, err)

	_, err = sup.Get(context.Background())
	pt, ok := moka.IsPollTimeout(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 3, pt.Attempts)
	assert.True(t, pt.Reference.Equal(sup.ReferenceOfRequest()))

	// Not cached: later calls keep polling and eventually succeed.
	var ref types.TransactionReference
	for i := 0; i < 4; i++ {
		if ref, err = sup.Get(context.Background()); err == nil {
			break
		}
	}
	require.NoError(t, err)
	assert.True(t, ref.Equal(sup.ReferenceOfRequest()))
}

func TestAddConstructorCallReturnsObject(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()

	req := mokatest.NewConstructorCall(caller, 3,
		types.NewConstructorSignature("io.takamaka.code.lang.ExternallyOwnedAccount", types.BigIntegerType, types.StringType),
		types.BigIntegerValue(big.NewInt(100_000)), types.StringValue("pub"))
	req.GasLimit = big.NewInt(500_000)
	req.GasPrice = big.NewInt(1)

	obj, err := n.AddConstructorCallTransaction(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, len(obj.Transaction.Hash), 10)
	assert.EqualValues(t, 1, h.Node.AddCalls.Load())
}

func TestGetResponseOfRejectedPost(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.ExecuteFn = func(ctx context.Context, mode string, req types.Request) (types.Response, error) {
		if r, ok := req.(*types.JarStoreRequest); ok && !r.Classpath.Equal(mokatest.Classpath()) {
			return nil, mokatest.Rejected("io.hotmoka.nodes.IncompleteClasspathError: cannot find %s", r.Classpath)
		}
		return mokatest.DefaultExecute(ctx, mode, req)
	}
	n := h.Client()

	req := mokatest.NewJarStore(caller, 1, []byte("jar"))
	req.Classpath = types.NewTransactionReference("bad0000000000000000000000000000000000000000000000000000000000bad")
	sup, err := n.PostJarStoreTransaction(context.Background(), req)
	require.NoError(t, err)

	_, err = n.GetResponse(context.Background(), sup.ReferenceOfRequest())
	rejected, ok := moka.IsRejected(err)
	require.True(t, ok, "got %v", err)
	assert.Contains(t, rejected.Message, "IncompleteClasspathError")
}

// countingTransport counts response polls as they leave the client, so a
// poll still being served when the caller gives up is already counted.
type countingTransport struct {
	moka.Transport
	polls atomic.Int64
}

func (c *countingTransport) Post(ctx context.Context, endpoint string, in, out any) error {
	if endpoint == moka.EndpointResponse {
		c.polls.Add(1)
	}
	return c.Transport.Post(ctx, endpoint, in, out)
}

func TestPollCancellation(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.PendingPolls = 1 << 20
	policy := mokatest.FastPolicy()
	policy.MaxAttempts = 0
	policy.Timeout = time.Minute

	tr, err := rest.New(h.URL())
	require.NoError(t, err)
	counting := &countingTransport{Transport: tr}
	n, err := remote.New(counting, remote.WithPollPolicy(policy))
	require.NoError(t, err)
	defer n.Close()

	sup, err := n.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = sup.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	polls := counting.polls.Load()
	assert.Positive(t, polls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, counting.polls.Load())
}

func TestConcurrentSuppliers(t *testing.T) {
	h := mokatest.NewHarness(t)
	h.Node.PendingPolls = 2
	n := h.Client()

	const count = 10
	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(nonce int64) {
			defer wg.Done()
			sup, err := n.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, nonce, []byte("jar")))
			if !assert.NoError(t, err) {
				return
			}
			if _, err := sup.Get(context.Background()); assert.NoError(t, err) {
				ok.Add(1)
			}
		}(int64(i))
	}
	wg.Wait()
	assert.EqualValues(t, count, ok.Load())
	assert.EqualValues(t, count, h.Node.PostCalls.Load())
}

func TestReferenceDriftIsTolerated(t *testing.T) {
	h := mokatest.NewHarness(t)
	other := types.NewTransactionReference("0123")
	h.Node.ReferenceFn = func(types.Request) (types.TransactionReference, error) { return other, nil }
	n := h.Client()

	ref, err := n.Post(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	require.NoError(t, err)
	assert.True(t, ref.Equal(other))
}

func TestCannotPostInitialRequests(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	_, err := n.Post(context.Background(), &types.JarStoreInitialRequest{Jar: []byte("x")})
	require.Error(t, err)
	assert.Zero(t, h.Node.Calls.Load())
}

type memoryJournal struct {
	mu       sync.Mutex
	posted   []types.TransactionReference
	outcomes map[string]error
}

func (j *memoryJournal) RecordPosted(_ context.Context, ref types.TransactionReference, _ types.Request) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.posted = append(j.posted, ref)
	return nil
}

func (j *memoryJournal) RecordOutcome(_ context.Context, ref types.TransactionReference, _ types.Response, outcome error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.outcomes == nil {
		j.outcomes = make(map[string]error)
	}
	j.outcomes[ref.String()] = outcome
	return nil
}

func TestJournal(t *testing.T) {
	h := mokatest.NewHarness(t)
	j := &memoryJournal{}
	n := h.Client(remote.WithJournal(j))

	sup, err := n.PostJarStoreTransaction(context.Background(), mokatest.NewJarStore(caller, 1, []byte("jar")))
	require.NoError(t, err)
	_, err = sup.Get(context.Background())
	require.NoError(t, err)

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.posted, 1)
	outcome, ok := j.outcomes[sup.ReferenceOfRequest().String()]
	require.True(t, ok)
	assert.NoError(t, outcome)
}

func TestEvents(t *testing.T) {
	h := mokatest.NewHarness(t)
	n := h.Client()
	ctx := context.Background()

	event := mokatest.Account(7)
	got := make(chan types.StorageReference, 1)
	sub, err := n.SubscribeToEvents(ctx, &receiver, func(e, creator types.StorageReference) {
		assert.True(t, creator.Equal(receiver))
		got <- e
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, n.PublishEvent(ctx, mokatest.Account(8), caller))
	require.NoError(t, n.PublishEvent(ctx, event, receiver))
	select {
	case e := <-got:
		assert.True(t, e.Equal(event))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNoEvents(t *testing.T) {
	h := mokatest.NewHarness(t)
	n, err := remote.New(local.NewConnection(h.Node))
	require.NoError(t, err)
	defer n.Close()
	_, err = n.SubscribeToEvents(context.Background(), nil, func(_, _ types.StorageReference) {})
	assert.True(t, errors.Is(err, remote.ErrNoEvents))
}

func TestEventsURL(t *testing.T) {
	u, err := remote.EventsURL("https://node.example:8080/")
	require.NoError(t, err)
	assert.Equal(t, "wss://node.example:8080/node", u)
	_, err = remote.EventsURL("ftp://x")
	assert.Error(t, err)
}

func TestInvalidPollPolicy(t *testing.T) {
	h := mokatest.NewHarness(t)
	_, err := remote.Dial(h.URL(), remote.WithPollPolicy(poll.Policy{}))
	assert.Error(t, err)
}
