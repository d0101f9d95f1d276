package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/codec"
	"github.com/blockberries/moka/types"
)

// prepare signs req if it is a signed request without signature and a
// signer provider is configured, then checks that req encodes. Both
// steps are local: a failure means nothing was sent.
func (n *Node) prepare(ctx context.Context, req types.Request) error {
	if sr, ok := req.(types.SignedRequest); ok && n.signers != nil && sr.NonInitial().Signature == nil {
		caller := sr.NonInitial().Caller
		signer, err := n.signers.SignerFor(ctx, caller)
		if err != nil {
			return err
		}
		if err := signer.Sign(sr); err != nil {
			return err
		}
	}
	if _, err := codec.EncodeBody(req); err != nil {
		return err
	}
	return nil
}

// submit sends req to the endpoint of mode and returns the raw reply.
func (n *Node) submit(ctx context.Context, mode string, req types.Request) (json.RawMessage, error) {
	if req == nil {
		return nil, &moka.EncodingError{Field: "request", Reason: "nil request"}
	}
	endpoint, ok := moka.SubmitEndpoint(mode, req.Kind())
	if !ok {
		return nil, fmt.Errorf("moka remote: cannot %s a %s request", mode, req.Kind())
	}
	if err := n.prepare(ctx, req); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := n.post(ctx, endpoint, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Add submits req and waits for its outcome, which is decoded into out:
// a TransactionReference for jar stores, a StorageReference for gametes
// and constructor calls, a *StorageValue for method calls. A nil out
// discards the outcome.
func (n *Node) Add(ctx context.Context, req types.Request, out any) error {
	raw, err := n.submit(ctx, moka.ModeAdd, req)
	if err != nil {
		return err
	}
	return decodeOutcome(moka.ModeAdd, req, raw, out)
}

// Run executes a method call request without committing it.
func (n *Node) Run(ctx context.Context, req types.Request, out any) error {
	raw, err := n.submit(ctx, moka.ModeRun, req)
	if err != nil {
		return err
	}
	return decodeOutcome(moka.ModeRun, req, raw, out)
}

// Post submits req and returns the reference the node assigned to it
// without waiting for the outcome.
func (n *Node) Post(ctx context.Context, req types.Request) (types.TransactionReference, error) {
	raw, err := n.submit(ctx, moka.ModePost, req)
	if err != nil {
		return types.TransactionReference{}, err
	}
	endpoint, _ := moka.SubmitEndpoint(moka.ModePost, req.Kind())
	var ref types.TransactionReference
	if err := json.Unmarshal(raw, &ref); err != nil || ref.IsZero() {
		if err == nil {
			err = fmt.Errorf("empty transaction reference")
		}
		return types.TransactionReference{}, &moka.ProtocolError{Endpoint: endpoint, Err: err}
	}
	if local, err := codec.ReferenceOf(req); err == nil && !local.Equal(ref) {
		n.logger.Warn("node computed a different transaction reference",
			zap.Stringer("node", ref),
			zap.Stringer("local", local),
			zap.Stringer("kind", req.Kind()))
	}
	if n.journal != nil {
		if err := n.journal.RecordPosted(ctx, ref, req); err != nil {
			n.logger.Warn("journal write failed", zap.Stringer("reference", ref), zap.Error(err))
		}
	}
	return ref, nil
}

func decodeOutcome(mode string, req types.Request, raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	endpoint, _ := moka.SubmitEndpoint(mode, req.Kind())
	if v, ok := out.(**types.StorageValue); ok {
		*v = nil
		if isEmpty(raw) {
			return nil
		}
		var value types.StorageValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return &moka.ProtocolError{Endpoint: endpoint, Err: err}
		}
		*v = &value
		return nil
	}
	if isEmpty(raw) {
		return &moka.ProtocolError{Endpoint: endpoint, Err: fmt.Errorf("empty reply")}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &moka.ProtocolError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func isEmpty(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// supply returns a supplier resolving ref by polling, converting the
// response with extract.
func supply[T any](n *Node, ref types.TransactionReference, extract func(types.Response) (T, error)) *moka.Supplier[T] {
	return moka.NewSupplier(ref, func(ctx context.Context) (T, error) {
		var zero T
		resp, err := n.GetPolledResponse(ctx, ref)
		if err != nil {
			if _, rejected := moka.IsRejected(err); rejected {
				n.recordOutcome(ctx, ref, nil, err)
			}
			return zero, err
		}
		v, err := outcomeOf(resp, extract)
		n.recordOutcome(ctx, ref, resp, err)
		return v, err
	})
}

func (n *Node) recordOutcome(ctx context.Context, ref types.TransactionReference, resp types.Response, outcome error) {
	if n.journal == nil {
		return
	}
	if err := n.journal.RecordOutcome(ctx, ref, resp, outcome); err != nil {
		n.logger.Warn("journal write failed", zap.Stringer("reference", ref), zap.Error(err))
	}
}

func outcomeOf[T any](resp types.Response, extract func(types.Response) (T, error)) (T, error) {
	if f, failed := resp.(types.FailedResponse); failed {
		var zero T
		return zero, moka.NewTransactionFailedError(f.Failure())
	}
	return extract(resp)
}

func unexpected(resp types.Response) error {
	return &moka.ProtocolError{Endpoint: moka.EndpointResponse, Err: fmt.Errorf("unexpected %s response", resp.Kind())}
}

func jarOutcome(ref types.TransactionReference) func(types.Response) (types.TransactionReference, error) {
	return func(resp types.Response) (types.TransactionReference, error) {
		switch resp.(type) {
		case *types.JarStoreSuccessfulResponse, *types.JarStoreInitialResponse:
			return ref, nil
		}
		return types.TransactionReference{}, unexpected(resp)
	}
}

func objectOutcome(resp types.Response) (types.StorageReference, error) {
	if r, ok := resp.(*types.ConstructorCallSuccessfulResponse); ok {
		return r.NewObject, nil
	}
	return types.StorageReference{}, unexpected(resp)
}

func valueOutcome(resp types.Response) (*types.StorageValue, error) {
	switch r := resp.(type) {
	case *types.MethodCallSuccessfulResponse:
		v := r.Result
		return &v, nil
	case *types.VoidMethodCallSuccessfulResponse:
		return nil, nil
	}
	return nil, unexpected(resp)
}

func (n *Node) AddJarStoreInitialTransaction(ctx context.Context, req *types.JarStoreInitialRequest) (types.TransactionReference, error) {
	var ref types.TransactionReference
	err := n.Add(ctx, req, &ref)
	return ref, err
}

func (n *Node) AddGameteCreationTransaction(ctx context.Context, req *types.GameteCreationRequest) (types.StorageReference, error) {
	var gamete types.StorageReference
	err := n.Add(ctx, req, &gamete)
	return gamete, err
}

func (n *Node) AddRedGreenGameteCreationTransaction(ctx context.Context, req *types.RedGreenGameteCreationRequest) (types.StorageReference, error) {
	var gamete types.StorageReference
	err := n.Add(ctx, req, &gamete)
	return gamete, err
}

func (n *Node) AddInitializationTransaction(ctx context.Context, req *types.InitializationRequest) error {
	return n.Add(ctx, req, nil)
}

func (n *Node) AddJarStoreTransaction(ctx context.Context, req *types.JarStoreRequest) (types.TransactionReference, error) {
	var ref types.TransactionReference
	err := n.Add(ctx, req, &ref)
	return ref, err
}

func (n *Node) AddConstructorCallTransaction(ctx context.Context, req *types.ConstructorCallRequest) (types.StorageReference, error) {
	var object types.StorageReference
	err := n.Add(ctx, req, &object)
	return object, err
}

func (n *Node) AddInstanceMethodCallTransaction(ctx context.Context, req *types.InstanceMethodCallRequest) (*types.StorageValue, error) {
	var v *types.StorageValue
	err := n.Add(ctx, req, &v)
	return v, err
}

func (n *Node) AddStaticMethodCallTransaction(ctx context.Context, req *types.StaticMethodCallRequest) (*types.StorageValue, error) {
	var v *types.StorageValue
	err := n.Add(ctx, req, &v)
	return v, err
}

func (n *Node) RunInstanceMethodCallTransaction(ctx context.Context, req *types.InstanceMethodCallRequest) (*types.StorageValue, error) {
	var v *types.StorageValue
	err := n.Run(ctx, req, &v)
	return v, err
}

func (n *Node) RunStaticMethodCallTransaction(ctx context.Context, req *types.StaticMethodCallRequest) (*types.StorageValue, error) {
	var v *types.StorageValue
	err := n.Run(ctx, req, &v)
	return v, err
}

func (n *Node) PostJarStoreTransaction(ctx context.Context, req *types.JarStoreRequest) (*moka.Supplier[types.TransactionReference], error) {
	ref, err := n.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	return supply(n, ref, jarOutcome(ref)), nil
}

func (n *Node) PostConstructorCallTransaction(ctx context.Context, req *types.ConstructorCallRequest) (*moka.Supplier[types.StorageReference], error) {
	ref, err := n.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	return supply(n, ref, objectOutcome), nil
}

func (n *Node) PostInstanceMethodCallTransaction(ctx context.Context, req *types.InstanceMethodCallRequest) (*moka.Supplier[*types.StorageValue], error) {
	ref, err := n.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	return supply(n, ref, valueOutcome), nil
}

func (n *Node) PostStaticMethodCallTransaction(ctx context.Context, req *types.StaticMethodCallRequest) (*moka.Supplier[*types.StorageValue], error) {
	ref, err := n.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	return supply(n, ref, valueOutcome), nil
}
