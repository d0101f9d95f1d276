package remote

import (
	"context"
	"encoding/json"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

func (n *Node) GetTakamakaCode(ctx context.Context) (types.TransactionReference, error) {
	var ref types.TransactionReference
	err := n.get(ctx, moka.EndpointTakamakaCode, &ref)
	return ref, err
}

func (n *Node) GetManifest(ctx context.Context) (types.StorageReference, error) {
	var ref types.StorageReference
	err := n.get(ctx, moka.EndpointManifest, &ref)
	return ref, err
}

func (n *Node) GetSignatureAlgorithmForRequests(ctx context.Context) (string, error) {
	var resp types.SignatureAlgorithmResponse
	if err := n.get(ctx, moka.EndpointSignatureAlgorithm, &resp); err != nil {
		return "", err
	}
	return resp.Algorithm, nil
}

func (n *Node) GetState(ctx context.Context, object types.StorageReference) (types.State, error) {
	var state types.State
	err := n.post(ctx, moka.EndpointState, object, &state)
	return state, err
}

func (n *Node) GetClassTag(ctx context.Context, object types.StorageReference) (types.ClassTag, error) {
	var tag types.ClassTag
	err := n.post(ctx, moka.EndpointClassTag, object, &tag)
	return tag, err
}

// GetRequest decodes the request envelope by its discriminator.
func (n *Node) GetRequest(ctx context.Context, ref types.TransactionReference) (types.Request, error) {
	var raw json.RawMessage
	if err := n.post(ctx, moka.EndpointRequest, ref, &raw); err != nil {
		return nil, err
	}
	req, err := types.UnmarshalRequest(raw)
	if err != nil {
		return nil, &moka.ProtocolError{Endpoint: moka.EndpointRequest, Err: err}
	}
	return req, nil
}

// GetResponse decodes the response envelope by its discriminator. An
// unknown discriminator is a ProtocolError.
func (n *Node) GetResponse(ctx context.Context, ref types.TransactionReference) (types.Response, error) {
	var raw json.RawMessage
	if err := n.post(ctx, moka.EndpointResponse, ref, &raw); err != nil {
		return nil, err
	}
	resp, err := types.UnmarshalResponse(raw)
	if err != nil {
		return nil, &moka.ProtocolError{Endpoint: moka.EndpointResponse, Err: err}
	}
	return resp, nil
}

// GetPolledResponse polls GetResponse under the node's poll policy.
func (n *Node) GetPolledResponse(ctx context.Context, ref types.TransactionReference) (types.Response, error) {
	return n.poller.Response(ctx, ref, n.GetResponse)
}
