package local_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/local"
	mokatest "github.com/blockberries/moka/testing"
	"github.com/blockberries/moka/types"
)

func TestLocalConnection_Suite(t *testing.T) {
	mokatest.RunTransportSuite(t, func(t *testing.T, node *mokatest.FakeNode) moka.Transport {
		return local.NewConnection(node)
	})
}

func TestLocalConnection_BackendError(t *testing.T) {
	boom := errors.New("boom")
	conn := local.NewConnection(moka.BackendFunc(func(context.Context, moka.Call) (moka.Reply, error) {
		return moka.Reply{}, boom
	}))
	var ref types.StorageReference
	err := conn.Get(context.Background(), moka.EndpointManifest, &ref)
	te, ok := moka.IsTransport(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, moka.EndpointManifest, te.Endpoint)
	assert.ErrorIs(t, err, boom)
}

func TestLocalConnection_Closed(t *testing.T) {
	node := mokatest.NewFakeNode()
	conn := local.NewConnection(node)
	require.NoError(t, conn.Close())

	var ref types.StorageReference
	assert.ErrorIs(t, conn.Get(context.Background(), moka.EndpointManifest, &ref), moka.ErrClosed)
	assert.Zero(t, node.Calls.Load())
}

func TestLocalConnection_Cancelled(t *testing.T) {
	node := mokatest.NewFakeNode()
	conn := local.NewConnection(node)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ref types.StorageReference
	assert.ErrorIs(t, conn.Get(ctx, moka.EndpointManifest, &ref), context.Canceled)
	assert.Zero(t, node.Calls.Load())
}
