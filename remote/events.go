package remote

import (
	"context"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

func (n *Node) SubscribeToEvents(ctx context.Context, creator *types.StorageReference, handler moka.EventHandler) (moka.Subscription, error) {
	if n.events == nil {
		return nil, ErrNoEvents
	}
	return n.events.SubscribeToEvents(ctx, creator, handler)
}

// PublishEvent asks the node to forward event to the subscribers of
// the event topic.
func (n *Node) PublishEvent(ctx context.Context, event, creator types.StorageReference) error {
	if n.events == nil {
		return ErrNoEvents
	}
	return n.events.Publish(ctx, types.Event{Event: event, Creator: creator})
}
