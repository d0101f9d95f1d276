// Package moka is a thin client for Hotmoka ledger nodes.
//
// A client builds transaction requests, signs them over their canonical
// byte form, submits them through a [Transport] and learns their
// outcome either synchronously (add, run) or later through a
// [Supplier] (post). Events emitted by the ledger are delivered over a
// separate publish/subscribe connection.
//
// The interfaces in this package describe what a node offers. The
// remote package implements them against a live node; the mokatest
// package provides fakes for tests.
package moka

import (
	"context"

	"github.com/blockberries/moka/types"
)

// Getter reads node state. Every method is safe for concurrent use.
type Getter interface {
	// GetTakamakaCode returns the reference of the jar holding the
	// base Takamaka classes installed in the node.
	GetTakamakaCode(ctx context.Context) (types.TransactionReference, error)

	// GetManifest returns the manifest object of the node.
	GetManifest(ctx context.Context) (types.StorageReference, error)

	// GetState returns the updates describing the current state of object.
	GetState(ctx context.Context, object types.StorageReference) (types.State, error)

	// GetClassTag returns the class of object and the jar defining it.
	GetClassTag(ctx context.Context, object types.StorageReference) (types.ClassTag, error)

	// GetRequest returns the request of a committed transaction.
	GetRequest(ctx context.Context, ref types.TransactionReference) (types.Request, error)

	// GetResponse returns the response of a committed transaction.
	// It fails with a NotFoundError if the node does not know ref yet.
	GetResponse(ctx context.Context, ref types.TransactionReference) (types.Response, error)

	// GetPolledResponse waits for the response of ref, polling the node
	// until it is known or the polling bound is reached. Exceeding the
	// bound yields a PollTimeoutError.
	GetPolledResponse(ctx context.Context, ref types.TransactionReference) (types.Response, error)

	// GetSignatureAlgorithmForRequests returns the name of the algorithm
	// the node expects requests to be signed with.
	GetSignatureAlgorithmForRequests(ctx context.Context) (string, error)
}

// Adder submits transactions and waits for their outcome.
//
// A rejected request yields a TransactionRejectedError. A request whose
// code fails yields a TransactionFailedError carrying the cause class
// and message verbatim. Submissions are never retried.
type Adder interface {
	AddJarStoreInitialTransaction(ctx context.Context, req *types.JarStoreInitialRequest) (types.TransactionReference, error)
	AddGameteCreationTransaction(ctx context.Context, req *types.GameteCreationRequest) (types.StorageReference, error)
	AddRedGreenGameteCreationTransaction(ctx context.Context, req *types.RedGreenGameteCreationRequest) (types.StorageReference, error)
	AddInitializationTransaction(ctx context.Context, req *types.InitializationRequest) error
	AddJarStoreTransaction(ctx context.Context, req *types.JarStoreRequest) (types.TransactionReference, error)
	AddConstructorCallTransaction(ctx context.Context, req *types.ConstructorCallRequest) (types.StorageReference, error)

	// AddInstanceMethodCallTransaction returns the result of the method,
	// or nil for a void method.
	AddInstanceMethodCallTransaction(ctx context.Context, req *types.InstanceMethodCallRequest) (*types.StorageValue, error)
	AddStaticMethodCallTransaction(ctx context.Context, req *types.StaticMethodCallRequest) (*types.StorageValue, error)
}

// Poster submits transactions without waiting. Each returned Supplier
// resolves the outcome later by polling.
type Poster interface {
	PostJarStoreTransaction(ctx context.Context, req *types.JarStoreRequest) (*Supplier[types.TransactionReference], error)
	PostConstructorCallTransaction(ctx context.Context, req *types.ConstructorCallRequest) (*Supplier[types.StorageReference], error)
	PostInstanceMethodCallTransaction(ctx context.Context, req *types.InstanceMethodCallRequest) (*Supplier[*types.StorageValue], error)
	PostStaticMethodCallTransaction(ctx context.Context, req *types.StaticMethodCallRequest) (*Supplier[*types.StorageValue], error)
}

// Runner executes view calls. Their effects are never committed, so
// running is side-effect free on the ledger.
type Runner interface {
	RunInstanceMethodCallTransaction(ctx context.Context, req *types.InstanceMethodCallRequest) (*types.StorageValue, error)
	RunStaticMethodCallTransaction(ctx context.Context, req *types.StaticMethodCallRequest) (*types.StorageValue, error)
}

// EventHandler receives an event and the contract that created it.
type EventHandler func(event, creator types.StorageReference)

// Subscription is an active event subscription.
type Subscription interface {
	// Close stops delivery. No handler invocation starts after Close
	// returns. Close must not be called from within the handler.
	Close() error
}

// EventSource delivers ledger events.
type EventSource interface {
	// SubscribeToEvents delivers events created by creator to handler,
	// or every event when creator is nil. It returns once the
	// subscription has been acknowledged by the node.
	SubscribeToEvents(ctx context.Context, creator *types.StorageReference, handler EventHandler) (Subscription, error)
}

// Node is the full client view of a Hotmoka node.
type Node interface {
	Getter
	Adder
	Poster
	Runner
	EventSource

	// Close releases the transport and the event connection.
	Close() error
}
