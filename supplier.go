package moka

import (
	"context"
	"errors"

	"github.com/blockberries/moka/types"
)

// Supplier is the handle returned by a post operation. It knows the
// reference of the submitted request and resolves its outcome on
// demand.
//
// At most one resolution runs at a time. A terminal outcome (a value,
// a rejection, a failure) is cached and returned by every later Get
// without contacting the node again. Indeterminate outcomes (poll
// timeout, cancellation, transport failure) are not cached, so Get
// may be called again to keep waiting.
type Supplier[T any] struct {
	reference types.TransactionReference
	resolve   func(context.Context) (T, error)

	// sem guards done, value and err, and serializes resolutions.
	sem   chan struct{}
	done  bool
	value T
	err   error
}

// NewSupplier returns a supplier for the request at ref whose outcome
// is computed by resolve.
func NewSupplier[T any](ref types.TransactionReference, resolve func(context.Context) (T, error)) *Supplier[T] {
	return &Supplier[T]{reference: ref, resolve: resolve, sem: make(chan struct{}, 1)}
}

// ReferenceOfRequest returns the reference of the submitted request.
func (s *Supplier[T]) ReferenceOfRequest() types.TransactionReference { return s.reference }

// Get waits for the outcome of the transaction.
func (s *Supplier[T]) Get(ctx context.Context) (T, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	defer func() { <-s.sem }()

	if s.done {
		return s.value, s.err
	}
	v, err := s.resolve(ctx)
	if isTerminal(err) {
		s.done, s.value, s.err = true, v, err
	}
	return v, err
}

func isTerminal(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := IsPollTimeout(err); ok {
		return false
	}
	if _, ok := IsTransport(err); ok {
		return false
	}
	return true
}
