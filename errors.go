package moka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blockberries/moka/types"
)

// Exception class names a node reports in its error model. Matching is
// by substring, so both the beans and the thin-client variants of each
// class are recognized.
const (
	RejectedExceptionClass      = "TransactionRejectedException"
	TransactionExceptionClass   = "TransactionException"
	CodeExecutionExceptionClass = "CodeExecutionException"
	NoSuchElementExceptionClass = "NoSuchElementException"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("moka: client closed")

// EncodingError reports a request or value that cannot be put in
// canonical form. It is raised before anything reaches the network.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return "encoding: " + e.Reason
	}
	return fmt.Sprintf("encoding %s: %s", e.Field, e.Reason)
}

// UnknownAlgorithmError reports a signature algorithm name that is not registered.
type UnknownAlgorithmError struct {
	Name string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown signature algorithm %q", e.Name)
}

// TransportError reports a failure to reach the node or to complete an
// exchange with it. Submissions that fail this way are not retried.
type TransportError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TransactionRejectedError reports a request the node refused before
// executing it. Message is the node's message, verbatim.
type TransactionRejectedError struct {
	ClassName string
	Message   string
}

func (e *TransactionRejectedError) Error() string { return e.Message }

// TransactionFailedError reports a transaction whose code raised an
// exception or failed. ClassName and Message describe the cause,
// verbatim. Where is the position in the code when known.
type TransactionFailedError struct {
	ClassName string
	Message   string
	Where     string
}

func (e *TransactionFailedError) Error() string { return e.Message }

// NewTransactionFailedError builds the error for a failed response.
func NewTransactionFailedError(c types.Cause) *TransactionFailedError {
	msg := c.Message
	if msg == "" {
		msg = c.ClassName
	}
	return &TransactionFailedError{ClassName: c.ClassName, Message: msg, Where: c.Where}
}

// NotFoundError reports a reference the node does not know, or not yet.
// Polling treats it as "pending".
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// PollTimeoutError reports that the outcome of a posted transaction was
// still unknown when the polling bound was reached. The transaction may
// still commit; callers may query it again by reference.
type PollTimeoutError struct {
	Reference types.TransactionReference
	Attempts  int
	Elapsed   time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("no response for transaction %s after %d attempts (%s)",
		e.Reference, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// ProtocolError reports a reply that could not be understood: malformed
// JSON or an envelope with an unknown discriminator.
type ProtocolError struct {
	Endpoint string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at %s: %v", e.Endpoint, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RemoteError is a node error whose exception class has no dedicated mapping.
type RemoteError struct {
	Status    int
	ClassName string
	Message   string
}

func (e *RemoteError) Error() string {
	if e.ClassName == "" {
		return fmt.Sprintf("remote error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ClassName, e.Message)
}

// ClassifyRemote maps a node error model onto the error taxonomy.
func ClassifyRemote(status int, m types.ErrorModel) error {
	switch {
	case strings.Contains(m.ExceptionClassName, RejectedExceptionClass):
		return &TransactionRejectedError{ClassName: m.ExceptionClassName, Message: m.Message}
	case strings.Contains(m.ExceptionClassName, TransactionExceptionClass),
		strings.Contains(m.ExceptionClassName, CodeExecutionExceptionClass):
		return &TransactionFailedError{ClassName: m.ExceptionClassName, Message: m.Message}
	case strings.Contains(m.ExceptionClassName, NoSuchElementExceptionClass):
		return &NotFoundError{Message: m.Message}
	}
	return &RemoteError{Status: status, ClassName: m.ExceptionClassName, Message: m.Message}
}

func as[E error](err error) (E, bool) {
	var e E
	if errors.As(err, &e) {
		return e, true
	}
	return e, false
}

// IsEncoding checks whether an error is an EncodingError and returns it.
func IsEncoding(err error) (*EncodingError, bool) { return as[*EncodingError](err) }

// IsUnknownAlgorithm checks whether an error is an UnknownAlgorithmError and returns it.
func IsUnknownAlgorithm(err error) (*UnknownAlgorithmError, bool) {
	return as[*UnknownAlgorithmError](err)
}

// IsTransport checks whether an error is a TransportError and returns it.
func IsTransport(err error) (*TransportError, bool) { return as[*TransportError](err) }

// IsRejected checks whether an error is a TransactionRejectedError and returns it.
func IsRejected(err error) (*TransactionRejectedError, bool) {
	return as[*TransactionRejectedError](err)
}

// IsFailed checks whether an error is a TransactionFailedError and returns it.
func IsFailed(err error) (*TransactionFailedError, bool) { return as[*TransactionFailedError](err) }

// IsNotFound checks whether an error is a NotFoundError and returns it.
func IsNotFound(err error) (*NotFoundError, bool) { return as[*NotFoundError](err) }

// IsPollTimeout checks whether an error is a PollTimeoutError and returns it.
func IsPollTimeout(err error) (*PollTimeoutError, bool) { return as[*PollTimeoutError](err) }

// IsProtocol checks whether an error is a ProtocolError and returns it.
func IsProtocol(err error) (*ProtocolError, bool) { return as[*ProtocolError](err) }

// IsRemote checks whether an error is a RemoteError and returns it.
func IsRemote(err error) (*RemoteError, bool) { return as[*RemoteError](err) }
