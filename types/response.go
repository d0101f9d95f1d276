package types

import (
	"fmt"
	"math/big"
	"strings"
)

// ResponseKind discriminates the transaction response variants.
type ResponseKind uint8

const (
	ResponseJarStoreInitial ResponseKind = iota + 1
	ResponseGameteCreation
	ResponseInitialization
	ResponseJarStoreSuccessful
	ResponseJarStoreFailed
	ResponseConstructorCallSuccessful
	ResponseConstructorCallException
	ResponseConstructorCallFailed
	ResponseMethodCallSuccessful
	ResponseVoidMethodCallSuccessful
	ResponseMethodCallException
	ResponseMethodCallFailed
)

// ResponseKinds lists every response kind.
var ResponseKinds = []ResponseKind{
	ResponseJarStoreInitial, ResponseGameteCreation, ResponseInitialization,
	ResponseJarStoreSuccessful, ResponseJarStoreFailed,
	ResponseConstructorCallSuccessful, ResponseConstructorCallException, ResponseConstructorCallFailed,
	ResponseMethodCallSuccessful, ResponseVoidMethodCallSuccessful, ResponseMethodCallException, ResponseMethodCallFailed,
}

var responseModelNames = [...]string{
	ResponseJarStoreInitial:           "JarStoreInitialTransactionResponseModel",
	ResponseGameteCreation:            "GameteCreationTransactionResponseModel",
	ResponseInitialization:            "InitializationTransactionResponseModel",
	ResponseJarStoreSuccessful:        "JarStoreTransactionSuccessfulResponseModel",
	ResponseJarStoreFailed:            "JarStoreTransactionFailedResponseModel",
	ResponseConstructorCallSuccessful: "ConstructorCallTransactionSuccessfulResponseModel",
	ResponseConstructorCallException:  "ConstructorCallTransactionExceptionResponseModel",
	ResponseConstructorCallFailed:     "ConstructorCallTransactionFailedResponseModel",
	ResponseMethodCallSuccessful:      "MethodCallTransactionSuccessfulResponseModel",
	ResponseVoidMethodCallSuccessful:  "VoidMethodCallTransactionSuccessfulResponseModel",
	ResponseMethodCallException:       "MethodCallTransactionExceptionResponseModel",
	ResponseMethodCallFailed:          "MethodCallTransactionFailedResponseModel",
}

func (k ResponseKind) String() string {
	if int(k) < len(responseModelNames) && responseModelNames[k] != "" {
		return strings.TrimSuffix(responseModelNames[k], "TransactionResponseModel")
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Discriminator is the type name nodes use for this kind in JSON envelopes.
func (k ResponseKind) Discriminator() string {
	if int(k) < len(responseModelNames) && responseModelNames[k] != "" {
		return "io.hotmoka.network.responses." + responseModelNames[k]
	}
	return ""
}

// Response is the outcome of a transaction as stored by the node.
type Response interface {
	Kind() ResponseKind
}

// Gas is the gas consumed by a transaction, split by resource.
type Gas struct {
	CPU     *big.Int
	RAM     *big.Int
	Storage *big.Int
}

// Cause describes why code failed: the class and message of the
// exception, and where it was raised when known. Messages are kept
// verbatim.
type Cause struct {
	ClassName string
	Message   string
	Where     string
}

func (c Cause) String() string {
	s := c.ClassName
	if c.Message != "" {
		s += ": " + c.Message
	}
	if c.Where != "" {
		s += "@" + c.Where
	}
	return s
}

// FailedResponse is implemented by every response whose code raised an
// exception or failed outright.
type FailedResponse interface {
	Response
	Failure() Cause
}

type JarStoreInitialResponse struct {
	InstrumentedJar []byte
	Dependencies    []TransactionReference
}

type GameteCreationResponse struct {
	Updates []Update
	Gamete  StorageReference
}

type InitializationResponse struct{}

type JarStoreSuccessfulResponse struct {
	InstrumentedJar []byte
	Dependencies    []TransactionReference
	Updates         []Update
	Gas             Gas
}

type JarStoreFailedResponse struct {
	Updates       []Update
	Gas           Gas
	GasForPenalty *big.Int
	Cause         Cause
}

type ConstructorCallSuccessfulResponse struct {
	NewObject StorageReference
	Updates   []Update
	Events    []StorageReference
	Gas       Gas
}

// ConstructorCallExceptionResponse reports a checked exception thrown by
// the constructor.
type ConstructorCallExceptionResponse struct {
	Updates []Update
	Events  []StorageReference
	Gas     Gas
	Cause   Cause
}

type ConstructorCallFailedResponse struct {
	Updates       []Update
	Gas           Gas
	GasForPenalty *big.Int
	Cause         Cause
}

type MethodCallSuccessfulResponse struct {
	Result  StorageValue
	Updates []Update
	Events  []StorageReference
	Gas     Gas
}

type VoidMethodCallSuccessfulResponse struct {
	Updates []Update
	Events  []StorageReference
	Gas     Gas
}

// MethodCallExceptionResponse reports a checked exception thrown by the method.
type MethodCallExceptionResponse struct {
	Updates []Update
	Events  []StorageReference
	Gas     Gas
	Cause   Cause
}

type MethodCallFailedResponse struct {
	Updates       []Update
	Gas           Gas
	GasForPenalty *big.Int
	Cause         Cause
}

func (*JarStoreInitialResponse) Kind() ResponseKind {
	return ResponseJarStoreInitial
}

func (*GameteCreationResponse) Kind() ResponseKind {
	return ResponseGameteCreation
}

func (*InitializationResponse) Kind() ResponseKind {
	return ResponseInitialization
}

func (*JarStoreSuccessfulResponse) Kind() ResponseKind {
	return ResponseJarStoreSuccessful
}

func (*JarStoreFailedResponse) Kind() ResponseKind {
	return ResponseJarStoreFailed
}

func (*ConstructorCallSuccessfulResponse) Kind() ResponseKind {
	return ResponseConstructorCallSuccessful
}

func (*ConstructorCallExceptionResponse) Kind() ResponseKind {
	return ResponseConstructorCallException
}

func (*ConstructorCallFailedResponse) Kind() ResponseKind {
	return ResponseConstructorCallFailed
}

func (*MethodCallSuccessfulResponse) Kind() ResponseKind {
	return ResponseMethodCallSuccessful
}

func (*VoidMethodCallSuccessfulResponse) Kind() ResponseKind {
	return ResponseVoidMethodCallSuccessful
}

func (*MethodCallExceptionResponse) Kind() ResponseKind {
	return ResponseMethodCallException
}

func (*MethodCallFailedResponse) Kind() ResponseKind {
	return ResponseMethodCallFailed
}

func (r *JarStoreFailedResponse) Failure() Cause           { return r.Cause }
func (r *ConstructorCallExceptionResponse) Failure() Cause { return r.Cause }
func (r *ConstructorCallFailedResponse) Failure() Cause    { return r.Cause }
func (r *MethodCallExceptionResponse) Failure() Cause      { return r.Cause }
func (r *MethodCallFailedResponse) Failure() Cause         { return r.Cause }

var (
	_ FailedResponse = (*JarStoreFailedResponse)(nil)
	_ FailedResponse = (*ConstructorCallExceptionResponse)(nil)
	_ FailedResponse = (*ConstructorCallFailedResponse)(nil)
	_ FailedResponse = (*MethodCallExceptionResponse)(nil)
	_ FailedResponse = (*MethodCallFailedResponse)(nil)
)

// NewResponse returns an empty response of kind k, or nil for an unknown kind.
func NewResponse(k ResponseKind) Response {
	switch k {
	case ResponseJarStoreInitial:
		return new(JarStoreInitialResponse)
	case ResponseGameteCreation:
		return new(GameteCreationResponse)
	case ResponseInitialization:
		return new(InitializationResponse)
	case ResponseJarStoreSuccessful:
		return new(JarStoreSuccessfulResponse)
	case ResponseJarStoreFailed:
		return new(JarStoreFailedResponse)
	case ResponseConstructorCallSuccessful:
		return new(ConstructorCallSuccessfulResponse)
	case ResponseConstructorCallException:
		return new(ConstructorCallExceptionResponse)
	case ResponseConstructorCallFailed:
		return new(ConstructorCallFailedResponse)
	case ResponseMethodCallSuccessful:
		return new(MethodCallSuccessfulResponse)
	case ResponseVoidMethodCallSuccessful:
		return new(VoidMethodCallSuccessfulResponse)
	case ResponseMethodCallException:
		return new(MethodCallExceptionResponse)
	case ResponseMethodCallFailed:
		return new(MethodCallFailedResponse)
	}
	return nil
}
