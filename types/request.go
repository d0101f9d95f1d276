package types

import (
	"fmt"
	"math/big"
)

// RequestKind discriminates the transaction request variants.
type RequestKind uint8

const (
	RequestJarStoreInitial RequestKind = iota + 1
	RequestGameteCreation
	RequestRedGreenGameteCreation
	RequestInitialization
	RequestJarStore
	RequestConstructorCall
	RequestInstanceMethodCall
	RequestStaticMethodCall
)

// RequestKinds lists every request kind.
var RequestKinds = []RequestKind{
	RequestJarStoreInitial, RequestGameteCreation, RequestRedGreenGameteCreation, RequestInitialization,
	RequestJarStore, RequestConstructorCall, RequestInstanceMethodCall, RequestStaticMethodCall,
}

var requestKindNames = [...]string{
	RequestJarStoreInitial:        "JarStoreInitial",
	RequestGameteCreation:         "GameteCreation",
	RequestRedGreenGameteCreation: "RedGreenGameteCreation",
	RequestInitialization:         "Initialization",
	RequestJarStore:               "JarStore",
	RequestConstructorCall:        "ConstructorCall",
	RequestInstanceMethodCall:     "InstanceMethodCall",
	RequestStaticMethodCall:       "StaticMethodCall",
}

func (k RequestKind) String() string {
	if int(k) < len(requestKindNames) && requestKindNames[k] != "" {
		return requestKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Discriminator is the type name nodes use for this kind in JSON envelopes.
func (k RequestKind) Discriminator() string {
	return "io.hotmoka.network.requests." + k.String() + "TransactionRequestModel"
}

// IsInitial reports whether requests of this kind are only accepted
// before the node is initialized. Initial requests carry no caller,
// nonce, gas or signature.
func (k RequestKind) IsInitial() bool {
	return k >= RequestJarStoreInitial && k <= RequestInitialization
}

// Request is a transaction request.
type Request interface {
	Kind() RequestKind
}

// SignedRequest is a request paid and signed by a caller account.
type SignedRequest interface {
	Request
	NonInitial() *NonInitialRequest
}

// NonInitialRequest holds the fields shared by every signed request.
type NonInitialRequest struct {
	Caller    StorageReference
	Nonce     *big.Int
	Classpath TransactionReference
	GasLimit  *big.Int
	GasPrice  *big.Int
	ChainID   string
	Signature []byte
}

// NonInitial returns r itself.
func (r *NonInitialRequest) NonInitial() *NonInitialRequest { return r }

// JarStoreInitialRequest installs a jar before the node is initialized.
type JarStoreInitialRequest struct {
	Jar          []byte
	Dependencies []TransactionReference
}

// GameteCreationRequest creates the gamete account holding the initial coins.
type GameteCreationRequest struct {
	Classpath     TransactionReference
	InitialAmount *big.Int
	PublicKey     string
}

// RedGreenGameteCreationRequest creates a gamete holding both green and red coins.
type RedGreenGameteCreationRequest struct {
	Classpath        TransactionReference
	InitialAmount    *big.Int
	RedInitialAmount *big.Int
	PublicKey        string
}

// InitializationRequest marks the node as initialized with the given manifest.
type InitializationRequest struct {
	Classpath TransactionReference
	Manifest  StorageReference
}

// JarStoreRequest installs a jar in an initialized node.
type JarStoreRequest struct {
	NonInitialRequest
	Jar          []byte
	Dependencies []TransactionReference
}

// ConstructorCallRequest instantiates an object.
type ConstructorCallRequest struct {
	NonInitialRequest
	Constructor ConstructorSignature
	Actuals     []StorageValue
}

// InstanceMethodCallRequest calls a method on a receiver object.
type InstanceMethodCallRequest struct {
	NonInitialRequest
	Method   MethodSignature
	Actuals  []StorageValue
	Receiver StorageReference
}

// StaticMethodCallRequest calls a static method.
type StaticMethodCallRequest struct {
	NonInitialRequest
	Method  MethodSignature
	Actuals []StorageValue
}

func (*JarStoreInitialRequest) Kind() RequestKind        { return RequestJarStoreInitial }
func (*GameteCreationRequest) Kind() RequestKind         { return RequestGameteCreation }
func (*RedGreenGameteCreationRequest) Kind() RequestKind { return RequestRedGreenGameteCreation }
func (*InitializationRequest) Kind() RequestKind         { return RequestInitialization }
func (*JarStoreRequest) Kind() RequestKind               { return RequestJarStore }
func (*ConstructorCallRequest) Kind() RequestKind        { return RequestConstructorCall }
func (*InstanceMethodCallRequest) Kind() RequestKind     { return RequestInstanceMethodCall }
func (*StaticMethodCallRequest) Kind() RequestKind       { return RequestStaticMethodCall }

var (
	_ SignedRequest = (*JarStoreRequest)(nil)
	_ SignedRequest = (*ConstructorCallRequest)(nil)
	_ SignedRequest = (*InstanceMethodCallRequest)(nil)
	_ SignedRequest = (*StaticMethodCallRequest)(nil)
)

// NewRequest returns an empty request of kind k, or nil for an unknown kind.
func NewRequest(k RequestKind) Request {
	switch k {
	case RequestJarStoreInitial:
		return new(JarStoreInitialRequest)
	case RequestGameteCreation:
		return new(GameteCreationRequest)
	case RequestRedGreenGameteCreation:
		return new(RedGreenGameteCreationRequest)
	case RequestInitialization:
		return new(InitializationRequest)
	case RequestJarStore:
		return new(JarStoreRequest)
	case RequestConstructorCall:
		return new(ConstructorCallRequest)
	case RequestInstanceMethodCall:
		return new(InstanceMethodCallRequest)
	case RequestStaticMethodCall:
		return new(StaticMethodCallRequest)
	}
	return nil
}
