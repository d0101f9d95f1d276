package signature

import (
	"context"
	"fmt"
	"sync"

	"github.com/blockberries/moka/codec"
	"github.com/blockberries/moka/types"
)

// Signer signs requests with one algorithm and one private key.
type Signer struct {
	alg Algorithm
	key []byte
}

// NewSigner returns a signer for the named algorithm of the default
// registry. It fails with an *moka.UnknownAlgorithmError before any
// signing takes place if name is not registered.
func NewSigner(name string, key []byte) (*Signer, error) {
	alg, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Signer{alg: alg, key: append([]byte(nil), key...)}, nil
}

// NewSignerWith returns a signer for alg.
func NewSignerWith(alg Algorithm, key []byte) *Signer {
	return &Signer{alg: alg, key: append([]byte(nil), key...)}
}

// Algorithm returns the name of the signing algorithm.
func (s *Signer) Algorithm() string { return s.alg.Name() }

// SignBytes signs raw bytes.
func (s *Signer) SignBytes(data []byte) ([]byte, error) {
	return s.alg.Sign(s.key, data)
}

// Sign computes the signature of r over its canonical body and stores
// it in r.
func (s *Signer) Sign(r types.SignedRequest) error {
	body, err := codec.EncodeBody(r)
	if err != nil {
		return err
	}
	sig, err := s.alg.Sign(s.key, body)
	if err != nil {
		return fmt.Errorf("moka signature: sign %s: %w", r.Kind(), err)
	}
	r.NonInitial().Signature = sig
	return nil
}

// Provider selects the signer of a caller.
type Provider interface {
	SignerFor(ctx context.Context, caller types.StorageReference) (*Signer, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, caller types.StorageReference) (*Signer, error)

func (f ProviderFunc) SignerFor(ctx context.Context, caller types.StorageReference) (*Signer, error) {
	return f(ctx, caller)
}

// Single returns a Provider that uses s for every caller.
func Single(s *Signer) Provider {
	return ProviderFunc(func(context.Context, types.StorageReference) (*Signer, error) { return s, nil })
}

// KeyLoader loads the private key of a caller from wherever keys are
// kept.
type KeyLoader interface {
	LoadPrivateKey(ctx context.Context, caller types.StorageReference) ([]byte, error)
}

// KeyLoaderFunc adapts a function to the KeyLoader interface.
type KeyLoaderFunc func(ctx context.Context, caller types.StorageReference) ([]byte, error)

func (f KeyLoaderFunc) LoadPrivateKey(ctx context.Context, caller types.StorageReference) ([]byte, error) {
	return f(ctx, caller)
}

// Keyring is a Provider that loads keys on first use and caches the
// resulting signers per caller. Each caller signs with the default
// algorithm unless Use assigned it another one.
type Keyring struct {
	loader   KeyLoader
	fallback Algorithm

	mu      sync.Mutex
	algs    map[string]Algorithm
	signers map[string]*Signer
}

// NewKeyring returns a keyring signing with the named algorithm by
// default.
func NewKeyring(algorithm string, loader KeyLoader) (*Keyring, error) {
	alg, err := Lookup(algorithm)
	if err != nil {
		return nil, err
	}
	return &Keyring{
		loader:   loader,
		fallback: alg,
		algs:     make(map[string]Algorithm),
		signers:  make(map[string]*Signer),
	}, nil
}

// Use makes caller sign with the named algorithm.
func (k *Keyring) Use(caller types.StorageReference, algorithm string) error {
	alg, err := Lookup(algorithm)
	if err != nil {
		return err
	}
	id := caller.String()
	k.mu.Lock()
	defer k.mu.Unlock()
	k.algs[id] = alg
	delete(k.signers, id)
	return nil
}

// SignerFor returns the signer of caller, loading its key if needed.
// The empty algorithm needs no key.
func (k *Keyring) SignerFor(ctx context.Context, caller types.StorageReference) (*Signer, error) {
	id := caller.String()
	k.mu.Lock()
	if s, ok := k.signers[id]; ok {
		k.mu.Unlock()
		return s, nil
	}
	alg, ok := k.algs[id]
	if !ok {
		alg = k.fallback
	}
	k.mu.Unlock()

	var key []byte
	if alg != Empty {
		var err error
		if key, err = k.loader.LoadPrivateKey(ctx, caller); err != nil {
			return nil, fmt.Errorf("moka signature: load key of %s: %w", id, err)
		}
	}
	s := NewSignerWith(alg, key)

	k.mu.Lock()
	defer k.mu.Unlock()
	if cached, ok := k.signers[id]; ok {
		return cached, nil
	}
	k.signers[id] = s
	return s, nil
}
