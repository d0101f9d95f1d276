// Package signature signs requests over their canonical body bytes.
//
// Algorithms are looked up by name in a registry. The package registers
// "empty", "ed25519", "ecdsa" (P-256 with SHA-256) and "sha256dsa" in the
// default registry. Signing never verifies; that is the node's job.
package signature

import (
	"errors"
	"sort"
	"sync"

	"github.com/blockberries/moka"
)

var (
	// ErrEmptyName is returned when an algorithm reports an empty name.
	ErrEmptyName = errors.New("moka signature: empty algorithm name")
	// ErrConflictingRegistration indicates an attempt to register a
	// second algorithm under a name already taken.
	ErrConflictingRegistration = errors.New("moka signature: conflicting algorithm registration")
)

// Algorithm is a named signing scheme.
type Algorithm interface {
	// Name is the name the node uses for the algorithm.
	Name() string

	// Sign signs data with the private key. The key format is specific
	// to the algorithm.
	Sign(key, data []byte) ([]byte, error)
}

// Registry maps algorithm names to algorithms. It is safe for
// concurrent use.
type Registry struct {
	// mu serializes writers so the conflict check and store are atomic.
	mu sync.Mutex
	m  sync.Map // map[string]Algorithm
}

// NewRegistry returns a registry holding algs.
func NewRegistry(algs ...Algorithm) (*Registry, error) {
	r := new(Registry)
	for _, a := range algs {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a. Registering the same algorithm value twice is a no-op.
// Algorithm values must be comparable.
func (r *Registry) Register(a Algorithm) error {
	name := a.Name()
	if name == "" {
		return ErrEmptyName
	}
	if old, ok := r.m.Load(name); ok {
		return sameOrConflict(old.(Algorithm), a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.m.Load(name); ok {
		return sameOrConflict(old.(Algorithm), a)
	}
	r.m.Store(name, a)
	return nil
}

func sameOrConflict(old, a Algorithm) error {
	if old == a {
		return nil
	}
	return ErrConflictingRegistration
}

// Lookup returns the algorithm registered under name, or an
// *moka.UnknownAlgorithmError.
func (r *Registry) Lookup(name string) (Algorithm, error) {
	if v, ok := r.m.Load(name); ok {
		return v.(Algorithm), nil
	}
	return nil, &moka.UnknownAlgorithmError{Name: name}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	var names []string
	r.m.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

var defaultRegistry = func() *Registry {
	r, err := NewRegistry(Empty, Ed25519, ECDSA, SHA256DSA)
	if err != nil {
		panic(err)
	}
	return r
}()

// Register adds a to the default registry.
func Register(a Algorithm) error { return defaultRegistry.Register(a) }

// Lookup finds name in the default registry.
func Lookup(name string) (Algorithm, error) { return defaultRegistry.Lookup(name) }

// Names lists the algorithms of the default registry.
func Names() []string { return defaultRegistry.Names() }
