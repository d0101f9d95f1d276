package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blockberries/moka/signature"
	"github.com/blockberries/moka/types"
)

// KeyFileName is the name of the key file of account inside a key
// directory.
func KeyFileName(account types.StorageReference) string {
	return strings.ReplaceAll(account.String(), "#", "_") + ".key"
}

// FileKeyLoader reads private keys from a directory holding one
// base64-encoded key file per account.
type FileKeyLoader struct {
	Dir string
}

var _ signature.KeyLoader = FileKeyLoader{}

// LoadPrivateKey reads the key of caller.
func (l FileKeyLoader) LoadPrivateKey(_ context.Context, caller types.StorageReference) ([]byte, error) {
	path := filepath.Join(l.Dir, KeyFileName(caller))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("key of %s: %w", caller, err)
	}
	key, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("key of %s: %s is not base64: %w", caller, path, err)
	}
	return key, nil
}

// WriteKey stores key as the key of account in dir.
func WriteKey(dir string, account types.StorageReference, key []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data := base64.StdEncoding.EncodeToString(key) + "\n"
	return os.WriteFile(filepath.Join(dir, KeyFileName(account)), []byte(data), 0o600)
}

// algorithmSource names the algorithm a node expects.
type algorithmSource interface {
	GetSignatureAlgorithmForRequests(ctx context.Context) (string, error)
}

// lazyKeyring builds a keyring on first use. Without a configured
// algorithm it signs with the one the node asks for.
type lazyKeyring struct {
	algorithm string
	loader    signature.KeyLoader
	node      algorithmSource

	mu      sync.Mutex
	keyring *signature.Keyring
}

func (k *lazyKeyring) SignerFor(ctx context.Context, caller types.StorageReference) (*signature.Signer, error) {
	k.mu.Lock()
	if k.keyring == nil {
		alg := k.algorithm
		if alg == "" {
			var err error
			if alg, err = k.node.GetSignatureAlgorithmForRequests(ctx); err != nil {
				k.mu.Unlock()
				return nil, err
			}
		}
		keyring, err := signature.NewKeyring(alg, k.loader)
		if err != nil {
			k.mu.Unlock()
			return nil, err
		}
		k.keyring = keyring
	}
	keyring := k.keyring
	k.mu.Unlock()
	return keyring.SignerFor(ctx, caller)
}

// JarLoader reads the bytes of a jar to install.
type JarLoader interface {
	LoadJar(ctx context.Context, name string) ([]byte, error)
}

// FileJarLoader reads jars from the file system.
type FileJarLoader struct{}

// LoadJar reads the jar file at path.
func (FileJarLoader) LoadJar(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("jar %s is empty", path)
	}
	return data, nil
}
