// Package types defines the data model exchanged with a Hotmoka node:
// references, storage values, code signatures, transaction requests
// and responses, updates and events.
//
// Variants of a union (requests, responses, values) carry an explicit
// kind. Arbitrary-precision quantities are *big.Int and travel as
// decimal strings in JSON.
package types

import (
	"fmt"
	"math/big"
	"strings"
)

// LocalReferenceType is the type tag of references computed from the
// hash of a transaction request.
const LocalReferenceType = "local"

// TransactionReference identifies a transaction on the ledger.
type TransactionReference struct {
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// NewTransactionReference returns a local reference with the given hex hash.
func NewTransactionReference(hash string) TransactionReference {
	return TransactionReference{Type: LocalReferenceType, Hash: hash}
}

// Equal reports whether r and o name the same transaction. Hashes are
// compared case-insensitively.
func (r TransactionReference) Equal(o TransactionReference) bool {
	return strings.EqualFold(r.Hash, o.Hash)
}

// IsZero reports whether r carries no hash.
func (r TransactionReference) IsZero() bool { return r.Hash == "" }

func (r TransactionReference) String() string { return strings.ToLower(r.Hash) }

// StorageReference identifies an object in ledger storage: the
// transaction that created it plus a progressive counter.
type StorageReference struct {
	Transaction TransactionReference
	Progressive *big.Int
}

// NewStorageReference returns the reference to the progressive-th
// object created by tx.
func NewStorageReference(tx TransactionReference, progressive int64) StorageReference {
	return StorageReference{Transaction: tx, Progressive: big.NewInt(progressive)}
}

// Equal reports whether r and o name the same object.
func (r StorageReference) Equal(o StorageReference) bool {
	if !r.Transaction.Equal(o.Transaction) {
		return false
	}
	return bigOrZero(r.Progressive).Cmp(bigOrZero(o.Progressive)) == 0
}

// String renders r as "<hash>#<progressive in hex>", the form Hotmoka
// tools print. It is also a stable map key.
func (r StorageReference) String() string {
	return fmt.Sprintf("%s#%s", r.Transaction, bigOrZero(r.Progressive).Text(16))
}

// ParseStorageReference parses the "<hash>#<progressive in hex>" form.
func ParseStorageReference(s string) (StorageReference, error) {
	hash, prog, ok := strings.Cut(s, "#")
	if !ok || hash == "" {
		return StorageReference{}, fmt.Errorf("storage reference %q: expected <hash>#<progressive>", s)
	}
	p, ok := new(big.Int).SetString(prog, 16)
	if !ok || p.Sign() < 0 {
		return StorageReference{}, fmt.Errorf("storage reference %q: bad progressive", s)
	}
	return StorageReference{Transaction: NewTransactionReference(hash), Progressive: p}, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
