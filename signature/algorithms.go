package signature

import (
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// Built-in algorithms.
var (
	Empty   Algorithm = emptyAlgorithm{}
	Ed25519 Algorithm = ed25519Algorithm{}
	ECDSA   Algorithm = ecdsaAlgorithm{}

	// SHA256DSA is the DSA scheme Hotmoka nodes name "sha256dsa".
	SHA256DSA Algorithm = dsaAlgorithm{}
)

// emptyAlgorithm produces empty signatures, for nodes that accept
// unsigned requests.
type emptyAlgorithm struct{}

func (emptyAlgorithm) Name() string { return "empty" }

func (emptyAlgorithm) Sign(_, _ []byte) ([]byte, error) { return []byte{}, nil }

// ed25519Algorithm accepts either a 32 byte seed or a 64 byte private key.
type ed25519Algorithm struct{}

func (ed25519Algorithm) Name() string { return "ed25519" }

func (ed25519Algorithm) Sign(key, data []byte) ([]byte, error) {
	var priv ed25519.PrivateKey
	switch len(key) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(key)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(key)
	default:
		return nil, fmt.Errorf("moka signature: ed25519 key of %d bytes", len(key))
	}
	return ed25519.Sign(priv, data), nil
}

// ecdsaAlgorithm signs the SHA-256 digest of data with an ASN.1 DER
// signature. Keys are PKCS#8 or SEC 1 DER.
type ecdsaAlgorithm struct{}

func (ecdsaAlgorithm) Name() string { return "ecdsa" }

func (ecdsaAlgorithm) Sign(key, data []byte) ([]byte, error) {
	priv, err := parseECDSAKey(key)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("moka signature: ecdsa: %w", err)
	}
	return sig, nil
}

func parseECDSAKey(der []byte) (*ecdsa.PrivateKey, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		ec, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("moka signature: PKCS#8 key is %T, not ECDSA", k)
		}
		return ec, nil
	}
	k, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("moka signature: parse ecdsa key: %w", err)
	}
	return k, nil
}

// dsaAlgorithm signs the SHA-256 digest of data with DSA and encodes the
// signature as an ASN.1 DER sequence of r and s. Keys are PKCS#8 DER.
type dsaAlgorithm struct{}

func (dsaAlgorithm) Name() string { return "sha256dsa" }

func (dsaAlgorithm) Sign(key, data []byte) ([]byte, error) {
	priv, err := parseDSAKey(key)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	// The digest is truncated to the byte length of the subgroup order.
	h := digest[:]
	if n := (priv.Q.BitLen() + 7) / 8; n < len(h) {
		h = h[:n]
	}
	r, s, err := dsa.Sign(rand.Reader, priv, h)
	if err != nil {
		return nil, fmt.Errorf("moka signature: dsa: %w", err)
	}
	return asn1.Marshal(dsaSignature{R: r, S: s})
}

var oidDSA = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}

type dsaSignature struct {
	R, S *big.Int
}

type pkcs8 struct {
	Version    int
	Algorithm  pkix.AlgorithmIdentifier
	PrivateKey []byte
}

// parseDSAKey reads a PKCS#8 DSA private key, the encoding Java's
// PrivateKey.getEncoded produces.
func parseDSAKey(der []byte) (*dsa.PrivateKey, error) {
	var k pkcs8
	if rest, err := asn1.Unmarshal(der, &k); err != nil {
		return nil, fmt.Errorf("moka signature: parse dsa key: %w", err)
	} else if len(rest) > 0 {
		return nil, fmt.Errorf("moka signature: parse dsa key: trailing data")
	}
	if !k.Algorithm.Algorithm.Equal(oidDSA) {
		return nil, fmt.Errorf("moka signature: PKCS#8 key algorithm %v is not DSA", k.Algorithm.Algorithm)
	}
	var params dsa.Parameters
	if _, err := asn1.Unmarshal(k.Algorithm.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("moka signature: parse dsa parameters: %w", err)
	}
	x := new(big.Int)
	if _, err := asn1.Unmarshal(k.PrivateKey, &x); err != nil {
		return nil, fmt.Errorf("moka signature: parse dsa private value: %w", err)
	}
	if params.P == nil || params.Q == nil || params.G == nil || x.Sign() <= 0 || x.Cmp(params.Q) >= 0 {
		return nil, fmt.Errorf("moka signature: invalid dsa key")
	}
	priv := &dsa.PrivateKey{X: x}
	priv.Parameters = params
	priv.Y = new(big.Int).Exp(params.G, x, params.P)
	return priv, nil
}
