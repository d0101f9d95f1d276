package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

// requestCodec encodes and decodes the body of one request variant.
type requestCodec struct {
	selector byte
	encode   func(*Encoder, types.Request)
	decode   func(*Decoder) types.Request
}

var requestCodecs = map[types.RequestKind]requestCodec{
	types.RequestJarStoreInitial: {
		selector: 1,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.JarStoreInitialRequest)
			e.PutBytes(req.Jar)
			e.putTransactionReferences("dependencies", req.Dependencies)
		},
		decode: func(d *Decoder) types.Request {
			jar := d.Bytes()
			return &types.JarStoreInitialRequest{Jar: jar, Dependencies: d.transactionReferences()}
		},
	},
	types.RequestGameteCreation: {
		selector: 2,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.GameteCreationRequest)
			e.putTransactionReference("classpath", req.Classpath)
			e.PutMagnitude("initialAmount", req.InitialAmount)
			e.PutString("publicKey", req.PublicKey)
		},
		decode: func(d *Decoder) types.Request {
			req := &types.GameteCreationRequest{Classpath: d.transactionReference()}
			req.InitialAmount = d.BigInt()
			req.PublicKey = d.Text()
			return req
		},
	},
	types.RequestRedGreenGameteCreation: {
		selector: 3,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.RedGreenGameteCreationRequest)
			e.putTransactionReference("classpath", req.Classpath)
			e.PutMagnitude("initialAmount", req.InitialAmount)
			e.PutMagnitude("redInitialAmount", req.RedInitialAmount)
			e.PutString("publicKey", req.PublicKey)
		},
		decode: func(d *Decoder) types.Request {
			req := &types.RedGreenGameteCreationRequest{Classpath: d.transactionReference()}
			req.InitialAmount = d.BigInt()
			req.RedInitialAmount = d.BigInt()
			req.PublicKey = d.Text()
			return req
		},
	},
	types.RequestInitialization: {
		selector: 4,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.InitializationRequest)
			e.putTransactionReference("classpath", req.Classpath)
			e.putStorageReference("manifest", req.Manifest)
		},
		decode: func(d *Decoder) types.Request {
			req := &types.InitializationRequest{Classpath: d.transactionReference()}
			req.Manifest = d.storageReference()
			return req
		},
	},
	types.RequestJarStore: {
		selector: 5,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.JarStoreRequest)
			e.putNonInitial(&req.NonInitialRequest, func() {
				e.PutBytes(req.Jar)
				e.putTransactionReferences("dependencies", req.Dependencies)
			})
		},
		decode: func(d *Decoder) types.Request {
			req := new(types.JarStoreRequest)
			d.nonInitial(&req.NonInitialRequest, func() {
				req.Jar = d.Bytes()
				req.Dependencies = d.transactionReferences()
			})
			return req
		},
	},
	types.RequestConstructorCall: {
		selector: 6,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.ConstructorCallRequest)
			e.putNonInitial(&req.NonInitialRequest, func() {
				e.putConstructorSignature("constructor", req.Constructor)
				e.putValues("actuals", req.Actuals)
			})
		},
		decode: func(d *Decoder) types.Request {
			req := new(types.ConstructorCallRequest)
			d.nonInitial(&req.NonInitialRequest, func() {
				req.Constructor = d.constructorSignature()
				req.Actuals = d.values()
			})
			return req
		},
	},
	types.RequestInstanceMethodCall: {
		selector: 7,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.InstanceMethodCallRequest)
			e.putNonInitial(&req.NonInitialRequest, func() {
				e.putMethodSignature("method", req.Method)
				e.putValues("actuals", req.Actuals)
				e.putStorageReference("receiver", req.Receiver)
			})
		},
		decode: func(d *Decoder) types.Request {
			req := new(types.InstanceMethodCallRequest)
			d.nonInitial(&req.NonInitialRequest, func() {
				req.Method = d.methodSignature()
				req.Actuals = d.values()
				req.Receiver = d.storageReference()
			})
			return req
		},
	},
	types.RequestStaticMethodCall: {
		selector: 8,
		encode: func(e *Encoder, r types.Request) {
			req := r.(*types.StaticMethodCallRequest)
			e.putNonInitial(&req.NonInitialRequest, func() {
				e.putMethodSignature("method", req.Method)
				e.putValues("actuals", req.Actuals)
			})
		},
		decode: func(d *Decoder) types.Request {
			req := new(types.StaticMethodCallRequest)
			d.nonInitial(&req.NonInitialRequest, func() {
				req.Method = d.methodSignature()
				req.Actuals = d.values()
			})
			return req
		},
	},
}

// requestKinds maps selectors back to kinds.
var requestKinds = map[byte]types.RequestKind{}

func init() {
	for k, c := range requestCodecs {
		if prev, dup := requestKinds[c.selector]; dup {
			panic(fmt.Sprintf("codec: request selector %d used by %s and %s", c.selector, prev, k))
		}
		requestKinds[c.selector] = k
	}
}

// putNonInitial writes the fields shared by signed requests around the
// variant-specific ones: caller, nonce, classpath, gas limit, gas price,
// then the variant fields, then the chain id.
func (e *Encoder) putNonInitial(r *types.NonInitialRequest, variant func()) {
	e.putStorageReference("caller", r.Caller)
	e.PutMagnitude("nonce", r.Nonce)
	e.putTransactionReference("classpath", r.Classpath)
	e.PutMagnitude("gasLimit", r.GasLimit)
	e.PutMagnitude("gasPrice", r.GasPrice)
	variant()
	e.PutString("chainId", r.ChainID)
}

func (d *Decoder) nonInitial(r *types.NonInitialRequest, variant func()) {
	r.Caller = d.storageReference()
	r.Nonce = d.BigInt()
	r.Classpath = d.transactionReference()
	r.GasLimit = d.BigInt()
	r.GasPrice = d.BigInt()
	variant()
	r.ChainID = d.Text()
}

func codecOf(r types.Request) (requestCodec, error) {
	if r == nil {
		return requestCodec{}, &moka.EncodingError{Reason: "nil request"}
	}
	c, ok := requestCodecs[r.Kind()]
	if !ok {
		return requestCodec{}, &moka.EncodingError{Reason: fmt.Sprintf("unsupported request kind %s", r.Kind())}
	}
	return c, nil
}

// EncodeBody returns the canonical bytes of r without its selector and
// without its signature. These are the bytes a caller signs.
func EncodeBody(r types.Request) ([]byte, error) {
	c, err := codecOf(r)
	if err != nil {
		return nil, err
	}
	e := NewEncoder()
	c.encode(e, r)
	if e.Err() != nil {
		return nil, e.Err()
	}
	return e.Bytes(), nil
}

// EncodeFull returns the selector of r followed by EncodeBody(r).
func EncodeFull(r types.Request) ([]byte, error) {
	c, err := codecOf(r)
	if err != nil {
		return nil, err
	}
	e := NewEncoder()
	e.PutByte(c.selector)
	c.encode(e, r)
	if e.Err() != nil {
		return nil, e.Err()
	}
	return e.Bytes(), nil
}

// EncodeSigned returns EncodeFull(r) followed by the signature of a
// signed request. Initial requests carry no signature and encode as
// EncodeFull.
func EncodeSigned(r types.Request) ([]byte, error) {
	full, err := EncodeFull(r)
	if err != nil {
		return nil, err
	}
	sr, ok := r.(types.SignedRequest)
	if !ok {
		return full, nil
	}
	e := NewEncoder()
	e.PutBytes(sr.NonInitial().Signature)
	return append(full, e.Bytes()...), nil
}

// ReferenceOf computes the reference of r from its signed bytes.
func ReferenceOf(r types.Request) (types.TransactionReference, error) {
	b, err := EncodeSigned(r)
	if err != nil {
		return types.TransactionReference{}, err
	}
	sum := sha256.Sum256(b)
	return types.NewTransactionReference(hex.EncodeToString(sum[:])), nil
}

// DecodeRequest parses bytes written by EncodeFull. The signature of a
// signed request, if present, is read as well.
func DecodeRequest(b []byte) (types.Request, error) {
	d := NewDecoder(b)
	sel := d.Byte()
	if d.Err() != nil {
		return nil, d.Err()
	}
	k, ok := requestKinds[sel]
	if !ok {
		return nil, &moka.EncodingError{Reason: fmt.Sprintf("unknown request selector %d", sel)}
	}
	r := requestCodecs[k].decode(d)
	if sr, ok := r.(types.SignedRequest); ok && d.Err() == nil && d.r.Len() > 0 {
		sr.NonInitial().Signature = d.Bytes()
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return r, nil
}
