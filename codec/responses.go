package codec

import (
	"fmt"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

type responseCodec struct {
	selector byte
	encode   func(*Encoder, types.Response)
	decode   func(*Decoder) types.Response
}

var responseCodecs = map[types.ResponseKind]responseCodec{
	types.ResponseJarStoreInitial: {
		selector: 1,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.JarStoreInitialResponse)
			e.PutBytes(resp.InstrumentedJar)
			e.putTransactionReferences("dependencies", resp.Dependencies)
		},
		decode: func(d *Decoder) types.Response {
			jar := d.Bytes()
			return &types.JarStoreInitialResponse{InstrumentedJar: jar, Dependencies: d.transactionReferences()}
		},
	},
	types.ResponseGameteCreation: {
		selector: 2,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.GameteCreationResponse)
			e.putUpdates(resp.Updates)
			e.putStorageReference("gamete", resp.Gamete)
		},
		decode: func(d *Decoder) types.Response {
			updates := d.updates()
			return &types.GameteCreationResponse{Updates: updates, Gamete: d.storageReference()}
		},
	},
	types.ResponseInitialization: {
		selector: 3,
		encode:   func(*Encoder, types.Response) {},
		decode:   func(*Decoder) types.Response { return &types.InitializationResponse{} },
	},
	types.ResponseJarStoreSuccessful: {
		selector: 4,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.JarStoreSuccessfulResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.PutBytes(resp.InstrumentedJar)
			e.putTransactionReferences("dependencies", resp.Dependencies)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.JarStoreSuccessfulResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.InstrumentedJar = d.Bytes()
			resp.Dependencies = d.transactionReferences()
			return resp
		},
	},
	types.ResponseJarStoreFailed: {
		selector: 5,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.JarStoreFailedResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.PutMagnitude("gasConsumedForPenalty", resp.GasForPenalty)
			e.putCause(resp.Cause)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.JarStoreFailedResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.GasForPenalty = d.BigInt()
			resp.Cause = d.cause()
			return resp
		},
	},
	types.ResponseConstructorCallSuccessful: {
		selector: 6,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.ConstructorCallSuccessfulResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.putStorageReferences("events", resp.Events)
			e.putStorageReference("newObject", resp.NewObject)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.ConstructorCallSuccessfulResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.Events = d.storageReferences()
			resp.NewObject = d.storageReference()
			return resp
		},
	},
	types.ResponseConstructorCallException: {
		selector: 7,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.ConstructorCallExceptionResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.putStorageReferences("events", resp.Events)
			e.putCause(resp.Cause)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.ConstructorCallExceptionResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.Events = d.storageReferences()
			resp.Cause = d.cause()
			return resp
		},
	},
	types.ResponseConstructorCallFailed: {
		selector: 8,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.ConstructorCallFailedResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.PutMagnitude("gasConsumedForPenalty", resp.GasForPenalty)
			e.putCause(resp.Cause)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.ConstructorCallFailedResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.GasForPenalty = d.BigInt()
			resp.Cause = d.cause()
			return resp
		},
	},
	types.ResponseMethodCallSuccessful: {
		selector: 9,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.MethodCallSuccessfulResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.putStorageReferences("events", resp.Events)
			e.PutValue("result", resp.Result)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.MethodCallSuccessfulResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.Events = d.storageReferences()
			resp.Result = d.Value()
			return resp
		},
	},
	types.ResponseVoidMethodCallSuccessful: {
		selector: 10,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.VoidMethodCallSuccessfulResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.putStorageReferences("events", resp.Events)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.VoidMethodCallSuccessfulResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.Events = d.storageReferences()
			return resp
		},
	},
	types.ResponseMethodCallException: {
		selector: 11,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.MethodCallExceptionResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.putStorageReferences("events", resp.Events)
			e.putCause(resp.Cause)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.MethodCallExceptionResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.Events = d.storageReferences()
			resp.Cause = d.cause()
			return resp
		},
	},
	types.ResponseMethodCallFailed: {
		selector: 12,
		encode: func(e *Encoder, r types.Response) {
			resp := r.(*types.MethodCallFailedResponse)
			e.putUpdates(resp.Updates)
			e.putGas(resp.Gas)
			e.PutMagnitude("gasConsumedForPenalty", resp.GasForPenalty)
			e.putCause(resp.Cause)
		},
		decode: func(d *Decoder) types.Response {
			resp := &types.MethodCallFailedResponse{Updates: d.updates()}
			resp.Gas = d.gas()
			resp.GasForPenalty = d.BigInt()
			resp.Cause = d.cause()
			return resp
		},
	},
}

var responseKinds = map[byte]types.ResponseKind{}

func init() {
	for k, c := range responseCodecs {
		if prev, dup := responseKinds[c.selector]; dup {
			panic(fmt.Sprintf("codec: response selector %d used by %s and %s", c.selector, prev, k))
		}
		responseKinds[c.selector] = k
	}
}

func (e *Encoder) putGas(g types.Gas) {
	e.PutMagnitude("gasConsumedForCPU", g.CPU)
	e.PutMagnitude("gasConsumedForRAM", g.RAM)
	e.PutMagnitude("gasConsumedForStorage", g.Storage)
}

func (d *Decoder) gas() types.Gas {
	g := types.Gas{CPU: d.BigInt()}
	g.RAM = d.BigInt()
	g.Storage = d.BigInt()
	return g
}

func (e *Encoder) putCause(c types.Cause) {
	e.PutString("classNameOfCause", c.ClassName)
	e.PutString("messageOfCause", c.Message)
	e.PutString("where", c.Where)
}

func (d *Decoder) cause() types.Cause {
	c := types.Cause{ClassName: d.Text()}
	c.Message = d.Text()
	c.Where = d.Text()
	return c
}

// EncodeResponse returns the selector of r followed by its fields.
func EncodeResponse(r types.Response) ([]byte, error) {
	if r == nil {
		return nil, &moka.EncodingError{Reason: "nil response"}
	}
	c, ok := responseCodecs[r.Kind()]
	if !ok {
		return nil, &moka.EncodingError{Reason: fmt.Sprintf("unsupported response kind %s", r.Kind())}
	}
	e := NewEncoder()
	e.PutByte(c.selector)
	c.encode(e, r)
	if e.Err() != nil {
		return nil, e.Err()
	}
	return e.Bytes(), nil
}

// DecodeResponse parses bytes written by EncodeResponse.
func DecodeResponse(b []byte) (types.Response, error) {
	d := NewDecoder(b)
	sel := d.Byte()
	if d.Err() != nil {
		return nil, d.Err()
	}
	k, ok := responseKinds[sel]
	if !ok {
		return nil, &moka.EncodingError{Reason: fmt.Sprintf("unknown response selector %d", sel)}
	}
	r := responseCodecs[k].decode(d)
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return r, nil
}
