package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// UnknownDiscriminatorError reports an envelope whose type names no
// known variant.
type UnknownDiscriminatorError struct {
	Discriminator string
}

func (e *UnknownDiscriminatorError) Error() string {
	return fmt.Sprintf("unknown discriminator %q", e.Discriminator)
}

// ResponseKindOf resolves a response discriminator. Both the fully
// qualified name and the simple class name are accepted.
func ResponseKindOf(discriminator string) (ResponseKind, bool) {
	simple := simpleName(discriminator)
	for _, k := range ResponseKinds {
		if responseModelNames[k] == simple {
			return k, true
		}
	}
	return 0, false
}

// RequestKindOf resolves a request discriminator. Both the fully
// qualified name and the simple class name are accepted.
func RequestKindOf(discriminator string) (RequestKind, bool) {
	simple := simpleName(discriminator)
	for _, k := range RequestKinds {
		if simpleName(k.Discriminator()) == simple {
			return k, true
		}
	}
	return 0, false
}

func simpleName(discriminator string) string {
	return discriminator[strings.LastIndexByte(discriminator, '.')+1:]
}

type responseEnvelope struct {
	Type  string          `json:"type"`
	Model json.RawMessage `json:"transactionResponseModel,omitempty"`
}

type requestEnvelope struct {
	Type  string          `json:"type"`
	Model json.RawMessage `json:"transactionRequestModel,omitempty"`
}

// MarshalResponse encodes r in the {type, transactionResponseModel} envelope.
func MarshalResponse(r Response) ([]byte, error) {
	m, err := toResponseModel(r)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(responseEnvelope{Type: r.Kind().Discriminator(), Model: body})
}

// UnmarshalResponse decodes a response envelope. The nested form
// {type, transactionResponseModel:{...}} and the flat form
// {type, ...fields} are both accepted. An unknown type yields an
// *UnknownDiscriminatorError.
func UnmarshalResponse(data []byte) (Response, error) {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	k, ok := ResponseKindOf(env.Type)
	if !ok {
		return nil, &UnknownDiscriminatorError{Discriminator: env.Type}
	}
	body := data
	if len(env.Model) > 0 && !bytes.Equal(env.Model, []byte("null")) {
		body = env.Model
	}
	var m responseModel
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return fromResponseModel(k, m)
}

// MarshalRequest encodes r in the {type, transactionRequestModel} envelope.
func MarshalRequest(r Request) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestEnvelope{Type: r.Kind().Discriminator(), Model: body})
}

// UnmarshalRequest decodes a request envelope, in nested or flat form.
func UnmarshalRequest(data []byte) (Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	k, ok := RequestKindOf(env.Type)
	if !ok {
		return nil, &UnknownDiscriminatorError{Discriminator: env.Type}
	}
	body := data
	if len(env.Model) > 0 && !bytes.Equal(env.Model, []byte("null")) {
		body = env.Model
	}
	r := NewRequest(k)
	if err := json.Unmarshal(body, r); err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return r, nil
}
