// Package mokagrpc carries node calls over gRPC, using cramberry for
// the wire envelope.
//
// No protobuf code generation is required. A call is the endpoint and
// JSON body a REST client would send; a reply is the status and JSON
// body a REST node would answer. A GRPCServer in front of a
// rest.Backend is a gRPC gateway to a REST node.
package mokagrpc

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

const codecName = "moka-cramberry"

// envelope is implemented by the only two messages of the node
// service.
type envelope interface{ envelope() }

func (*CallRequest) envelope() {}
func (*CallReply) envelope()   {}

// CramberryCodec encodes node service envelopes with cramberry. Any
// other message is refused.
type CramberryCodec struct{}

func (CramberryCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(envelope); !ok {
		return nil, fmt.Errorf("moka grpc: cannot encode %T", v)
	}
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("moka grpc: encode %T: %w", v, err)
	}
	return data, nil
}

func (CramberryCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(envelope); !ok {
		return fmt.Errorf("moka grpc: cannot decode into %T", v)
	}
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("moka grpc: decode %T: %w", v, err)
	}
	return nil
}

func (CramberryCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(CramberryCodec{})
}
