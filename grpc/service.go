package mokagrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const serviceName = "moka.v1.NodeService"

// NodeServiceServer is the server-side interface of the node gRPC service.
type NodeServiceServer interface {
	Call(context.Context, *CallRequest) (*CallReply, error)
}

// RegisterNodeServiceServer registers srv on a gRPC server.
func RegisterNodeServiceServer(s *grpc.Server, srv NodeServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func handlerCall(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CallRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServiceServer).Call(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Call")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).Call(ctx, req.(*CallRequest))
	})
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor of the node service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*NodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: handlerCall},
	},
	Metadata: "moka/v1/service.cram",
}
