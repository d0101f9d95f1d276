package mokagrpc

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/moka"
)

// Compile-time interface check.
var _ NodeServiceServer = (*GRPCServer)(nil)

// ServerOption configures a GRPCServer.
type ServerOption func(*GRPCServer)

// WithServerLogger sets the logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *GRPCServer) { s.logger = l }
}

// GRPCServer serves node calls from a moka.Backend.
type GRPCServer struct {
	backend moka.Backend
	logger  *zap.Logger
}

// NewGRPCServer returns a server answering calls with backend.
func NewGRPCServer(backend moka.Backend, opts ...ServerOption) *GRPCServer {
	s := &GRPCServer{backend: backend, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the node service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterNodeServiceServer(gs, s)
}

// Serve starts a gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop(gs *grpc.Server) {
	gs.GracefulStop()
}

// Backend returns the underlying backend for advanced use.
func (s *GRPCServer) Backend() moka.Backend {
	return s.backend
}

// Call forwards one call to the backend. Node errors travel inside the
// reply; only a backend that cannot serve the call fails the RPC.
func (s *GRPCServer) Call(ctx context.Context, req *CallRequest) (*CallReply, error) {
	reply, err := s.backend.Handle(ctx, req.call())
	if err != nil {
		s.logger.Warn("backend call failed",
			zap.String("method", req.Method),
			zap.String("endpoint", req.Endpoint),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	s.logger.Debug("call served",
		zap.String("method", req.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", reply.Status))
	return &CallReply{Status: uint32(reply.Status), Body: reply.Body}, nil
}

// UnaryLogger returns an interceptor logging every node call at Info,
// with its endpoint, outcome and duration.
func UnaryLogger(l *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("rpc", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.Stringer("code", status.Code(err)),
		}
		if call, ok := req.(*CallRequest); ok {
			fields = append(fields, zap.String("method", call.Method), zap.String("endpoint", call.Endpoint))
		}
		if reply, ok := resp.(*CallReply); ok && reply != nil {
			fields = append(fields, zap.Uint32("status", reply.Status))
		}
		l.Info("node call", fields...)
		return resp, err
	}
}
