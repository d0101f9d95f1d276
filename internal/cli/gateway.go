package cli

import (
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/blockberries/moka/config"
	mokagrpc "github.com/blockberries/moka/grpc"
	"github.com/blockberries/moka/rest"
)

// GatewayOptions holds flags for the gateway command.
type GatewayOptions struct {
	*RootOptions
	Listen string

	// Listener, when set, is served instead of listening on Listen.
	Listener net.Listener
}

// NewGatewayCommand creates the gateway command.
func NewGatewayCommand(rootOpts *RootOptions) *cobra.Command {
	return newGatewayCommand(&GatewayOptions{RootOptions: rootOpts})
}

func newGatewayCommand(opts *GatewayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve the REST node over gRPC",
		Long: `Serve the configured REST node to gRPC clients until interrupted.

Clients reach the node through the gateway with --grpc <address>.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveGateway(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:9090", "address the gateway listens on")

	return cmd
}

func serveGateway(cmd *cobra.Command, opts *GatewayOptions) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if cfg.Transport != config.TransportREST {
		return NewExitError(ExitCommandError, "the gateway serves a REST node: drop --grpc")
	}
	log := opts.logger()

	backend, err := rest.NewBackend(cfg.NodeURL, rest.WithTimeout(cfg.Timeout), rest.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid node URL", err)
	}
	defer backend.Close()

	lis := opts.Listener
	if lis == nil {
		if lis, err = net.Listen("tcp", opts.Listen); err != nil {
			return WrapExitError(ExitCommandError, "cannot listen", err)
		}
	}

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(mokagrpc.UnaryLogger(log)))
	server := mokagrpc.NewGRPCServer(backend, mokagrpc.WithServerLogger(log))
	server.Register(gs)

	served := make(chan error, 1)
	go func() { served <- gs.Serve(lis) }()
	log.Info("gateway started", zap.String("listen", lis.Addr().String()), zap.String("node", cfg.NodeURL))
	fmt.Fprintf(cmd.ErrOrStderr(), "gateway listening on %s\n", lis.Addr())

	select {
	case err := <-served:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return WrapExitError(ExitCommandError, "gateway stopped", err)
		}
		return nil
	case <-cmd.Context().Done():
		server.Stop(gs)
		<-served
		log.Info("gateway stopped")
		return nil
	}
}
