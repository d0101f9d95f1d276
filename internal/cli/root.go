package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/moka/config"
	mokagrpc "github.com/blockberries/moka/grpc"
	"github.com/blockberries/moka/journal"
	"github.com/blockberries/moka/remote"
	"github.com/blockberries/moka/rest"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	NodeURL     string
	GRPCAddress string

	// Logger overrides the logger built from Verbose.
	Logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the moka CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stderr, or on stdout as a JSON response with
// --format json.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if opts.Logger != nil {
		_ = opts.Logger.Sync()
	}
	if err == nil {
		return ExitSuccess
	}
	out := &OutputFormatter{Format: opts.Format, Writer: stderr}
	if opts.Format == "json" {
		out.Writer = stdout
	}
	_ = out.Error(ErrorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moka",
		Short: "moka - a thin client for Hotmoka nodes",
		Long:  "Query a Hotmoka node, install jars, follow its events and serve it over gRPC.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.NodeURL, "node", "", "node URL, overriding the configuration")
	cmd.PersistentFlags().StringVar(&opts.GRPCAddress, "grpc", "", "reach the node through the gRPC gateway at this address")

	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewClassTagCommand(opts))
	cmd.AddCommand(NewRequestCommand(opts))
	cmd.AddCommand(NewResponseCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewInstallCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewGatewayCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns the development logger with --verbose, otherwise a
// production logger that only reports warnings and errors.
func (o *RootOptions) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	var (
		l   *zap.Logger
		err error
	)
	if o.Verbose {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		l, err = cfg.Build()
	}
	if err != nil {
		l = zap.NewNop()
	}
	o.Logger = l
	return l
}

// config loads the configuration file, if any, and applies the flags
// over it.
func (o *RootOptions) config() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "cannot load configuration", err)
		}
	}
	if o.NodeURL != "" {
		cfg.NodeURL = o.NodeURL
	}
	if o.GRPCAddress != "" {
		config.WithGRPC(o.GRPCAddress)(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// session is a node client built from the configuration together with
// the resources it owns.
type session struct {
	cfg     config.Config
	node    *remote.Node
	journal *journal.Journal
}

func (s *session) Close() error {
	err := s.node.Close()
	if s.journal != nil {
		if jerr := s.journal.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

// connect builds a client of the configured node. The key directory,
// when set, signs requests.
func (o *RootOptions) connect(ctx context.Context) (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log := o.logger()
	s := &session{cfg: cfg}

	opts := []remote.Option{
		remote.WithLogger(log),
		remote.WithPollPolicy(cfg.PollPolicy()),
	}
	if cfg.EventsURL != "" {
		opts = append(opts, remote.WithEventsURL(cfg.EventsURL))
	}
	if cfg.JournalPath != "" {
		if s.journal, err = journal.Open(cfg.JournalPath); err != nil {
			return nil, WrapExitError(ExitCommandError, "cannot open journal", err)
		}
		opts = append(opts, remote.WithJournal(s.journal))
	}
	var keys *lazyKeyring
	if cfg.KeyDir != "" {
		keys = &lazyKeyring{algorithm: cfg.SignatureAlgorithm, loader: FileKeyLoader{Dir: cfg.KeyDir}}
		opts = append(opts, remote.WithSigners(keys))
	}

	switch cfg.Transport {
	case config.TransportGRPC:
		client, derr := mokagrpc.Dial(ctx, cfg.GRPCAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if derr != nil {
			err = derr
			break
		}
		s.node, err = remote.New(client, opts...)
		if err != nil {
			_ = client.Close()
		}
	default:
		opts = append(opts, remote.WithRESTOptions(rest.WithTimeout(cfg.Timeout), rest.WithLogger(log)))
		s.node, err = remote.Dial(cfg.NodeURL, opts...)
	}
	if err != nil {
		if s.journal != nil {
			_ = s.journal.Close()
		}
		return nil, WrapExitError(ExitCommandError, "cannot reach node", err)
	}
	if keys != nil {
		keys.node = s.node
	}
	log.Debug("connected",
		zap.String("transport", cfg.Transport),
		zap.String("node", cfg.NodeURL),
		zap.String("grpc", cfg.GRPCAddress))
	return s, nil
}
