package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/blockberries/moka/helpers"
	"github.com/blockberries/moka/types"
)

// InstallOptions holds flags for the install command.
type InstallOptions struct {
	*RootOptions
	Caller       string
	Nonce        int64
	GasLimit     int64
	GasPrice     int64
	Dependencies []string
	Post         bool

	// Jars loads the jar named on the command line.
	Jars JarLoader
}

// InstalledJar is the outcome of the install command.
type InstalledJar struct {
	Jar    string `json:"jar"`
	Caller string `json:"caller"`
	Nonce  string `json:"nonce"`
}

func (j InstalledJar) String() string {
	return fmt.Sprintf("installed jar %s (caller %s, nonce %s)", j.Jar, j.Caller, j.Nonce)
}

// NewInstallCommand creates the install command.
func NewInstallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InstallOptions{RootOptions: rootOpts, Jars: FileJarLoader{}}

	cmd := &cobra.Command{
		Use:   "install <jar>",
		Short: "Install a jar in the node",
		Long: `Install a jar in the node, paid and signed by --caller.

The caller key is read from the key directory of the configuration. The
nonce, gas price and chain id default to the values the node reports.
The jar depends on the takamaka code unless --dep is given.

Example:
  moka install counter.jar --caller 1c2a...e7#0 --config moka.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return installJar(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "account paying for the installation")
	cmd.Flags().Int64Var(&opts.Nonce, "nonce", -1, "nonce of the caller (default: asked to the node)")
	cmd.Flags().Int64Var(&opts.GasLimit, "gas-limit", 1_000_000, "gas limit of the transaction")
	cmd.Flags().Int64Var(&opts.GasPrice, "gas-price", -1, "gas price (default: the price of the node)")
	cmd.Flags().StringSliceVar(&opts.Dependencies, "dep", nil, "dependencies of the jar (default: the takamaka code)")
	cmd.Flags().BoolVar(&opts.Post, "post", false, "post the transaction and poll for its outcome")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func installJar(cmd *cobra.Command, opts *InstallOptions, path string) error {
	caller, err := parseObject(opts.Caller)
	if err != nil {
		return err
	}
	if opts.GasLimit <= 0 {
		return NewExitError(ExitCommandError, "--gas-limit must be positive")
	}
	deps := make([]types.TransactionReference, 0, len(opts.Dependencies))
	for _, d := range opts.Dependencies {
		ref, err := parseTransaction(d)
		if err != nil {
			return err
		}
		deps = append(deps, ref)
	}

	ctx := cmd.Context()
	jar, err := opts.Jars.LoadJar(ctx, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read jar", err)
	}

	s, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	req, err := opts.request(ctx, s, caller, jar, deps)
	if err != nil {
		return err
	}

	out := opts.output(cmd)
	var ref types.TransactionReference
	if opts.Post {
		supplier, err := s.node.PostJarStoreTransaction(ctx, req)
		if err != nil {
			return nodeError("cannot post jar", err)
		}
		out.VerboseLog("posted transaction %s", supplier.ReferenceOfRequest())
		if ref, err = supplier.Get(ctx); err != nil {
			return nodeError("jar installation failed", err)
		}
	} else if ref, err = s.node.AddJarStoreTransaction(ctx, req); err != nil {
		return nodeError("jar installation failed", err)
	}

	return out.Success(InstalledJar{Jar: ref.String(), Caller: caller.String(), Nonce: req.Nonce.String()})
}

// request builds the jar store request, asking the node for what the
// flags leave out.
func (opts *InstallOptions) request(ctx context.Context, s *session, caller types.StorageReference, jar []byte, deps []types.TransactionReference) (*types.JarStoreRequest, error) {
	classpath, err := s.node.GetTakamakaCode(ctx)
	if err != nil {
		return nil, nodeError("cannot get takamaka code", err)
	}
	if len(deps) == 0 {
		deps = []types.TransactionReference{classpath}
	}

	views := helpers.New(s.node, helpers.WithLogger(opts.logger()))
	chainID := s.cfg.ChainID
	if chainID == "" {
		if chainID, err = views.ChainID(ctx); err != nil {
			return nil, nodeError("cannot get chain id", err)
		}
	}
	nonce := big.NewInt(opts.Nonce)
	if opts.Nonce < 0 {
		if nonce, err = views.NonceOf(ctx, caller); err != nil {
			return nil, nodeError("cannot get nonce", err)
		}
	}
	price := big.NewInt(opts.GasPrice)
	if opts.GasPrice < 0 {
		if price, err = views.GasPrice(ctx); err != nil {
			return nil, nodeError("cannot get gas price", err)
		}
	}

	return &types.JarStoreRequest{
		NonInitialRequest: types.NonInitialRequest{
			Caller:    caller,
			Nonce:     nonce,
			Classpath: classpath,
			GasLimit:  big.NewInt(opts.GasLimit),
			GasPrice:  price,
			ChainID:   chainID,
		},
		Jar:          jar,
		Dependencies: deps,
	}, nil
}
