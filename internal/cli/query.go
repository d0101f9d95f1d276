package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockberries/moka/helpers"
	"github.com/blockberries/moka/types"
)

// NodeInfo describes a node.
type NodeInfo struct {
	TakamakaCode       string `json:"takamakaCode"`
	Manifest           string `json:"manifest"`
	SignatureAlgorithm string `json:"signatureAlgorithm"`
	ChainID            string `json:"chainId,omitempty"`
	Gamete             string `json:"gamete,omitempty"`
	GasStation         string `json:"gasStation,omitempty"`
	GasPrice           string `json:"gasPrice,omitempty"`
}

func (i NodeInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "takamaka code:       %s\n", i.TakamakaCode)
	fmt.Fprintf(&b, "manifest:            %s\n", i.Manifest)
	fmt.Fprintf(&b, "signature algorithm: %s", i.SignatureAlgorithm)
	if i.ChainID != "" || i.Gamete != "" {
		fmt.Fprintf(&b, "\nchain id:            %s\n", i.ChainID)
		fmt.Fprintf(&b, "gamete:              %s\n", i.Gamete)
		fmt.Fprintf(&b, "gas station:         %s\n", i.GasStation)
		fmt.Fprintf(&b, "gas price:           %s", i.GasPrice)
	}
	return b.String()
}

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Views bool
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the takamaka code, manifest and signature algorithm of the node",
		Long: `Show the takamaka code, manifest and signature algorithm of the node.

With --views, also run view calls on the manifest to report the chain id,
the gamete, the gas station and the current gas price.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Views, "views", false, "run view calls on the manifest")

	return cmd
}

func runInfo(cmd *cobra.Command, opts *InfoOptions) error {
	ctx := cmd.Context()
	s, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var info NodeInfo
	code, err := s.node.GetTakamakaCode(ctx)
	if err != nil {
		return nodeError("cannot get takamaka code", err)
	}
	manifest, err := s.node.GetManifest(ctx)
	if err != nil {
		return nodeError("cannot get manifest", err)
	}
	alg, err := s.node.GetSignatureAlgorithmForRequests(ctx)
	if err != nil {
		return nodeError("cannot get signature algorithm", err)
	}
	info.TakamakaCode, info.Manifest, info.SignatureAlgorithm = code.String(), manifest.String(), alg

	if opts.Views {
		views := helpers.New(s.node, helpers.WithLogger(opts.logger()))
		if info.ChainID, err = views.ChainID(ctx); err != nil {
			return nodeError("cannot get chain id", err)
		}
		gamete, err := views.Gamete(ctx)
		if err != nil {
			return nodeError("cannot get gamete", err)
		}
		station, err := views.GasStation(ctx)
		if err != nil {
			return nodeError("cannot get gas station", err)
		}
		price, err := views.GasPrice(ctx)
		if err != nil {
			return nodeError("cannot get gas price", err)
		}
		info.Gamete, info.GasStation, info.GasPrice = gamete.String(), station.String(), price.String()
	}
	return opts.output(cmd).Success(info)
}

// ObjectState is the state of an object as printed by the CLI.
type ObjectState struct {
	Object  string         `json:"object"`
	Updates []types.Update `json:"updates"`
}

func (s ObjectState) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", s.Object)
	for _, u := range s.Updates {
		if u.IsClassTag() {
			jar := ""
			if u.Jar != nil {
				jar = u.Jar.String()
			}
			fmt.Fprintf(&b, "\n  class %s (from jar %s)", u.ClassName, jar)
			continue
		}
		value := "null"
		if u.Value != nil {
			value = u.Value.String()
		}
		fmt.Fprintf(&b, "\n  %s.%s:%s = %s", u.Field.DefiningClass, u.Field.Name, u.Field.Type, value)
	}
	return b.String()
}

// NewStateCommand creates the state command.
func NewStateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <object>",
		Short: "Show the state of an object",
		Long: `Show the updates describing the current state of an object.

Objects are written as <transaction hash>#<progressive in hex>.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			object, err := parseObject(args[0])
			if err != nil {
				return err
			}
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			state, err := s.node.GetState(cmd.Context(), object)
			if err != nil {
				return nodeError("cannot get state", err)
			}
			return opts.output(cmd).Success(ObjectState{Object: object.String(), Updates: state.Updates})
		},
	}
}

// ObjectClass is the class tag of an object as printed by the CLI.
type ObjectClass struct {
	Object    string `json:"object"`
	ClassName string `json:"className"`
	Jar       string `json:"jar"`
}

func (c ObjectClass) String() string {
	return fmt.Sprintf("%s: %s (from jar %s)", c.Object, c.ClassName, c.Jar)
}

// NewClassTagCommand creates the classtag command.
func NewClassTagCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "classtag <object>",
		Short:         "Show the class of an object and the jar defining it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			object, err := parseObject(args[0])
			if err != nil {
				return err
			}
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tag, err := s.node.GetClassTag(cmd.Context(), object)
			if err != nil {
				return nodeError("cannot get class tag", err)
			}
			return opts.output(cmd).Success(ObjectClass{Object: object.String(), ClassName: tag.ClassName, Jar: tag.Jar.String()})
		},
	}
}

func parseObject(arg string) (types.StorageReference, error) {
	ref, err := types.ParseStorageReference(arg)
	if err != nil {
		return types.StorageReference{}, WrapExitError(ExitCommandError, "invalid object", err)
	}
	return ref, nil
}

func parseTransaction(arg string) (types.TransactionReference, error) {
	if arg == "" || strings.ContainsAny(arg, "# ") {
		return types.TransactionReference{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid transaction reference %q", arg))
	}
	return types.NewTransactionReference(arg), nil
}
