package cli

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/blockberries/moka/types"
)

// document is a JSON document printed indented in text output and
// embedded as is in JSON output.
type document json.RawMessage

func (d document) MarshalJSON() ([]byte, error) { return json.RawMessage(d).MarshalJSON() }

func (d document) String() string {
	var b bytes.Buffer
	if err := json.Indent(&b, d, "", "  "); err != nil {
		return string(d)
	}
	return b.String()
}

// NewRequestCommand creates the request command.
func NewRequestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "request <reference>",
		Short:         "Show the request of a transaction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTransaction(args[0])
			if err != nil {
				return err
			}
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			req, err := s.node.GetRequest(cmd.Context(), ref)
			if err != nil {
				return nodeError("cannot get request", err)
			}
			data, err := marshalRequest(req)
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(document(data))
		},
	}
}

// ResponseOptions holds flags for the response command.
type ResponseOptions struct {
	*RootOptions
	Poll bool
}

// NewResponseCommand creates the response command.
func NewResponseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResponseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "response <reference>",
		Short: "Show the response of a transaction",
		Long: `Show the response of a transaction.

With --poll, wait for the response of a transaction the node has not
committed yet, within the configured poll policy.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTransaction(args[0])
			if err != nil {
				return err
			}
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			get := s.node.GetResponse
			if opts.Poll {
				get = s.node.GetPolledResponse
			}
			resp, err := get(cmd.Context(), ref)
			if err != nil {
				return nodeError("cannot get response", err)
			}
			data, err := marshalResponse(resp)
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(document(data))
		},
	}

	cmd.Flags().BoolVar(&opts.Poll, "poll", false, "wait for the response")

	return cmd
}

func marshalRequest(req types.Request) ([]byte, error) {
	data, err := types.MarshalRequest(req)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot encode request", err)
	}
	return data, nil
}

func marshalResponse(resp types.Response) ([]byte, error) {
	data, err := types.MarshalResponse(resp)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot encode response", err)
	}
	return data, nil
}
