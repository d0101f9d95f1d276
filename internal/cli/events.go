package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/blockberries/moka/types"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Creator string
	Count   int
}

// EventLine is one event as printed by the CLI.
type EventLine struct {
	Event   string `json:"event"`
	Creator string `json:"creator"`
}

func (e EventLine) String() string {
	return fmt.Sprintf("event %s from %s", e.Event, e.Creator)
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the events emitted by the node",
		Long: `Print the events emitted by the node as they arrive.

The command runs until interrupted, or until --count events have been
printed. With --creator, only events created by that contract are shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return followEvents(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Creator, "creator", "", "only show events created by this contract")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "exit after this many events (0 runs until interrupted)")

	return cmd
}

func followEvents(cmd *cobra.Command, opts *EventsOptions) error {
	if opts.Count < 0 {
		return NewExitError(ExitCommandError, "--count cannot be negative")
	}
	var creator *types.StorageReference
	if opts.Creator != "" {
		ref, err := parseObject(opts.Creator)
		if err != nil {
			return err
		}
		creator = &ref
	}

	ctx := cmd.Context()
	s, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	out := opts.output(cmd)
	done := make(chan struct{})
	var (
		mu      sync.Mutex
		printed int
		outErr  error
	)
	sub, err := s.node.SubscribeToEvents(ctx, creator, func(event, from types.StorageReference) {
		mu.Lock()
		defer mu.Unlock()
		if opts.Count > 0 && printed >= opts.Count {
			return
		}
		if err := out.Success(EventLine{Event: event.String(), Creator: from.String()}); err != nil && outErr == nil {
			outErr = err
		}
		printed++
		if opts.Count > 0 && printed == opts.Count {
			close(done)
		}
	})
	if err != nil {
		return nodeError("cannot subscribe to events", err)
	}
	defer sub.Close()
	out.VerboseLog("subscribed to events")

	select {
	case <-done:
	case <-ctx.Done():
	}
	mu.Lock()
	defer mu.Unlock()
	return outErr
}
