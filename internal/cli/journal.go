package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockberries/moka/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Pending bool
	Limit   int
}

// JournalEntry is one journal entry as printed by the CLI.
type JournalEntry struct {
	Reference  string `json:"reference"`
	Kind       string `json:"kind"`
	Caller     string `json:"caller,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	PostedAt   string `json:"postedAt"`
	ResolvedAt string `json:"resolvedAt,omitempty"`
}

func (e JournalEntry) String() string {
	s := fmt.Sprintf("%s  %-10s  %s  %s", e.PostedAt, e.Status, e.Reference, e.Kind)
	if e.Message != "" {
		s += "  " + e.Message
	}
	return s
}

// JournalEntries is a list of journal entries.
type JournalEntries []JournalEntry

func (es JournalEntries) String() string {
	if len(es) == 0 {
		return "no transactions"
	}
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

func journalEntry(e journal.Entry) JournalEntry {
	out := JournalEntry{
		Reference: e.Reference.String(),
		Kind:      e.Kind,
		Caller:    e.Caller,
		Status:    e.Status,
		Message:   e.Message,
		PostedAt:  e.PostedAt.UTC().Format(time.RFC3339),
	}
	if !e.ResolvedAt.IsZero() {
		out.ResolvedAt = e.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal [reference]",
		Short: "List the transactions posted by this client",
		Long: `List the transactions posted by this client, most recent first, as
recorded in the journal configured by journal_path.

With a reference, show that transaction only. With --pending, list the
transactions whose outcome is still unknown, oldest first.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJournal(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only list pending transactions")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of transactions listed")

	return cmd
}

func listJournal(cmd *cobra.Command, opts *JournalOptions, args []string) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return NewExitError(ExitCommandError, "no journal_path configured")
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	out := opts.output(cmd)
	if len(args) == 1 {
		ref, err := parseTransaction(args[0])
		if err != nil {
			return err
		}
		e, err := j.Get(ctx, ref)
		if errors.Is(err, journal.ErrNotFound) {
			return WrapExitError(ExitFailure, "not in the journal", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot read journal", err)
		}
		return out.Success(journalEntry(e))
	}

	var entries []journal.Entry
	if opts.Pending {
		entries, err = j.Pending(ctx)
	} else {
		entries, err = j.Recent(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read journal", err)
	}
	list := make(JournalEntries, len(entries))
	for i, e := range entries {
		list[i] = journalEntry(e)
	}
	return out.Success(list)
}
