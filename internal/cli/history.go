package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [event-id]",
		Short: "Show the change journal",
		Long: `Show journaled changes: creates, updates and finalizations.

With an event id, every change of that event is listed oldest first.
Without one, the most recent changes across all events are listed
newest first. Requires the journal to be enabled.

Examples:
  ledger history 01890a5d-ac96-774b-bcce-b302099a8057
  ledger history --limit 50 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID := ""
			if len(args) == 1 {
				eventID = args[0]
			}
			return runHistory(opts, eventID, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of recent changes without an event id (0 = all)")
	return cmd
}

func runHistory(opts *HistoryOptions, eventID string, cmd *cobra.Command) error {
	return withApp(opts.RootOptions, cmd, func(app *App) error {
		if app.Journal == nil {
			return NewExitError(ExitCommandError, "the journal is disabled (journal.disabled / LEDGER_JOURNAL_DISABLED)")
		}

		var (
			entries []journal.Entry
			err     error
		)
		if eventID != "" {
			entries, err = app.Journal.History(cmd.Context(), eventID)
		} else {
			entries, err = app.Journal.Recent(cmd.Context(), opts.Limit)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}

		return formatter(opts.RootOptions, cmd).Result(entries, formatEntries(entries))
	})
}

func formatEntries(entries []journal.Entry) string {
	if len(entries) == 0 {
		return "No changes."
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		line := fmt.Sprintf("%6d  %s  %-8s  %s  %s/%s",
			e.Seq, time.Unix(e.At, 0).UTC().Format(time.RFC3339), e.Action, e.EventID, e.Source, e.Type)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
