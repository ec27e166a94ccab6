package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/store"
)

// UpsertOptions holds flags for the upsert command.
type UpsertOptions struct {
	*RootOptions
	PatchOptions
	Source string
	Type   string
}

// NewUpsertCommand creates the upsert command.
func NewUpsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update an event",
		Long: `Create or update an event in the collection.

The patch targets an existing event by its "id", else by any shared
(ns,id) ref tuple, else a new event is created. Objects merge deeply;
lists and scalars replace.

Examples:
  ledger upsert --source pbx --type call --patch '{"refs":[{"ns":"pbx","id":"C123"}]}'
  ledger upsert --source manual --type note --patch-file note.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpsert(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "event source (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&opts.Type, "type", "", "event type (required)")
	_ = cmd.MarkFlagRequired("type")
	opts.addFlags(cmd)

	return cmd
}

func runUpsert(opts *UpsertOptions, cmd *cobra.Command) error {
	patch, err := readPatch(opts.PatchOptions, cmd.InOrStdin())
	if err != nil {
		return err
	}

	return withApp(opts.RootOptions, cmd, func(app *App) error {
		out := formatter(opts.RootOptions, cmd)
		res, err := app.Store.Upsert(cmd.Context(), opts.Source, opts.Type, patch)
		if err != nil {
			return failErr(out, err)
		}

		verb := "updated"
		if res.IsNew {
			verb = "created"
		}
		return out.Result(map[string]any{
			"is_new": res.IsNew,
			"event":  res.Event,
		}, verb+" "+summarize(res.Event))
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <event-id>",
		Short: "Show one event by id",
		Example: `  ledger get 01890a5d-ac96-774b-bcce-b302099a8057
  ledger get 01890a5d-ac96-774b-bcce-b302099a8057 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(app *App) error {
				out := formatter(rootOpts, cmd)
				ev, ok, err := app.Store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return failErr(out, err)
				}
				if !ok {
					return fail(out, string(store.CodeNotFound), "no event with id "+args[0])
				}
				text, err := indent(ev)
				if err != nil {
					return err
				}
				return out.Result(ev, text)
			})
		},
	}
}

// RefOptions holds flags for the ref command.
type RefOptions struct {
	*RootOptions
	All bool
}

// NewRefCommand creates the ref command.
func NewRefCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ref <ns> <id>",
		Short: "Find events by external reference",
		Long: `Find the event carrying the (ns,id) reference tuple.

Without --all the most recently updated match is shown, the same event an
upsert with that ref would update.

Examples:
  ledger ref pbx C123
  ledger ref camera S1 --all`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRef(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "list every matching event, most recent first")
	return cmd
}

func runRef(opts *RefOptions, ns, id string, cmd *cobra.Command) error {
	return withApp(opts.RootOptions, cmd, func(app *App) error {
		out := formatter(opts.RootOptions, cmd)
		if opts.All {
			events, err := app.Store.GetByRefAll(cmd.Context(), ns, id)
			if err != nil {
				return failErr(out, err)
			}
			return out.Result(events, summarizeAll(events))
		}

		ev, ok, err := app.Store.GetByRef(cmd.Context(), ns, id)
		if err != nil {
			return failErr(out, err)
		}
		if !ok {
			return fail(out, string(store.CodeNotFound), "no event with ref "+ns+":"+id)
		}
		return out.Result(ev, summarize(ev))
	})
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	States  []string
	Sources []string
	Types   []string
	Limit   int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List events, newest first",
		Long: `List events ordered by timing.started_at, timing.ended_at, updated_at
or created_at (the first present), newest first.

Examples:
  ledger query
  ledger query --state open,work --limit 20
  ledger query --source camera --type doc --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.States, "state", nil, "workflow states to include")
	cmd.Flags().StringSliceVar(&opts.Sources, "source", nil, "sources to include")
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "types to include")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = unlimited)")
	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	for _, s := range opts.States {
		if !event.ValidState(s) {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --state %q: must be one of %v", s, event.States))
		}
	}

	return withApp(opts.RootOptions, cmd, func(app *App) error {
		out := formatter(opts.RootOptions, cmd)
		events, err := app.Store.Query(cmd.Context(), store.Filter{
			States:  opts.States,
			Sources: opts.Sources,
			Types:   opts.Types,
			Limit:   opts.Limit,
		})
		if err != nil {
			return failErr(out, err)
		}
		return out.Result(events, summarizeAll(events))
	})
}

// summarize renders one event as a single line.
func summarize(ev doc.Object) string {
	title := ev.GetString(event.KeyDisplay, "title")
	if title == "" {
		title = "-"
	}
	return fmt.Sprintf("%s  %s/%s  %s  %s", event.ID(ev), event.Source(ev), event.Type(ev), event.State(ev), title)
}

func summarizeAll(events []doc.Object) string {
	if len(events) == 0 {
		return "No events."
	}
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = summarize(ev)
	}
	return strings.Join(lines, "\n")
}

// indent renders ev as indented JSON with sorted keys.
func indent(ev doc.Object) (string, error) {
	data, err := doc.Marshal(ev)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
