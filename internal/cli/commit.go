package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/commit"
)

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	PatchOptions
	EventID string
	State   string
	Source  string
	Type    string
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Validate and write an event, finalizing camera captures",
		Long: `Commit an event patch through the orchestrator.

With --event-id the event must exist and source/type default to the
stored ones. Without it --source and --type are required. A camera
documentation commit (camera/doc by default) also moves the captured
photos from the session's temporary directory into the permanent
per-customer directory and records the new filenames.

Exit codes:
  0 - Committed (and finalized, for camera documentation)
  1 - Rejected or finalization failed; the error code is reported
  2 - Command error (configuration, unreadable patch, etc.)

Examples:
  ledger commit --event-id 01890a5d-ac96-774b-bcce-b302099a8057 --state closed
  ledger commit --source camera --type doc --patch-file capture.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EventID, "event-id", "", "existing event to update")
	cmd.Flags().StringVar(&opts.State, "state", "", "workflow state to set")
	cmd.Flags().StringVar(&opts.Source, "source", "", "event source (required without --event-id)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "event type (required without --event-id)")
	opts.addFlags(cmd)

	return cmd
}

func runCommit(opts *CommitOptions, cmd *cobra.Command) error {
	patch, err := readPatch(opts.PatchOptions, cmd.InOrStdin())
	if err != nil {
		return err
	}

	return withApp(opts.RootOptions, cmd, func(app *App) error {
		out := formatter(opts.RootOptions, cmd)
		resp := app.Orchestrator.Commit(cmd.Context(), commit.Request{
			EventID:       opts.EventID,
			WorkflowState: opts.State,
			Source:        opts.Source,
			Type:          opts.Type,
			Patch:         patch,
		})

		if !resp.OK {
			if resp.Written {
				out.Verbosef("event %s was written before the failure", resp.EventID)
			}
			if err := out.Report(resp.Error, resp.Message, resp); err != nil {
				return err
			}
			return reported(resp.Error + ": " + resp.Message)
		}
		return out.Result(resp, describeCommit(resp))
	})
}

func describeCommit(resp commit.Response) string {
	verb := "updated"
	if resp.Created {
		verb = "created"
	}
	text := verb + " " + resp.EventID
	if pw := resp.PostWrite; pw != nil {
		text += "\n" + describePostWrite(*pw)
	}
	return text
}

func describePostWrite(pw commit.PostWriteResult) string {
	if pw.Skipped != "" {
		return "finalize skipped: " + pw.Skipped
	}
	return fmt.Sprintf("finalized %d items", pw.Items)
}

// NewFinalizeCommand creates the finalize command.
func NewFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <event-id>",
		Short: "Finalize the camera captures of a stored event",
		Long: `Run the post-write step for a stored camera documentation event.

The session, customer number and items are read from the event's
meta.doc.camera. An event that is already finalized is left untouched.

Example:
  ledger finalize 01890a5d-ac96-774b-bcce-b302099a8057`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(app *App) error {
				out := formatter(rootOpts, cmd)
				pw, err := app.Orchestrator.PostWrite(cmd.Context(), args[0])
				if err != nil {
					return fail(out, pw.Error, pw.Message)
				}
				return out.Result(pw, describePostWrite(pw))
			})
		},
	}
}
