package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Acks bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the inbound log and verify determinism",
		Long: `Re-execute every logged request, in order and at its original time,
against a fresh in-memory copy of the configuration, peers and verified
payloads, then compare the resulting state digest with the database's.

Exit codes:
  0 - Replay reproduces the stored state
  1 - State digests differ
  2 - Command error (database not found, etc.)

Examples:
  lzrecv replay --db ./lzrecv.db
  lzrecv replay --db ./lzrecv.db --variant deposit --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Acks, "acks", false, "the log was executed with ACK composition on")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	variant, acks, err := deploymentSettings(ctx, cmd, opts.RootOptions, st, opts.Acks)
	if err != nil {
		return err
	}
	report, err := engine.VerifyReplay(ctx, st, variant,
		engine.WithAcknowledgements(acks),
		engine.WithLogger(newLogger(opts.RootOptions, io.Discard)),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay inbound log", err)
	}

	f := formatter(opts.RootOptions, cmd)
	if err := f.Render(report, func(w io.Writer) {
		if report.Entries == 0 {
			fmt.Fprintln(w, "No requests in the inbound log.")
			return
		}
		fmt.Fprintf(w, "Replayed %d requests: %d complete, %d rejected, %d failed\n",
			report.Entries, report.Completed, report.Rejected, report.Failed)
		fmt.Fprintf(w, "  Stored:   %s\n", report.SourceDigest)
		fmt.Fprintf(w, "  Replayed: %s\n", report.ReplayDigest)
		if report.Match {
			fmt.Fprintln(w, "✓ Deterministic")
		} else {
			fmt.Fprintln(w, "✗ State differs from replay")
		}
	}); err != nil {
		return err
	}

	if !report.Match {
		return NewExitError(ExitFailure, "replay does not reproduce stored state")
	}
	return nil
}
