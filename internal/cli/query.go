package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/pda"
)

// LedgerEntry is a ledger record with its derived account address.
type LedgerEntry struct {
	ir.LedgerRecord
	Account string `json:"account"`
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger [evm-address]",
		Short: "Show deposit ledger records",
		Long: `Show the deposit ledger: one record per originating address with
its running total and deposit count. With an address, show that record
only; an address that never deposited reads as zero.

Examples:
  lzrecv ledger --db ./lzrecv.db
  lzrecv ledger --db ./lzrecv.db 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sender *ir.Address20
			if len(args) == 1 {
				a, err := ir.ParseAddress20(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid address", err)
				}
				sender = &a
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := commandContext(cmd)
			cfg, err := st.Config(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read configuration", err)
			}

			var records []ir.LedgerRecord
			if sender != nil {
				rec, ok, err := st.LedgerRecord(ctx, *sender)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read ledger", err)
				}
				if !ok {
					rec = ir.LedgerRecord{Sender: *sender}
				}
				records = []ir.LedgerRecord{rec}
			} else if records, err = st.LedgerRecords(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to read ledger", err)
			}

			entries := make([]LedgerEntry, 0, len(records))
			for _, rec := range records {
				account, err := pda.Ledger(cfg.ProgramID, rec.Sender)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to derive ledger account", err)
				}
				entries = append(entries, LedgerEntry{LedgerRecord: rec, Account: account.PublicKey.String()})
			}

			return formatter(rootOpts, cmd).Render(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No ledger records.")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s  total %d  deposits %d  updated %s\n",
						e.Sender, e.TotalDeposited, e.DepositCount, formatUnix(e.LastUpdated))
					fmt.Fprintf(w, "  account %s\n", e.Account)
				}
			})
		},
	}
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var senderFlag string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List deposit events",
		Example: `  lzrecv events --db ./lzrecv.db
  lzrecv events --db ./lzrecv.db --sender 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sender *ir.Address20
			if senderFlag != "" {
				a, err := ir.ParseAddress20(senderFlag)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --sender", err)
				}
				sender = &a
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.DepositEvents(commandContext(cmd), sender)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read deposit events", err)
			}
			if events == nil {
				events = []ir.DepositEvent{}
			}

			return formatter(rootOpts, cmd).Render(events, func(w io.Writer) {
				if len(events) == 0 {
					fmt.Fprintln(w, "No deposit events.")
					return
				}
				for _, ev := range events {
					fmt.Fprintf(w, "#%d %s  %s  +%d -> %d (deposit %d)",
						ev.Seq, formatUnix(ev.Timestamp), ev.Sender, ev.Amount, ev.NewTotal, ev.DepositIndex)
					if ev.CorrelationID != nil {
						fmt.Fprintf(w, "  correlation %s", ev.CorrelationID)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}

	cmd.Flags().StringVar(&senderFlag, "sender", "", "only events for this originating address")
	return cmd
}

// NewFailuresCommand creates the failures command.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "failures",
		Short: "List messages that failed after consuming their slot",
		Long: `List messages that failed after their sequence slot was consumed.
Such a slot stays spent; the message cannot be delivered again.`,
		Example:       `  lzrecv failures --db ./lzrecv.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			failures, err := st.Failures(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read failures", err)
			}
			if failures == nil {
				failures = []ir.FailedMessage{}
			}

			return formatter(rootOpts, cmd).Render(failures, func(w io.Writer) {
				if len(failures) == 0 {
					fmt.Fprintln(w, "No failed messages.")
					return
				}
				for _, f := range failures {
					fmt.Fprintf(w, "%s  eid %d nonce %d  %s at %s\n",
						formatUnix(f.FailedAt), f.Envelope.SrcEID, f.Envelope.Nonce, f.Code, f.Stage)
					fmt.Fprintf(w, "  guid %s\n", f.Envelope.GUID)
					fmt.Fprintf(w, "  %s\n", f.Message)
				}
			})
		},
	}
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
