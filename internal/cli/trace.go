package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/store"
)

// TraceResult holds every record the database keeps for one message.
type TraceResult struct {
	GUID     ir.Bytes32           `json:"guid"`
	Requests []store.InboundEntry `json:"requests"`
	Slots    []ir.SlotRecord      `json:"slots"`
	Deposits []ir.DepositEvent    `json:"deposit_events"`
	Acks     []ir.OutboundMessage `json:"outbound_messages"`
	Calls    []ir.ExternalCall    `json:"external_calls"`
	Failures []ir.FailedMessage   `json:"failures"`
	Stats    TraceStats           `json:"stats"`
}

// TraceStats summarizes the trace.
type TraceStats struct {
	Requests int  `json:"requests"`
	Executed bool `json:"executed"` // slot consumed by a successful execution
	Failed   bool `json:"failed"`   // slot spent by a failed execution
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <guid>",
		Short: "Show everything recorded for one message",
		Long: `Show every record kept for a message GUID: each execution request
as it arrived, the slot it spent, and the deposit events, ACKs, lending
calls and failure records it produced.

Examples:
  lzrecv trace --db ./lzrecv.db 0x6f1c...e2
  lzrecv trace --db ./lzrecv.db 0x6f1c...e2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			guid, err := ir.ParseBytes32(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid guid", err)
			}

			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := collectTrace(cmd, st, guid)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read trace", err)
			}

			f := formatter(rootOpts, cmd)
			if result.Stats.Requests == 0 {
				_ = f.Error("E_NOT_FOUND", fmt.Sprintf("no requests recorded for %s", guid), nil)
				return NewExitError(ExitFailure, "message not found")
			}
			return f.Render(result, func(w io.Writer) {
				printTrace(w, result)
			})
		},
	}
}

func collectTrace(cmd *cobra.Command, st *store.Store, guid ir.Bytes32) (TraceResult, error) {
	ctx := commandContext(cmd)
	result := TraceResult{
		GUID:     guid,
		Requests: []store.InboundEntry{},
		Slots:    []ir.SlotRecord{},
		Deposits: []ir.DepositEvent{},
		Acks:     []ir.OutboundMessage{},
		Calls:    []ir.ExternalCall{},
		Failures: []ir.FailedMessage{},
	}

	log, err := st.InboundLog(ctx)
	if err != nil {
		return result, err
	}
	for _, e := range log {
		if e.Envelope.GUID == guid {
			result.Requests = append(result.Requests, e)
		}
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		return result, err
	}
	for _, s := range snap.Slots {
		if s.GUID == guid {
			result.Slots = append(result.Slots, s)
			result.Stats.Executed = result.Stats.Executed || s.Status == ir.SlotConsumed
			result.Stats.Failed = result.Stats.Failed || s.Status == ir.SlotFailed
		}
	}
	for _, ev := range snap.DepositEvents {
		if ev.GUID == guid {
			result.Deposits = append(result.Deposits, ev)
		}
	}
	for _, m := range snap.Outbound {
		if m.GUID == guid {
			result.Acks = append(result.Acks, m)
		}
	}
	for _, c := range snap.ExternalCalls {
		if c.GUID == guid {
			result.Calls = append(result.Calls, c)
		}
	}
	for _, f := range snap.Failures {
		if f.Envelope.GUID == guid {
			result.Failures = append(result.Failures, f)
		}
	}
	result.Stats.Requests = len(result.Requests)
	return result, nil
}

func printTrace(w io.Writer, r TraceResult) {
	fmt.Fprintf(w, "Message %s\n", r.GUID)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")

	fmt.Fprintf(w, "\nRequests (%d):\n", len(r.Requests))
	for _, e := range r.Requests {
		fmt.Fprintf(w, "  [%d] %s  eid %d nonce %d  %d resources  %s\n",
			e.Seq, formatUnix(e.ReceivedAt), e.Envelope.SrcEID, e.Envelope.Nonce, len(e.Resources), e.Digest)
	}

	if len(r.Slots) > 0 {
		fmt.Fprintln(w, "\nSlots:")
		for _, s := range r.Slots {
			fmt.Fprintf(w, "  nonce %d %s at %s  payload %s\n", s.Key.Nonce, s.Status, formatUnix(s.ConsumedAt), s.PayloadHash)
		}
	}
	for _, ev := range r.Deposits {
		fmt.Fprintf(w, "\nDeposit: %s +%d -> %d (deposit %d)\n", ev.Sender, ev.Amount, ev.NewTotal, ev.DepositIndex)
	}
	for _, m := range r.Acks {
		fmt.Fprintf(w, "\nACK: index %d %s\n", m.Index, m.Message)
	}
	for _, c := range r.Calls {
		fmt.Fprintf(w, "\nLending call: %s with %d accounts, data %s\n", c.ProgramID, len(c.Accounts), c.Data)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "\nFailure: %s at %s: %s\n", f.Code, f.Stage, f.Message)
	}

	fmt.Fprintln(w)
	switch {
	case r.Stats.Executed:
		fmt.Fprintln(w, "Status: ✓ executed")
	case r.Stats.Failed:
		fmt.Fprintln(w, "Status: ✗ failed, slot spent")
	default:
		fmt.Fprintln(w, "Status: ○ not executed, slot open")
	}
}
