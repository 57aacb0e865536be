package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/ir"
)

// VerifyResult is the payload hash recorded for a slot.
type VerifyResult struct {
	Slot        ir.SlotKey `json:"slot"`
	PayloadHash ir.Bytes32 `json:"payload_hash"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [envelope.json|-]",
		Short: "Record an envelope's payload hash as verified",
		Long: `Record the payload hash of an envelope for its sequence slot, the way
the messaging endpoint does once a message is verified. A later execution
of the same slot must carry a message with this exact hash.

Examples:
  lzrecv verify --db ./lzrecv.db envelope.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(firstArg(args), cmd.InOrStdin())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read envelope", err)
			}
			req, err := decodeRequest(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to decode envelope", err)
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

			env := req.Envelope
			res := VerifyResult{
				Slot:        env.Slot(cfg.Store),
				PayloadHash: endpoint.PayloadHash(env.GUID, env.Message),
			}
			if err := endpoint.New(cfg.EndpointProgram).Verify(ctx, st, res.Slot, res.PayloadHash); err != nil {
				return WrapExitError(ExitCommandError, "failed to record payload hash", err)
			}
			return formatter(rootOpts, cmd).Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Verified nonce %d from %d: %s\n", env.Nonce, env.SrcEID, res.PayloadHash)
			})
		},
	}
}
