package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/engine"
)

// ExecuteOptions holds flags for the execute command.
type ExecuteOptions struct {
	*RootOptions
	Acks bool

	// IDGenerator overrides the execution id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return newExecuteCommand(&ExecuteOptions{RootOptions: rootOpts})
}

func newExecuteCommand(opts *ExecuteOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute [request.json|-]",
		Short: "Execute one inbound message",
		Long: `Execute one inbound message against the database.

The input is a request object {"envelope": ..., "resources": [...]} or a
bare envelope, read from a file or stdin. Without resources the resolver
output is used.

Exit codes:
  0 - Message executed
  1 - Message rejected, or failed after its slot was consumed
  2 - Command error

Examples:
  lzrecv execute --db ./lzrecv.db request.json
  lzrecv execute --db ./lzrecv.db --variant deposit --format json - < request.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(opts, firstArg(args), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Acks, "acks", false, "compose an ACK for every increment")

	return cmd
}

func runExecute(opts *ExecuteOptions, input string, cmd *cobra.Command) error {
	data, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}
	req, err := decodeRequest(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode request", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	f := formatter(opts.RootOptions, cmd)

	variant, acks, err := deploymentSettings(ctx, cmd, opts.RootOptions, st, opts.Acks)
	if err != nil {
		return err
	}
	cfg, err := st.Config(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}
	if req, err = completeRequest(cfg, variant, req); err != nil {
		return resolveFailure(f, err)
	}
	f.VerboseLog("executing nonce %d from %d with %d resources", req.Envelope.Nonce, req.Envelope.SrcEID, len(req.Resources))

	engOpts := []engine.Option{
		engine.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
		engine.WithAcknowledgements(acks),
	}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(st, variant, engOpts...)

	rc, execErr := eng.Execute(ctx, req)
	if err := outputReceipt(f, rc, execErr); err != nil {
		return err
	}
	if execErr != nil {
		return WrapExitError(ExitFailure, "message "+string(rc.Status), execErr)
	}
	return nil
}

func outputReceipt(f *OutputFormatter, rc engine.Receipt, execErr error) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: rc, ExecutionID: rc.ExecutionID}
		if execErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrorCode(execErr, "E_EXECUTE"), Message: rc.Error}
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printReceipt(f.Writer, rc)
	return nil
}

func printReceipt(w io.Writer, rc engine.Receipt) {
	mark := "✓"
	if rc.Status != engine.StatusComplete {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s at stage %s\n", mark, rc.Status, rc.Stage)
	fmt.Fprintf(w, "  Execution: %s\n", rc.ExecutionID)
	fmt.Fprintf(w, "  GUID:      %s\n", rc.GUID)
	if rc.Kind != "" {
		fmt.Fprintf(w, "  Kind:      %s\n", rc.Kind)
	}
	if rc.Code != "" {
		fmt.Fprintf(w, "  Error:     %s\n", rc.Error)
	}
	if rc.AppState != nil {
		fmt.Fprintf(w, "  Counter:   %d\n", rc.AppState.Counter)
		if rc.AppState.Text != "" {
			fmt.Fprintf(w, "  Text:      %q\n", rc.AppState.Text)
		}
	}
	if rc.Ledger != nil {
		fmt.Fprintf(w, "  Ledger:    %s total %d after %d deposits\n",
			rc.Ledger.Sender, rc.Ledger.TotalDeposited, rc.Ledger.DepositCount)
	}
	if rc.Ack != nil {
		fmt.Fprintf(w, "  ACK:       %s\n", rc.Ack.Message)
	}
	if rc.Call != nil {
		fmt.Fprintf(w, "  Call:      %s with %d accounts, data %s\n",
			rc.Call.ProgramID, len(rc.Call.Accounts), rc.Call.Data)
	}
}
