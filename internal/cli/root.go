package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Variant  string // "counter" | "deposit"; empty uses the applied deployment
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lzrecv CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lzrecv",
		Short: "lzrecv - inbound cross-chain message receiver",
		Long: `Executes inbound cross-chain messages against a local ledger.

Messages are authenticated against a trusted peer, spend their sequence
slot exactly once, and update the counter state or the deposit ledger.
The resolver computes the exact resource list each message needs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Variant != "" {
				if _, err := codec.ParseVariant(opts.Variant); err != nil {
					return err
				}
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Variant, "variant", "", "message variant (counter|deposit); defaults to the applied deployment's, else counter")

	// Add subcommands
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewExecuteCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewFailuresCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openStore opens the database named by --db.
func openStore(opts *RootOptions) (*store.Store, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "required flag \"db\" not set")
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func variantOf(name string) (codec.Variant, error) {
	if name == "" {
		return codec.VariantCounter, nil
	}
	v, err := codec.ParseVariant(name)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid variant", err)
	}
	return v, nil
}

// deploymentSettings settles the variant and ACK choice for a command.
// An explicit --variant or --acks wins, then the settings written by
// config apply, then counter without ACKs.
func deploymentSettings(ctx context.Context, cmd *cobra.Command, opts *RootOptions, st *store.Store, acks bool) (codec.Variant, bool, error) {
	stored, ok, err := st.Settings(ctx)
	if err != nil {
		return 0, false, WrapExitError(ExitCommandError, "failed to read settings", err)
	}
	name := opts.Variant
	if name == "" {
		name = stored.Variant
	}
	if f := cmd.Flags().Lookup("acks"); ok && (f == nil || !f.Changed) {
		acks = stored.Acknowledgements
	}
	variant, err := variantOf(name)
	if err != nil {
		return 0, false, err
	}
	return variant, acks, nil
}

// newLogger returns a text logger on w at info level, or debug with
// --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
