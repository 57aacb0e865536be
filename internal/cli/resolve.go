package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/resolver"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	V2     bool
	Tables string // path to a JSON list of lookup tables
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve [envelope.json|-]",
		Short: "Compute the resource list for an inbound message",
		Long: `Compute the exact, ordered resource list an executor must supply
to execute a message. The input is an envelope, or a request object with
an "envelope" key, read from a file or stdin.

With --v2 the list is returned as a versioned plan, compressed against
the lookup tables given by --tables (a JSON list of {key, addresses}).

Examples:
  lzrecv resolve --db ./lzrecv.db envelope.json
  lzrecv resolve --db ./lzrecv.db --variant deposit --v2 --tables alts.json - < envelope.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, firstArg(args), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.V2, "v2", false, "return a versioned plan with lookup-table compression")
	cmd.Flags().StringVar(&opts.Tables, "tables", "", "lookup tables JSON file (with --v2)")

	return cmd
}

func runResolve(opts *ResolveOptions, input string, cmd *cobra.Command) error {
	data, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read envelope", err)
	}
	req, err := decodeRequest(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode envelope", err)
	}

	var tables []resolver.LookupTable
	if opts.Tables != "" {
		if !opts.V2 {
			return NewExitError(ExitCommandError, "--tables requires --v2")
		}
		raw, err := readInput(opts.Tables, cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read lookup tables", err)
		}
		if err := json.Unmarshal(raw, &tables); err != nil {
			return WrapExitError(ExitCommandError, "failed to decode lookup tables", err)
		}
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	variant, _, err := deploymentSettings(ctx, cmd, opts.RootOptions, st, false)
	if err != nil {
		return err
	}
	cfg, err := st.Config(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}

	f := formatter(opts.RootOptions, cmd)
	if opts.V2 {
		plan, err := resolver.ResolveV2(cfg, variant, req.Envelope, tables)
		if err != nil {
			return resolveFailure(f, err)
		}
		return f.Render(plan, func(w io.Writer) {
			fmt.Fprintf(w, "Plan (context version %d, %d lookup tables)\n", plan.ContextVersion, len(plan.LookupTables))
			for _, ix := range plan.Instructions {
				fmt.Fprintf(w, "  %s: %d accounts\n", ix.Kind, len(ix.Accounts))
				for i, ref := range ix.Accounts {
					fmt.Fprintf(w, "    %2d %s %s\n", i, writableMark(ref.IsWritable), locatorString(ref.Locator))
				}
			}
		})
	}

	resources, err := resolver.Resolve(cfg, variant, req.Envelope)
	if err != nil {
		return resolveFailure(f, err)
	}
	return f.Render(resources, func(w io.Writer) {
		printResources(w, resources)
	})
}

func resolveFailure(f *OutputFormatter, err error) error {
	_ = f.Error(ErrorCode(err, "E_RESOLVE"), err.Error(), nil)
	return WrapExitError(ExitFailure, "failed to resolve resources", err)
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the resolver version and the accounts it reads",
		Example: `  lzrecv info --db ./lzrecv.db
  lzrecv info --db ./lzrecv.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			cfg, err := st.Config(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read configuration", err)
			}
			info, err := resolver.Info(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to derive resolver accounts", err)
			}
			return formatter(rootOpts, cmd).Render(info, func(w io.Writer) {
				fmt.Fprintf(w, "Resolver version %d\n", info.Version)
				for _, a := range info.Accounts {
					fmt.Fprintf(w, "  %s\n", a)
				}
			})
		},
	}
}

func printResources(w io.Writer, resources []ir.Resource) {
	fmt.Fprintf(w, "%d resources\n", len(resources))
	for i, r := range resources {
		signer := ""
		if r.IsSigner {
			signer = " signer"
		}
		fmt.Fprintf(w, "  %2d %s %s%s\n", i, writableMark(r.IsWritable), r.PublicKey, signer)
	}
}

func writableMark(writable bool) string {
	if writable {
		return "w"
	}
	return "r"
}

func locatorString(l resolver.AddressLocator) string {
	if l.Table != nil {
		return fmt.Sprintf("alt[%d][%d]", l.Table.Table, l.Table.Index)
	}
	if l.Address != nil {
		return l.Address.String()
	}
	return "?"
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
