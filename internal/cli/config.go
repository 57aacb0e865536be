package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/config"
	"github.com/roach88/lzrecv/internal/ir"
)

// DeploymentView is the printable form of a deployment.
type DeploymentView struct {
	Variant          string    `json:"variant,omitempty"`
	Acknowledgements bool      `json:"acknowledgements"`
	Config           ir.Config `json:"config"`
	Peers            []ir.Peer `json:"peers"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate, apply and show the receiver deployment",
		Long: `Manage the receiver deployment.

A deployment is a CUE file (or a directory of CUE files) defining a
"deployment" value: the program identities, the lending accounts and the
trusted peers. It is validated against the built-in schema before any
of it is written.`,
	}

	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	cmd.AddCommand(newConfigApplyCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	return cmd
}

func newConfigValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <deployment>",
		Short: "Validate a deployment without writing it",
		Long: `Validate a deployment against the schema and derive its store
address. Nothing is written.

Exit codes:
  0 - Deployment is valid
  1 - Deployment is invalid
  2 - Command error

Examples:
  lzrecv config validate ./deploy/mainnet.cue
  lzrecv config validate ./deploy --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			d, err := loadDeployment(f, args[0])
			if err != nil {
				return err
			}
			view := deploymentView(d)
			return f.Render(view, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s is valid\n", args[0])
				printDeployment(w, view)
			})
		},
	}
}

func newConfigApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <deployment>",
		Short: "Validate a deployment and write it to the database",
		Long: `Validate a deployment and write the configuration and its peers
in one transaction. Applying the same deployment twice is a no-op.

Examples:
  lzrecv config apply --db ./lzrecv.db ./deploy/mainnet.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			d, err := loadDeployment(f, args[0])
			if err != nil {
				return err
			}

			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := d.Apply(commandContext(cmd), st); err != nil {
				return WrapExitError(ExitCommandError, "failed to apply deployment", err)
			}
			f.VerboseLog("applied %d peers", len(d.Peers))

			view := deploymentView(d)
			return f.Render(view, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Applied %s\n", args[0])
				printDeployment(w, view)
			})
		},
	}
}

func newConfigShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored configuration and peers",
		Example: `  lzrecv config show --db ./lzrecv.db
  lzrecv config show --db ./lzrecv.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := commandContext(cmd)
			cfg, err := st.Config(ctx)
			if err != nil {
				code := ExitCommandError
				if ir.IsCode(err, ir.ErrCodeNotConfigured) {
					code = ExitFailure
				}
				return WrapExitError(code, "failed to read configuration", err)
			}
			peers, err := st.Peers(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read peers", err)
			}

			view := DeploymentView{Config: cfg, Peers: peers}
			return formatter(opts, cmd).Render(view, func(w io.Writer) {
				printDeployment(w, view)
			})
		},
	}
}

// loadDeployment loads path and reports load errors through f.
func loadDeployment(f *OutputFormatter, path string) (*config.Deployment, error) {
	d, err := config.Load(path)
	if err == nil {
		return d, nil
	}

	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		details := map[string]string{"field": loadErr.Field}
		if loadErr.Pos.IsValid() {
			details["position"] = loadErr.Pos.String()
		}
		_ = f.Error("E_INVALID_DEPLOYMENT", loadErr.Message, details)
		return nil, WrapExitError(ExitFailure, "invalid deployment", err)
	}
	return nil, WrapExitError(ExitCommandError, "failed to load deployment", err)
}

func deploymentView(d *config.Deployment) DeploymentView {
	return DeploymentView{
		Variant:          d.Variant.String(),
		Acknowledgements: d.Acknowledgements,
		Config:           d.Config,
		Peers:            d.Peers,
	}
}

func printDeployment(w io.Writer, v DeploymentView) {
	if v.Variant != "" {
		fmt.Fprintf(w, "  Variant:          %s (acknowledgements: %t)\n", v.Variant, v.Acknowledgements)
	}
	fmt.Fprintf(w, "  Program:          %s\n", v.Config.ProgramID)
	fmt.Fprintf(w, "  Store:            %s (bump %d)\n", v.Config.Store, v.Config.StoreBump)
	fmt.Fprintf(w, "  Endpoint program: %s\n", v.Config.EndpointProgram)
	fmt.Fprintf(w, "  Mint:             %s\n", v.Config.Mint)
	fmt.Fprintf(w, "  Lending program:  %s\n", v.Config.Lending.Program)
	fmt.Fprintf(w, "  Peers:            %d\n", len(v.Peers))
	for _, p := range v.Peers {
		fmt.Fprintf(w, "    %d  %s\n", p.SrcEID, p.Address)
	}
}

// commandContext returns the command's context, or a background context
// when the command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
