package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockcut/gridformula"
	"github.com/rockcut/gridformula/internal/config"
	"github.com/rockcut/gridformula/pkg/catalog"
)

type rootOptions struct {
	configFile string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gridformula",
		Short: "Evaluate and check formulas for computed grid columns",
		Long: `gridformula evaluates spreadsheet-style formulas against JSON rows.

Remote functions are served by the API at remote.base_url and by the
WebAssembly modules listed in wasm.modules. Settings are read from
config.yaml (or --config) and GRIDFORMULA_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (default: ./config.yaml or ~/.gridformula/config.yaml)")

	rootCmd.AddCommand(
		newEvalCommand(opts),
		newValidateCommand(opts),
		newAnalyzeCommand(),
		newFunctionsCommand(opts),
		newReplCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// loadApp reads the configuration and wires the app for one command run.
func (o *rootOptions) loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return newApp(ctx, cfg)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine and function catalog versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gridformula %s (catalog %s)\n", gridformula.Version(), catalog.Default().Version())
		},
	}
}
