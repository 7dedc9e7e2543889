package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rockcut/gridformula/pkg/parser"
)

func newEvalCommand(opts *rootOptions) *cobra.Command {
	var (
		rowJSON  string
		rowsPath string
		each     bool
		asJSON   bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "eval FORMULA",
		Short: "Evaluate a formula against a row",
		Long: `Evaluate a formula against the row given with --row.

With --each the formula is evaluated against every row read from --rows
and one result is printed per line.`,
		Example: `  gridformula eval '=qty * price' --row '{"qty": 2, "price": 3.5}'
  gridformula eval '=COLSUM("qty")' --rows rows.json
  cat rows.json | gridformula eval '=EST_IBU(recipe_id)' --rows - --each`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := parser.Compile(args[0])
			if err != nil {
				return err
			}
			row, err := parseRow(rowJSON)
			if err != nil {
				return err
			}
			rows, err := readRows(cmd.InOrStdin(), rowsPath)
			if err != nil {
				return err
			}
			if each && rowsPath == "" {
				return fmt.Errorf("--each requires --rows")
			}

			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()
			out := cmd.OutOrStdout()

			if each {
				states := a.ev.EvalRows(ctx, expr, rows)
				if asJSON {
					results := make([]cellOutput, len(states))
					for i, s := range states {
						results[i] = newCellOutput(s)
					}
					return printJSON(out, results)
				}
				for _, s := range states {
					fmt.Fprintln(out, s.Display())
				}
				return nil
			}

			state := a.ev.EvalCell(ctx, expr, row, rows)
			if asJSON {
				return printJSON(out, newCellOutput(state))
			}
			if state.IsError() {
				return state.Err
			}
			fmt.Fprintln(out, state.Display())
			return nil
		},
	}

	cmd.Flags().StringVarP(&rowJSON, "row", "r", "", "row as a JSON object")
	cmd.Flags().StringVar(&rowsPath, "rows", "", `JSON array of all rows ("-" reads stdin)`)
	cmd.Flags().BoolVar(&each, "each", false, "evaluate against every row of --rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall evaluation timeout (0 disables)")
	return cmd
}
