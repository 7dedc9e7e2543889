package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rockcut/gridformula/pkg/analysis"
	"github.com/rockcut/gridformula/pkg/parser"
)

func newAnalyzeCommand() *cobra.Command {
	var (
		columnsPath string
		dependents  string
	)

	cmd := &cobra.Command{
		Use:   "analyze [FORMULA]",
		Short: "List the fields and functions a formula uses",
		Long: `Without --columns, print the fields a formula reads and the functions
it calls.

With --columns, read a JSON object mapping computed column names to
formulas and print the order in which the columns must be evaluated.
Circular references are reported as an error.`,
		Example: `  gridformula analyze '=IF(qty > 0, price * qty, 0)'
  gridformula analyze --columns columns.json --dependents qty`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if columnsPath == "" {
				if len(args) == 0 {
					return fmt.Errorf("a formula or --columns is required")
				}
				expr, err := parser.Compile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "fields: %s\n", strings.Join(analysis.ExtractFields(expr.AST()).Sorted(), ", "))
				fmt.Fprintf(out, "functions: %s\n", strings.Join(analysis.ExtractFunctions(expr.AST()).Sorted(), ", "))
				return nil
			}

			cols, err := readColumns(columnsPath)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cols))
			for name := range cols {
				names = append(names, name)
			}
			sort.Strings(names)

			g := analysis.NewGraph()
			for _, name := range names {
				expr, err := parser.Compile(cols[name])
				if err != nil {
					return fmt.Errorf("column %s: %w", name, err)
				}
				g.Set(name, expr.AST())
			}
			order, err := g.Order()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "order: %s\n", strings.Join(order, ", "))
			if dependents != "" {
				fmt.Fprintf(out, "dependents of %s: %s\n", dependents, strings.Join(g.Dependents(dependents), ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&columnsPath, "columns", "", "JSON object mapping column names to formulas")
	cmd.Flags().StringVar(&dependents, "dependents", "", "with --columns, also list the columns that depend on this field")
	return cmd
}
