package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rockcut/gridformula/pkg/catalog"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var (
		fields []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "validate FORMULA",
		Short: "Check a formula without evaluating it",
		Long: `Check formula syntax, function names and, when --fields is given,
field names. Remote functions configured for this installation count as
known functions.`,
		Example: `  gridformula validate '=EST_OG(recipe_id) * 1000' --fields recipe_id,batch_size`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var known []string
			if cmd.Flags().Changed("fields") {
				known = fields
				if known == nil {
					known = []string{}
				}
			}
			v := catalog.Validate(args[0], catalog.Default(), known, a.remoteNames()...)

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, v)
			}
			if !v.Valid {
				return fmt.Errorf("invalid formula at position %d: %s", v.ErrorPosition, v.Error)
			}
			fmt.Fprintln(out, "valid")
			if len(v.Fields) > 0 {
				fmt.Fprintf(out, "fields: %s\n", strings.Join(v.Fields, ", "))
			}
			if len(v.Functions) > 0 {
				fmt.Fprintf(out, "functions: %s\n", strings.Join(v.Functions, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "known field names (comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the validation result as JSON")
	return cmd
}
