package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rockcut/gridformula/pkg/catalog"
)

func newFunctionsCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "functions [PREFIX]",
		Aliases: []string{"fn"},
		Short:   "List the functions a formula can call",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			entries := installedCatalog(a).Complete(prefix)

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, entries)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tSIGNATURE\tDESCRIPTION")
			for _, e := range entries {
				kind := "builtin"
				if e.Remote {
					kind = "remote"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, kind, e.Signature, e.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog entries as JSON")
	return cmd
}

// installedCatalog extends the default catalog with remote functions that
// have no entry of their own, such as WASM plugin exports.
func installedCatalog(a *app) *catalog.Catalog {
	cat := catalog.Default()
	var extra []catalog.Entry
	for _, name := range a.remoteNames() {
		if cat.Has(name) {
			continue
		}
		extra = append(extra, catalog.Entry{
			Name:      strings.ToUpper(name),
			Signature: strings.ToUpper(name) + "(...)",
			Remote:    true,
		})
	}
	if len(extra) == 0 {
		return cat
	}
	return cat.With(extra...)
}
