package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/rockcut/gridformula/pkg/analysis"
	"github.com/rockcut/gridformula/pkg/catalog"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/parser"
	"github.com/rockcut/gridformula/pkg/types"
)

const (
	historyFile = ".gridformula_history"
	promptMain  = "fx> "
)

const replHelp = `Enter a formula to evaluate it against the current row.

  :row {json}      set the current row
  :rows <file>     load all rows from a JSON array file
  :show            print the current row
  :check <formula> validate without evaluating
  :deps <formula>  list fields and functions used
  :refresh         drop cached remote results
  :help            show this help
  :quit            leave the REPL
`

func newReplCommand(opts *rootOptions) *cobra.Command {
	var (
		rowJSON  string
		rowsPath string
	)

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive formula shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseRow(rowJSON)
			if err != nil {
				return err
			}
			rows, err := readRows(cmd.InOrStdin(), rowsPath)
			if err != nil {
				return err
			}
			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := &session{
				ev:      a.ev,
				cat:     installedCatalog(a),
				remotes: a.remoteNames(),
				row:     row,
				rows:    rows,
				timeout: a.cfg.Remote.Timeout,
			}
			return s.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&rowJSON, "row", "r", "", "initial row as a JSON object")
	cmd.Flags().StringVar(&rowsPath, "rows", "", "JSON array of all rows")
	return cmd
}

// session is the state of one REPL run.
type session struct {
	ev      *evaluator.Evaluator
	cat     *catalog.Catalog
	remotes []string
	row     types.Row
	rows    []types.Row
	timeout time.Duration
}

func (s *session) run(ctx context.Context, out io.Writer) error {
	fmt.Fprintf(out, "gridformula REPL. Type :help for help.\n")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(s.complete)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			break
		}
		if err != nil {
			// Ctrl+C aborts the current line
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		if s.handle(ctx, line, out) {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

// handle executes one input line and reports whether the session should end.
func (s *session) handle(ctx context.Context, line string, out io.Writer) (exit bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ":") {
		s.evaluate(ctx, line, out)
		return false
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case ":help":
		fmt.Fprint(out, replHelp)

	case ":quit", ":exit":
		return true

	case ":row":
		row, err := parseRow(rest)
		if err != nil {
			fmt.Fprintln(out, err)
			return false
		}
		s.row = row
		fmt.Fprintf(out, "row set (%d fields)\n", len(row))

	case ":rows":
		if rest == "" {
			fmt.Fprintln(out, "usage: :rows <file>")
			return false
		}
		rows, err := readRows(strings.NewReader(""), rest)
		if err != nil {
			fmt.Fprintln(out, err)
			return false
		}
		s.rows = rows
		fmt.Fprintf(out, "%d rows loaded\n", len(rows))

	case ":show":
		_ = printJSON(out, s.row)

	case ":check":
		v := catalog.Validate(rest, s.cat, nil, s.remotes...)
		if v.Valid {
			fmt.Fprintln(out, "valid")
		} else {
			fmt.Fprintf(out, "invalid at position %d: %s\n", v.ErrorPosition, v.Error)
		}

	case ":deps":
		expr, err := parser.Compile(rest)
		if err != nil {
			fmt.Fprintln(out, err)
			return false
		}
		fmt.Fprintf(out, "fields: %s\n", strings.Join(analysis.ExtractFields(expr.AST()).Sorted(), ", "))
		fmt.Fprintf(out, "functions: %s\n", strings.Join(analysis.ExtractFunctions(expr.AST()).Sorted(), ", "))

	case ":refresh":
		if c := s.ev.Cache(); c != nil {
			if err := c.InvalidateAll(ctx); err != nil {
				fmt.Fprintln(out, err)
				return false
			}
		}
		fmt.Fprintln(out, "cache cleared")

	default:
		fmt.Fprintln(out, "unknown command. Type :help for help.")
	}
	return false
}

func (s *session) evaluate(ctx context.Context, text string, out io.Writer) {
	expr, err := parser.Compile(text)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	fmt.Fprintln(out, s.ev.EvalCell(ctx, expr, s.row, s.rows).Display())
}

// complete offers catalog function names for the identifier under the cursor.
func (s *session) complete(line string) []string {
	start := len(line)
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	word := line[start:]
	if word == "" {
		return nil
	}
	var out []string
	for _, e := range s.cat.Complete(word) {
		out = append(out, line[:start]+e.Name+"(")
	}
	return out
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
