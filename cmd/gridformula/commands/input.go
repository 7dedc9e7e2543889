package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rockcut/gridformula/pkg/types"
)

// parseRow decodes a JSON object. An empty string is an empty row.
func parseRow(s string) (types.Row, error) {
	row := types.Row{}
	if strings.TrimSpace(s) == "" {
		return row, nil
	}
	if err := decodeJSON(strings.NewReader(s), &row); err != nil {
		return nil, fmt.Errorf("invalid row JSON: %w", err)
	}
	return row, nil
}

// readRows decodes a JSON array of rows from path, or from stdin when path
// is "-". An empty path yields no rows.
func readRows(stdin io.Reader, path string) ([]types.Row, error) {
	if path == "" {
		return nil, nil
	}
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open rows file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var rows []types.Row
	if err := decodeJSON(r, &rows); err != nil {
		return nil, fmt.Errorf("invalid rows JSON: %w", err)
	}
	return rows, nil
}

// readColumns decodes a JSON object mapping column names to formula text.
func readColumns(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns file: %w", err)
	}
	cols := map[string]string{}
	if err := decodeJSON(bytes.NewReader(data), &cols); err != nil {
		return nil, fmt.Errorf("invalid columns JSON: %w", err)
	}
	return cols, nil
}

func decodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cellOutput is the JSON rendering of a cell state.
type cellOutput struct {
	Value    interface{} `json:"value,omitempty"`
	Display  string      `json:"display"`
	Error    string      `json:"error,omitempty"`
	Code     string      `json:"code,omitempty"`
	Position *int        `json:"position,omitempty"`
}

func newCellOutput(s types.CellState) cellOutput {
	out := cellOutput{Display: s.Display()}
	if !s.IsError() {
		out.Value = s.Value
		return out
	}
	out.Error = s.Message
	out.Code = string(types.CodeOf(s.Err))
	if pos := types.PositionOf(s.Err); pos >= 0 {
		out.Position = &pos
	}
	return out
}
