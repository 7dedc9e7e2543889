//go:build wasip1

// Command gridformula-wasi is the WASI (wasip1) entrypoint for hosts that
// want to evaluate formulas without linking Go code.
//
// Protocol: single JSON object on stdin → single JSON object on stdout.
//
//	stdin:  { "formula": "=qty * price", "row": {...}, "rows": [{...}, ...] }
//	stdout: { "value": <any JSON value> }                  on success
//	        { "error": "<message>", "position": <int> }    on failure (exit code 1)
//
// Remote functions are not available inside the module; calls to names that
// are not built in resolve to an unknown function error.
//
// Build:
//
//	GOOS=wasip1 GOARCH=wasm go build -o gridformula.wasm ./cmd/wasm/wasi/
//
// Usage with wasmtime CLI:
//
//	echo '{"formula":"=ROUND(og * 1000, 0)","row":{"og":1.0504}}' | wasmtime gridformula.wasm
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rockcut/gridformula"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/types"
)

type request struct {
	Formula string      `json:"formula"`
	Row     types.Row   `json:"row"`
	Rows    []types.Row `json:"rows"`
}

type response struct {
	Value    interface{} `json:"value,omitempty"`
	Error    string      `json:"error,omitempty"`
	Position *int        `json:"position,omitempty"`
}

func writeResponse(r response, exitCode int) {
	_ = json.NewEncoder(os.Stdout).Encode(r)
	os.Exit(exitCode)
}

func main() {
	var req request
	dec := json.NewDecoder(os.Stdin)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeResponse(response{Error: "invalid request JSON: " + err.Error()}, 1)
	}
	if req.Row == nil {
		req.Row = types.Row{}
	}

	state := gridformula.Evaluate(context.Background(), req.Formula, req.Row, req.Rows, nil, nil,
		evaluator.WithConcurrency(false),
	)
	if state.IsError() {
		r := response{Error: state.Message}
		if pos := types.PositionOf(state.Err); pos >= 0 {
			r.Position = &pos
		}
		writeResponse(r, 1)
	}

	writeResponse(response{Value: state.Value}, 0)
}
