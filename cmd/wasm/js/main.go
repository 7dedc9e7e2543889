//go:build js && wasm

// Command gridformula-js is the WebAssembly entrypoint for browser and Node.js.
//
// It exposes a global `gridformula` object with the following API:
//
//	gridformula.version()                            → string
//	gridformula.evaluate(formula, rowJSON, rowsJSON) → { value, display } or { error, position }
//	gridformula.validate(formula, fieldsJSON)        → { valid, error, position, fields, functions }
//	gridformula.compile(formula)                     → { evaluate(rowJSON, rowsJSON) }  (throws on syntax error)
//
// Build:
//
//	GOOS=js GOARCH=wasm go build -o gridformula.wasm ./cmd/wasm/js/
//
// Usage in the browser:
//
//	<script src="wasm_exec.js"></script>
//	<script>
//	  const r = gridformula.evaluate('=qty * price', JSON.stringify({qty: 2, price: 3.5}))
//	  console.log(r.display) // 7
//	</script>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/rockcut/gridformula"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/types"
)

// jsThrow panics with a JS Error so the caller receives a thrown exception.
func jsThrow(msg string) {
	js.Global().Get("Error").New(msg)
	panic(msg)
}

func decodeRows(fn string, args []js.Value) (types.Row, []types.Row) {
	row := types.Row{}
	var rows []types.Row
	if len(args) > 1 && args[1].Type() == js.TypeString {
		if err := json.Unmarshal([]byte(args[1].String()), &row); err != nil {
			jsThrow(fmt.Sprintf("%s: invalid row JSON: %v", fn, err))
		}
	}
	if len(args) > 2 && args[2].Type() == js.TypeString {
		if err := json.Unmarshal([]byte(args[2].String()), &rows); err != nil {
			jsThrow(fmt.Sprintf("%s: invalid rows JSON: %v", fn, err))
		}
	}
	return row, rows
}

// stateObject converts a cell state to a plain JS object. Values go through
// JSON so arrays and objects arrive as JS values.
func stateObject(s types.CellState) interface{} {
	if s.IsError() {
		return js.ValueOf(map[string]interface{}{
			"error":    s.Message,
			"position": types.PositionOf(s.Err),
		})
	}
	out, err := json.Marshal(s.Value)
	if err != nil {
		jsThrow(fmt.Sprintf("marshal result: %v", err))
	}
	return js.ValueOf(map[string]interface{}{
		"value":   js.Global().Get("JSON").Call("parse", string(out)),
		"display": s.Display(),
	})
}

// jsEvaluate implements gridformula.evaluate(formula, rowJSON, rowsJSON).
func jsEvaluate(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		jsThrow("gridformula.evaluate requires at least 1 argument: formula (string)")
	}
	row, rows := decodeRows("gridformula.evaluate", args)
	return stateObject(gridformula.Evaluate(context.Background(), args[0].String(), row, rows, nil, nil,
		evaluator.WithConcurrency(false),
	))
}

// jsValidate implements gridformula.validate(formula, fieldsJSON).
func jsValidate(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		jsThrow("gridformula.validate requires at least 1 argument: formula (string)")
	}
	var fields []string
	if len(args) > 1 && args[1].Type() == js.TypeString {
		if err := json.Unmarshal([]byte(args[1].String()), &fields); err != nil {
			jsThrow(fmt.Sprintf("gridformula.validate: invalid fields JSON: %v", err))
		}
	}
	v := gridformula.Validate(args[0].String(), fields)
	return js.ValueOf(map[string]interface{}{
		"valid":     v.Valid,
		"error":     v.Error,
		"position":  v.ErrorPosition,
		"fields":    toJSArray(v.Fields),
		"functions": toJSArray(v.Functions),
	})
}

func toJSArray(names []string) []interface{} {
	out := make([]interface{}, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

// jsCompile implements gridformula.compile(formula) → { evaluate(rowJSON, rowsJSON) }.
func jsCompile(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		jsThrow("gridformula.compile requires 1 argument: formula (string)")
	}
	expr, err := gridformula.Parse(args[0].String())
	if err != nil {
		jsThrow(fmt.Sprintf("gridformula.compile: %v", err))
	}

	ev := evaluator.New(evaluator.WithConcurrency(false))

	evalFn := js.FuncOf(func(_ js.Value, innerArgs []js.Value) interface{} {
		// shift so decodeRows sees (formula, row, rows)
		row, rows := decodeRows("compiled.evaluate", append([]js.Value{js.Undefined()}, innerArgs...))
		return stateObject(ev.EvalCell(context.Background(), expr, row, rows))
	})

	return js.ValueOf(map[string]interface{}{"evaluate": evalFn})
}

func main() {
	api := map[string]interface{}{
		"evaluate": js.FuncOf(jsEvaluate),
		"validate": js.FuncOf(jsValidate),
		"compile":  js.FuncOf(jsCompile),
		"version": js.FuncOf(func(_ js.Value, _ []js.Value) interface{} {
			return gridformula.Version()
		}),
	}
	js.Global().Set("gridformula", js.ValueOf(api))

	// Block forever; the JS event loop owns execution from here.
	select {}
}
