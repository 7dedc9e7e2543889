// Package wasmfn exposes functions exported by WebAssembly modules as
// formula remote functions.
//
// Only exports whose parameters and single result are numeric (i32, i64,
// f32, f64) can be bound. Arguments are coerced to numbers the way formula
// arithmetic does; the result is returned as a float64.
//
//	p, err := wasmfn.LoadFile(ctx, "brewcalc.wasm")
//	remote, err := p.Functions()
//	ev := evaluator.New(evaluator.WithRemoteFunctions(remote))
package wasmfn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/rockcut/gridformula/pkg/functions"
	"github.com/rockcut/gridformula/pkg/types"
)

// Plugin is an instantiated module. Calls into one module are serialized.
type Plugin struct {
	name string
	rt   wazero.Runtime
	mod  api.Module

	mu sync.Mutex // guards calls into mod
}

// Option configures Load.
type Option func(*options)

type options struct {
	memoryPages uint32
	wasi        bool
}

// WithMemoryLimit caps linear memory, in 64KiB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(o *options) { o.memoryPages = pages }
}

// WithWASI instantiates the WASI preview1 host module before the plugin,
// for modules built with GOOS=wasip1 or wasi-sdk.
func WithWASI(enabled bool) Option {
	return func(o *options) { o.wasi = enabled }
}

// Load compiles and instantiates a module from its binary form.
func Load(ctx context.Context, name string, wasm []byte, opts ...Option) (*Plugin, error) {
	o := options{memoryPages: 256}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := wazero.NewRuntimeConfig()
	if o.memoryPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.memoryPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	if o.wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("wasmfn: %s: instantiate wasi: %w", name, err)
		}
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("wasmfn: %s: compile: %w", name, err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("wasmfn: %s: instantiate: %w", name, err)
	}
	return &Plugin{name: name, rt: rt, mod: mod}, nil
}

// LoadFile loads a module from disk, naming it after the file.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Plugin, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wasmfn: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(ctx, name, wasm, opts...)
}

// Name returns the module name.
func (p *Plugin) Name() string { return p.name }

// Close releases the runtime.
func (p *Plugin) Close(ctx context.Context) error {
	return p.rt.Close(ctx)
}

// Exports returns the names of the exports that can be bound, sorted.
func (p *Plugin) Exports() []string {
	var out []string
	for name, def := range p.mod.ExportedFunctionDefinitions() {
		if numeric(def) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func numeric(def api.FunctionDefinition) bool {
	if len(def.ResultTypes()) != 1 {
		return false
	}
	for _, t := range slices.Concat(def.ParamTypes(), def.ResultTypes()) {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

// Func binds one export.
func (p *Plugin) Func(export string) (functions.RemoteFunc, error) {
	fn := p.mod.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("wasmfn: %s: no export %q", p.name, export)
	}
	def := fn.Definition()
	if !numeric(def) {
		return nil, fmt.Errorf("wasmfn: %s: export %q does not have a numeric signature", p.name, export)
	}
	params := def.ParamTypes()
	result := def.ResultTypes()[0]

	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		if len(args) != len(params) {
			return nil, fmt.Errorf("%s expects %d argument(s), got %d", export, len(params), len(args))
		}
		stack := make([]uint64, len(params))
		for i, t := range params {
			n, err := toNumber(args[i])
			if err != nil {
				return nil, fmt.Errorf("%s argument %d: %w", export, i+1, err)
			}
			stack[i] = encode(t, n)
		}

		p.mu.Lock()
		out, err := fn.Call(ctx, stack...)
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return decode(result, out[0]), nil
	}, nil
}

// Functions binds exports under their upper-cased names. With no exports
// given, every bindable export is bound.
func (p *Plugin) Functions(exports ...string) (functions.Remote, error) {
	if len(exports) == 0 {
		exports = p.Exports()
	}
	out := make(functions.Remote, len(exports))
	for _, e := range exports {
		fn, err := p.Func(e)
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(e)] = fn
	}
	return out, nil
}

func toNumber(v interface{}) (float64, error) {
	switch x := types.Normalize(v).(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case nil, types.UndefinedType:
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got string %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", types.TypeName(v))
	}
}

func encode(t api.ValueType, n float64) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(n))
	case api.ValueTypeI64:
		return api.EncodeI64(int64(n))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(n))
	default:
		return api.EncodeF64(n)
	}
}

func decode(t api.ValueType, v uint64) float64 {
	switch t {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return float64(int64(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	default:
		return api.DecodeF64(v)
	}
}

// LoadAll loads every path and merges their functions into one table.
// Later modules win on name clashes. The returned plugins must be closed.
func LoadAll(ctx context.Context, paths []string, opts ...Option) ([]*Plugin, functions.Remote, error) {
	var plugins []*Plugin
	table := functions.Remote{}
	for _, path := range paths {
		p, err := LoadFile(ctx, path, opts...)
		if err != nil {
			closeAll(ctx, plugins)
			return nil, nil, err
		}
		plugins = append(plugins, p)
		fns, err := p.Functions()
		if err != nil {
			closeAll(ctx, plugins)
			return nil, nil, err
		}
		table = table.Merge(fns)
	}
	return plugins, table, nil
}

func closeAll(ctx context.Context, plugins []*Plugin) {
	for _, p := range plugins {
		_ = p.Close(ctx)
	}
}
