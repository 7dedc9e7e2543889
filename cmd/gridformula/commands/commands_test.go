package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/catalog"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/types"
)

const baseConfig = `
cache:
  kind: memory
  size: 16
logger:
  level: error
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEvalCommand(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)

	out, err := run(t, "", "eval", "=qty * price", "--row", `{"qty": 2, "price": 3.5}`, "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	out, err = run(t, "", "eval", `="Lot " & lot`, "-r", `{"lot": 42}`, "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "Lot 42\n", out)
}

func TestEvalEachReadsStdin(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)

	out, err := run(t, `[{"qty": 1}, {"qty": 2.5}, {"qty": "x"}]`, "eval", "=qty * 2", "--rows", "-", "--each", "-c", cfg)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2", lines[0])
	assert.Equal(t, "5", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "#ERR: "), lines[2])
}

func TestEvalRowSetFunctions(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)
	rows := writeFile(t, "rows.json", `[{"qty": 1}, {"qty": 4}, {"qty": 5}]`)

	out, err := run(t, "", "eval", `=COLSUM("qty") / ROWCOUNT()`, "--rows", rows, "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "3.3333333333333335\n", out)
}

func TestEvalErrors(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)

	_, err := run(t, "", "eval", "=1/0", "-c", cfg)
	require.Error(t, err)
	assert.Equal(t, types.ErrDivisionByZero, types.CodeOf(err))

	_, err = run(t, "", "eval", "=A + ", "-c", cfg)
	require.Error(t, err)
	assert.True(t, types.IsSyntax(err))

	_, err = run(t, "", "eval", "=1", "--row", "[1]", "-c", cfg)
	assert.ErrorContains(t, err, "invalid row JSON")

	_, err = run(t, "", "eval", "=1", "--each", "-c", cfg)
	assert.ErrorContains(t, err, "--each requires --rows")
}

func TestEvalJSONOutput(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)

	out, err := run(t, "", "eval", "=1/0", "--json", "-c", cfg)
	require.NoError(t, err)
	var got cellOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "division by zero", got.Error)
	assert.Equal(t, string(types.ErrDivisionByZero), got.Code)
	require.NotNil(t, got.Position)
	assert.Equal(t, 2, *got.Position)

	out, err = run(t, "", "eval", "=0", "--json", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"value": 0`)
}

func TestEvalRemoteFunction(t *testing.T) {
	var seen []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		var req struct {
			Calls []struct {
				Function string                 `json:"function"`
				Args     map[string]interface{} `json:"args"`
			} `json:"calls"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		results := make([]map[string]interface{}, len(req.Calls))
		for i, c := range req.Calls {
			seen = append(seen, map[string]interface{}{"function": c.Function, "args": c.Args})
			results[i] = map[string]interface{}{"status": "ok", "value": 37}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer srv.Close()

	cfg := writeFile(t, "config.yaml", baseConfig+`
remote:
  base_url: `+srv.URL+`
  token: s3cret
  batch_window: 0s
`)

	out, err := run(t, "", "eval", "=EST_IBU(recipe_id) + 1", "-r", `{"recipe_id": 9}`, "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "38\n", out)
	require.Len(t, seen, 1)
	assert.Equal(t, "est_ibu", seen[0]["function"])
	assert.Equal(t, map[string]interface{}{"recipe_id": 9.0}, seen[0]["args"])
}

func TestValidateCommand(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)

	out, err := run(t, "", "validate", "=EST_OG(recipe_id) * 1000", "--fields", "recipe_id", "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "valid\nfields: recipe_id\nfunctions: EST_OG\n", out)

	_, err = run(t, "", "validate", "=EST_OG(recipe_id) + qty", "--fields", "recipe_id", "-c", cfg)
	assert.EqualError(t, err, "invalid formula at position 21: unknown field: qty")

	out, err = run(t, "", "validate", "=NOPE(1)", "--json", "-c", cfg)
	require.NoError(t, err)
	var v catalog.Validation
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.False(t, v.Valid)
	assert.Equal(t, types.ErrUnknownFunction, v.Code)
	assert.Equal(t, 1, v.ErrorPosition)
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := run(t, "", "analyze", "=IF(qty > 0, price * qty, COALESCE(fallback, 0))")
	require.NoError(t, err)
	assert.Equal(t, "fields: fallback, price, qty\nfunctions: COALESCE, IF\n", out)

	cols := writeFile(t, "columns.json", `{
		"total": "=subtotal + tax",
		"subtotal": "=qty * price",
		"tax": "=subtotal * 0.2"
	}`)
	out, err = run(t, "", "analyze", "--columns", cols, "--dependents", "qty")
	require.NoError(t, err)
	assert.Equal(t, "order: subtotal, tax, total\ndependents of qty: subtotal, tax, total\n", out)

	cyclic := writeFile(t, "cyclic.json", `{"a": "=b + 1", "b": "=a * 2"}`)
	_, err = run(t, "", "analyze", "--columns", cyclic)
	require.Error(t, err)
	assert.Equal(t, types.ErrCircularReference, types.CodeOf(err))
	assert.Contains(t, err.Error(), "circular reference: a -> b -> a")

	_, err = run(t, "", "analyze")
	assert.ErrorContains(t, err, "a formula or --columns is required")
}

func TestFunctionsCommand(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)

	out, err := run(t, "", "functions", "est_", "-c", cfg)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasPrefix(lines[1], "EST_IBU"))
	assert.Contains(t, lines[1], "remote")
	assert.True(t, strings.HasPrefix(lines[2], "EST_OG"))

	out, err = run(t, "", "functions", "--json", "-c", cfg)
	require.NoError(t, err)
	var entries []catalog.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Equal(t, catalog.Default().Len(), len(entries))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog "+catalog.Version)
}

func TestBreakerSettingsFromConfig(t *testing.T) {
	cfg := writeFile(t, "config.yaml", baseConfig)
	a, err := (&rootOptions{configFile: cfg}).loadApp(NewRootCmd())
	require.NoError(t, err)
	defer a.Close()

	s := breakerSettings(a.cfg.Breaker)
	assert.Equal(t, uint32(100), s.MaxRequests)
	assert.Nil(t, a.client)
	assert.IsType(t, &cache.Memory{}, a.cache)
}

func newSession() *session {
	return &session{
		ev:  evaluator.New(evaluator.WithCache(cache.NewMemory(8, 0))),
		cat: catalog.Default(),
		row: types.Row{},
	}
}

func TestSessionHandle(t *testing.T) {
	s := newSession()
	ctx := context.Background()
	var out bytes.Buffer

	assert.False(t, s.handle(ctx, `:row {"qty": 3}`, &out))
	assert.False(t, s.handle(ctx, "=qty * 2", &out))
	assert.False(t, s.handle(ctx, ":check =FOO(1)", &out))
	assert.False(t, s.handle(ctx, ":deps =A + B(c)", &out))
	assert.False(t, s.handle(ctx, ":refresh", &out))
	assert.False(t, s.handle(ctx, ":bogus", &out))
	assert.False(t, s.handle(ctx, "=1 +", &out))
	assert.True(t, s.handle(ctx, ":quit", &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "row set (1 fields)", lines[0])
	assert.Equal(t, "6", lines[1])
	assert.Equal(t, "invalid at position 1: unknown function: FOO", lines[2])
	assert.Equal(t, "fields: A, c", lines[3])
	assert.Equal(t, "functions: B", lines[4])
	assert.Equal(t, "cache cleared", lines[5])
	assert.Equal(t, "unknown command. Type :help for help.", lines[6])
	assert.Contains(t, lines[7], string(types.ErrUnexpectedEnd))
}

func TestSessionRowsAndShow(t *testing.T) {
	s := newSession()
	rows := writeFile(t, "rows.json", `[{"qty": 1}, {"qty": 2}]`)
	var out bytes.Buffer

	s.handle(context.Background(), ":rows "+rows, &out)
	assert.Equal(t, "2 rows loaded\n", out.String())
	assert.Len(t, s.rows, 2)

	out.Reset()
	s.handle(context.Background(), "=COLSUM(\"qty\")", &out)
	assert.Equal(t, "3\n", out.String())

	out.Reset()
	s.handle(context.Background(), ":show", &out)
	assert.JSONEq(t, `{}`, out.String())
}

func TestSessionComplete(t *testing.T) {
	s := newSession()
	assert.Equal(t, []string{"=EST_IBU(", "=EST_OG("}, s.complete("=est_"))
	assert.Equal(t, []string{"=1 + ROWCOUNT(", "=1 + ROWINDEX("}, s.complete("=1 + ROW"))
	assert.Nil(t, s.complete("=1 + "))
}
