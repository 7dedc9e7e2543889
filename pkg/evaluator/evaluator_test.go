package evaluator_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/functions"
	"github.com/rockcut/gridformula/pkg/parser"
	"github.com/rockcut/gridformula/pkg/types"
)

// Helper functions

func eval(t *testing.T, formula string, row types.Row, opts ...evaluator.EvalOption) interface{} {
	t.Helper()
	v, err := evalErr(t, formula, row, opts...)
	if err != nil {
		t.Fatalf("Eval(%q) failed: %v", formula, err)
	}
	return v
}

func evalErr(t *testing.T, formula string, row types.Row, opts ...evaluator.EvalOption) (interface{}, error) {
	t.Helper()
	expr, err := parser.Parse(formula)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", formula, err)
	}
	return evaluator.New(opts...).Eval(context.Background(), expr, row, []types.Row{row})
}

func expectCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got none", code)
	}
	if got := types.CodeOf(err); got != code {
		t.Fatalf("expected error %s, got %s (%v)", code, got, err)
	}
}

// counter returns a remote function that counts its invocations and
// returns value.
func counter(value interface{}) (functions.RemoteFunc, *int64) {
	var n int64
	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&n, 1)
		return value, nil
	}, &n
}

// Arithmetic and literals

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		formula string
		row     types.Row
		want    interface{}
	}{
		{"=2*(3+4)", nil, 14.0},
		{"=1 + 2 * 3", nil, 7.0},
		{"=10 / 4", nil, 2.5},
		{"=7 - 10", nil, -3.0},
		{"=-x", types.Row{"x": 3}, -3.0},
		{"=A + B", types.Row{"A": 1, "B": 2.5}, 3.5},
		{"=qty * price", types.Row{"qty": "3", "price": 1.5}, 4.5},
		{"=missing + 1", types.Row{}, 1.0},
		{"=flag + 1", types.Row{"flag": true}, 2.0},
		{"=n + 1", types.Row{"n": nil}, 1.0},
		{"=int64val * 2", types.Row{"int64val": int64(21)}, 42.0},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got := eval(t, tt.formula, tt.row)
			if got != tt.want {
				t.Errorf("got %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}

func TestEvalStrings(t *testing.T) {
	tests := []struct {
		formula string
		row     types.Row
		want    interface{}
	}{
		{`="Lot "+lot_number`, types.Row{"lot_number": 42}, "Lot 42"},
		{`="Lot " & lot_number`, types.Row{"lot_number": 42}, "Lot 42"},
		{`=1 & 2`, nil, "12"},
		{`="a" & missing & "b"`, types.Row{}, "ab"},
		{`=name + "!"`, types.Row{"name": "Pale Ale"}, "Pale Ale!"},
		{`="5" + 1`, nil, 6.0},
		{`=2.5 & ""`, nil, "2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got := eval(t, tt.formula, tt.row)
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEvalComparisonAndLogic(t *testing.T) {
	tests := []struct {
		formula string
		row     types.Row
		want    interface{}
	}{
		{"=1 < 2", nil, true},
		{"=2 <= 2", nil, true},
		{"=3 > 4", nil, false},
		{`="apple" < "banana"`, nil, true},
		{`="10" > 9`, nil, true},
		{"=1 == 1", nil, true},
		{`=1 == "1"`, nil, false},
		{"=missing == n", types.Row{"n": nil}, true},
		{"=a != b", types.Row{"a": "x", "b": "y"}, true},
		{"=1 && 0", nil, false},
		{"=0 || 2", nil, true},
		{`=!""`, nil, true},
		{"=!x", types.Row{"x": 5}, false},
		{"=x > 1 ? \"big\" : \"small\"", types.Row{"x": 3}, "big"},
		{"=x > 1 ? \"big\" : \"small\"", types.Row{"x": 0}, "small"},
		{"=missing ? 1 : 2", types.Row{}, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got := eval(t, tt.formula, tt.row)
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEvalMissingFieldIsUndefined(t *testing.T) {
	got := eval(t, "=nope", types.Row{"other": 1})
	if !types.IsUndefined(got) {
		t.Fatalf("expected undefined, got %#v", got)
	}
}

// Errors

func TestEvalTypeMismatch(t *testing.T) {
	_, err := evalErr(t, `="abc" * 2`, nil)
	expectCode(t, err, types.ErrTypeMismatch)
	var fe *types.Error
	if !errors.As(err, &fe) || fe.Position != 7 {
		t.Fatalf("expected mismatch at operator position 7, got %v", err)
	}

	_, err = evalErr(t, `="abc" < 2`, nil)
	expectCode(t, err, types.ErrTypeMismatch)

	_, err = evalErr(t, `=-name`, types.Row{"name": "Stout"})
	expectCode(t, err, types.ErrTypeMismatch)
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := evalErr(t, "=A / 0", types.Row{"A": 1})
	expectCode(t, err, types.ErrDivisionByZero)
}

func TestEvalUnknownFunction(t *testing.T) {
	expr := parser.MustParse("=UNKNOWN_FN(1)")
	state := evaluator.New().EvalCell(context.Background(), expr, types.Row{}, nil)
	if state.Status != types.CellError {
		t.Fatalf("expected error state, got %v", state.Status)
	}
	if types.CodeOf(state.Err) != types.ErrUnknownFunction {
		t.Fatalf("expected UnknownFunction, got %v", state.Err)
	}
	if state.Message != "unknown function: UNKNOWN_FN" {
		t.Errorf("unexpected message %q", state.Message)
	}
}

func TestEvalArgumentCount(t *testing.T) {
	_, err := evalErr(t, "=ABS(1, 2)", nil)
	expectCode(t, err, types.ErrArgumentCount)
	_, err = evalErr(t, "=POWER(2)", nil)
	expectCode(t, err, types.ErrArgumentCount)
}

func TestEvalErrorInUnselectedBranchIsIgnored(t *testing.T) {
	got := eval(t, `=1 ? 2 : UNKNOWN_FN()`, nil)
	if got != 2.0 {
		t.Fatalf("got %v", got)
	}
}

func TestEvalLogicalMasksRightError(t *testing.T) {
	if got := eval(t, "=0 && UNKNOWN_FN()", nil); got != false {
		t.Fatalf("got %v", got)
	}
	if got := eval(t, "=1 || UNKNOWN_FN()", nil); got != true {
		t.Fatalf("got %v", got)
	}
	_, err := evalErr(t, "=1 && UNKNOWN_FN()", nil)
	expectCode(t, err, types.ErrUnknownFunction)
}

// Remote functions

func TestEvalRemoteFunction(t *testing.T) {
	var gotArgs []interface{}
	onHand := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		gotArgs = args
		return 12, nil
	}
	got := eval(t, "=INVENTORY_ON_HAND(ingredient_id) * 2", types.Row{"ingredient_id": 7},
		evaluator.WithRemoteFunction("INVENTORY_ON_HAND", onHand))
	if got != 24.0 {
		t.Fatalf("got %v", got)
	}
	if len(gotArgs) != 1 || gotArgs[0] != 7.0 {
		t.Fatalf("unexpected args %#v", gotArgs)
	}
}

func TestEvalRemoteFailure(t *testing.T) {
	failing := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, errors.New("recipe 9 not found")
	}
	expr := parser.MustParse("=EST_IBU(9)")
	ev := evaluator.New(evaluator.WithRemoteFunction("EST_IBU", failing))
	state := ev.EvalCell(context.Background(), expr, types.Row{}, nil)
	if !state.IsError() {
		t.Fatalf("expected error state, got %v", state)
	}
	expectCode(t, state.Err, types.ErrRemoteFunction)
	if state.Message != "EST_IBU: recipe 9 not found" {
		t.Errorf("unexpected message %q", state.Message)
	}
}

func TestEvalRemotePanicIsContained(t *testing.T) {
	boom := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		panic("boom")
	}
	_, err := evalErr(t, "=BOOM()", nil, evaluator.WithRemoteFunction("BOOM", boom))
	expectCode(t, err, types.ErrRemoteFunction)
}

func TestConditionalShortCircuit(t *testing.T) {
	remoteA, countA := counter("A")
	remoteB, countB := counter("B")
	opts := evaluator.WithRemoteFunctions(functions.Remote{"REMOTE_A": remoteA, "REMOTE_B": remoteB})

	got := eval(t, "=IF_FLAG ? REMOTE_A(x) : REMOTE_B(x)", types.Row{"IF_FLAG": true, "x": 1}, opts)
	if got != "A" {
		t.Fatalf("got %v", got)
	}
	if n := atomic.LoadInt64(countB); n != 0 {
		t.Fatalf("REMOTE_B was invoked %d times", n)
	}
	if n := atomic.LoadInt64(countA); n != 1 {
		t.Fatalf("REMOTE_A was invoked %d times", n)
	}
}

func TestIfFunctionShortCircuit(t *testing.T) {
	remoteB, countB := counter("B")
	got := eval(t, `=IF(1, "A", REMOTE_B())`, nil, evaluator.WithRemoteFunction("REMOTE_B", remoteB))
	if got != "A" || atomic.LoadInt64(countB) != 0 {
		t.Fatalf("got %v, REMOTE_B calls %d", got, atomic.LoadInt64(countB))
	}
}

func TestRemoteArgumentsResolveConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	slow := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return args[0], nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("sibling never started")
		}
	}
	got := eval(t, "=SLOW(1) + SLOW(2)", nil, evaluator.WithRemoteFunction("SLOW", slow))
	if got != 3.0 {
		t.Fatalf("got %v", got)
	}
}

func TestRemoteWinsOverBuiltinByDefault(t *testing.T) {
	remoteAbs, calls := counter(99)
	got := eval(t, "=ABS(-1)", nil, evaluator.WithRemoteFunction("ABS", remoteAbs))
	if got != 99.0 || atomic.LoadInt64(calls) != 1 {
		t.Fatalf("expected the remote ABS, got %v", got)
	}

	got = eval(t, "=ABS(-1)", nil,
		evaluator.WithRemoteFunction("ABS", remoteAbs),
		evaluator.WithBuiltinPrecedence(true))
	if got != 1.0 {
		t.Fatalf("expected the built-in ABS, got %v", got)
	}
}

func TestConcurrentRows(t *testing.T) {
	double := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return args[0].(float64) * 2, nil
	}
	ev := evaluator.New(evaluator.WithRemoteFunction("DOUBLE", double))
	expr := parser.MustParse(`=DOUBLE(n) + n & "-" & name`)

	rows := make([]types.Row, 100)
	for i := range rows {
		rows[i] = types.Row{"n": i, "name": fmt.Sprintf("row%d", i)}
	}

	results := make([]interface{}, len(rows))
	var wg sync.WaitGroup
	for i := range rows {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := ev.Eval(context.Background(), expr, rows[i], rows)
			if err != nil {
				t.Errorf("row %d: %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		want := fmt.Sprintf("%d-row%d", i*3, i)
		if got != want {
			t.Errorf("row %d: got %v, want %s", i, got, want)
		}
	}
}

func TestEvalRows(t *testing.T) {
	ev := evaluator.New(evaluator.WithRowParallelism(3))
	expr := parser.MustParse("=qty / total")
	rows := []types.Row{{"qty": 1, "total": 4}, {"qty": 1, "total": 0}, {"qty": 3, "total": 4}}

	states := ev.EvalRows(context.Background(), expr, rows)
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	if states[0].Value != 0.25 || states[2].Value != 0.75 {
		t.Errorf("unexpected values %v, %v", states[0].Value, states[2].Value)
	}
	if !states[1].IsError() || types.CodeOf(states[1].Err) != types.ErrDivisionByZero {
		t.Errorf("expected division by zero in row 1, got %+v", states[1])
	}
}

func TestGoDeliversOneState(t *testing.T) {
	expr := parser.MustParse("=1+1")
	ch := evaluator.New().Go(context.Background(), expr, nil, nil)
	state, ok := <-ch
	if !ok || state.Value != 2.0 {
		t.Fatalf("unexpected state %+v", state)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after one state")
	}
}

func TestEvalTimeout(t *testing.T) {
	hang := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err := evalErr(t, "=HANG()", nil,
		evaluator.WithRemoteFunction("HANG", hang),
		evaluator.WithTimeout(20*time.Millisecond))
	expectCode(t, err, types.ErrRemoteFunction)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
}

// Caching

func TestCacheAtMostOnceBetweenInvalidations(t *testing.T) {
	remote, calls := counter(5)
	c := cache.NewMemory(16, 0)
	ev := evaluator.New(evaluator.WithRemoteFunction("EST_OG", remote), evaluator.WithCache(c))
	expr := parser.MustParse("=EST_OG(recipe_id)")
	row := types.Row{"recipe_id": 3}

	for i := 0; i < 5; i++ {
		if _, err := ev.Eval(context.Background(), expr, row, nil); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt64(calls); n != 1 {
		t.Fatalf("expected 1 dispatch, got %d", n)
	}

	_ = c.InvalidateAll(context.Background())
	for i := 0; i < 3; i++ {
		_, _ = ev.Eval(context.Background(), expr, row, nil)
	}
	if n := atomic.LoadInt64(calls); n != 2 {
		t.Fatalf("expected 2 dispatches after invalidation, got %d", n)
	}
}

func TestCacheConcurrentMissesShareDispatch(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	slow := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return 1, nil
	}
	ev := evaluator.New(evaluator.WithRemoteFunction("SLOW", slow), evaluator.WithCache(cache.NewMemory(4, 0)))
	expr := parser.MustParse("=SLOW(1)")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ev.Eval(context.Background(), expr, nil, nil)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt64(&calls); n < 1 || n > 10 {
		t.Fatalf("unexpected dispatch count %d", n)
	}
	// Everything after the first settled dispatch is a hit.
	_, _ = ev.Eval(context.Background(), expr, nil, nil)
	before := atomic.LoadInt64(&calls)
	_, _ = ev.Eval(context.Background(), expr, nil, nil)
	if atomic.LoadInt64(&calls) != before {
		t.Fatal("expected a cache hit")
	}
}

func TestCacheSkipsResultsInvalidatedInFlight(t *testing.T) {
	c := cache.NewMemory(4, 0)
	remote := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		_ = c.InvalidateAll(ctx)
		return 1, nil
	}
	ev := evaluator.New(evaluator.WithRemoteFunction("R", remote), evaluator.WithCache(c))
	if _, err := ev.Eval(context.Background(), parser.MustParse("=R()"), nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatal("result computed across an invalidation must not be stored")
	}
}

func TestCacheSharedDispatchOutlivesFirstCaller(t *testing.T) {
	var calls int64
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	ev := evaluator.New(evaluator.WithRemoteFunction("SLOW", slow), evaluator.WithCache(cache.NewMemory(4, 0)))
	expr := parser.MustParse("=SLOW(1)")

	actx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	aErr := make(chan error, 1)
	go func() {
		_, err := ev.Eval(actx, expr, nil, nil)
		aErr <- err
	}()
	<-started

	type outcome struct {
		v   interface{}
		err error
	}
	b := make(chan outcome, 1)
	go func() {
		v, err := ev.Eval(context.Background(), expr, nil, nil)
		b <- outcome{v, err}
	}()

	err := <-aErr
	expectCode(t, err, types.ErrRemoteFunction)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first caller: expected deadline exceeded, got %v", err)
	}

	close(release)
	select {
	case got := <-b:
		if got.err != nil {
			t.Fatalf("second caller failed with the first caller's deadline: %v", got.err)
		}
		if got.v != 7.0 {
			t.Fatalf("second caller got %v, want 7", got.v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not resolve")
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("expected the second caller to share the dispatch, got %d dispatches", n)
	}
}

func TestCacheEvalAfterInvalidationStartsFreshDispatch(t *testing.T) {
	c := cache.NewMemory(4, 0)
	var calls int64
	oldStarted := make(chan struct{})
	releaseOld := make(chan struct{})
	remote := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			close(oldStarted)
			<-releaseOld
			return "old", nil
		}
		return "new", nil
	}
	ev := evaluator.New(evaluator.WithRemoteFunction("STOCK", remote), evaluator.WithCache(c))
	expr := parser.MustParse("=STOCK(1)")

	oldDone := make(chan interface{}, 1)
	go func() {
		v, _ := ev.Eval(context.Background(), expr, nil, nil)
		oldDone <- v
	}()
	<-oldStarted
	if err := c.InvalidateAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	fresh := make(chan interface{}, 1)
	go func() {
		v, err := ev.Eval(context.Background(), expr, nil, nil)
		if err != nil {
			t.Errorf("eval after invalidation: %v", err)
		}
		fresh <- v
	}()
	select {
	case v := <-fresh:
		if v != "new" {
			t.Fatalf("eval after invalidation got %v, want new", v)
		}
	case <-time.After(2 * time.Second):
		close(releaseOld)
		t.Fatal("eval after invalidation joined the dispatch started before it")
	}

	close(releaseOld)
	if v := <-oldDone; v != "old" {
		t.Fatalf("first eval got %v, want old", v)
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("expected 2 dispatches, got %d", n)
	}

	v, ok, _ := c.Get(context.Background(), evaluator.CacheKey("STOCK", []interface{}{1.0}, ""))
	if !ok || v != "new" {
		t.Fatalf("cache holds %v (present %v), want new", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", c.Len())
	}
}

func TestLocalFailureCancelsRemoteSibling(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	// SLOW ignores its context.
	slow := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		<-release
		return 1, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := evalErr(t, "=1/0 + SLOW(x)", types.Row{"x": 1},
			evaluator.WithRemoteFunction("SLOW", slow), evaluator.WithConcurrency(true))
		done <- err
	}()
	select {
	case err := <-done:
		expectCode(t, err, types.ErrDivisionByZero)
	case <-time.After(2 * time.Second):
		t.Fatal("local failure did not abandon the remote sibling")
	}
}

func TestCacheRowIdentity(t *testing.T) {
	remote, calls := counter(1)
	rowID := func(r types.Row) string { return fmt.Sprint(r["id"]) }
	expr := parser.MustParse("=R(1)")

	shared := evaluator.New(evaluator.WithRemoteFunction("R", remote), evaluator.WithCache(cache.NewMemory(8, 0)))
	_, _ = shared.Eval(context.Background(), expr, types.Row{"id": 1}, nil)
	_, _ = shared.Eval(context.Background(), expr, types.Row{"id": 2}, nil)
	if n := atomic.LoadInt64(calls); n != 1 {
		t.Fatalf("default identity should share results across rows, got %d calls", n)
	}

	perRow := evaluator.New(evaluator.WithRemoteFunction("R", remote),
		evaluator.WithCache(cache.NewMemory(8, 0)), evaluator.WithRowIdentity(rowID))
	_, _ = perRow.Eval(context.Background(), expr, types.Row{"id": 1}, nil)
	_, _ = perRow.Eval(context.Background(), expr, types.Row{"id": 2}, nil)
	if n := atomic.LoadInt64(calls); n != 3 {
		t.Fatalf("row identity should separate rows, got %d calls", n)
	}
}

func TestCacheKey(t *testing.T) {
	a := evaluator.CacheKey("EST_IBU", []interface{}{1.0}, "")
	if a != evaluator.CacheKey("est_ibu", []interface{}{1}, "") {
		t.Error("name case and numeric type must not change the key")
	}
	if a == evaluator.CacheKey("EST_IBU", []interface{}{"1"}, "") {
		t.Error("string and number arguments must not collide")
	}
	if a == evaluator.CacheKey("EST_IBU", []interface{}{1.0}, "row-1") {
		t.Error("row identity must be part of the key")
	}
	if evaluator.CacheKey("F", []interface{}{"ab", "c"}, "") == evaluator.CacheKey("F", []interface{}{"a", "bc"}, "") {
		t.Error("argument boundaries must be encoded")
	}
}

// Built-ins

func TestBuiltins(t *testing.T) {
	row := types.Row{"name": "  Hazy IPA ", "abv": 6.456, "blank": "", "n": -7}
	tests := []struct {
		formula string
		want    interface{}
	}{
		{"=ABS(n)", 7.0},
		{"=ROUND(abv, 1)", 6.5},
		{"=ROUND(2.675, 2)", 2.68},
		{"=ROUND(-2.5)", -3.0},
		{"=ROUNDUP(1.21, 1)", 1.3},
		{"=ROUNDDOWN(1.29, 1)", 1.2},
		{"=FLOOR(1.9)", 1.0},
		{"=CEIL(1.1)", 2.0},
		{"=SQRT(16)", 4.0},
		{"=POWER(2, 10)", 1024.0},
		{"=MOD(-7, 3)", 2.0},
		{"=MIN(3, 1, 2)", 1.0},
		{"=MAX(3, blank, 2)", 3.0},
		{"=SUM(1, 2, 3.5)", 6.5},
		{"=AVG(2, 4, blank)", 3.0},
		{"=IF(n < 0, \"neg\", \"pos\")", "neg"},
		{"=IF(0, 1)", false},
		{"=AND(1, \"x\", true)", true},
		{"=OR(0, \"\")", false},
		{"=NOT(0)", true},
		{"=COALESCE(blank, missing, \"fallback\")", "fallback"},
		{"=ISBLANK(blank)", true},
		{"=ISBLANK(n)", false},
		{"=CONCAT(\"a\", 1, missing, true)", "a1true"},
		{"=LEN(\"héllo\")", 5.0},
		{"=UPPER(\"ipa\")", "IPA"},
		{"=lower(\"IPA\")", "ipa"},
		{"=TRIM(name)", "Hazy IPA"},
		{"=LEFT(\"Stout\", 3)", "Sto"},
		{"=RIGHT(\"Stout\", 2)", "ut"},
		{"=LEFT(\"ab\", 10)", "ab"},
		{"=TEXT(abv, 2)", "6.46"},
		{"=TEXT(3)", "3"},
		{"=NUMBER(\" 42 \")", 42.0},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got := eval(t, tt.formula, row)
			if f, ok := tt.want.(float64); ok {
				g, ok := got.(float64)
				if !ok || math.Abs(g-f) > 1e-9 {
					t.Errorf("got %#v, want %v", got, f)
				}
				return
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		formula string
		code    types.ErrorCode
	}{
		{"=SQRT(-1)", types.ErrInvalidArgument},
		{"=MOD(1, 0)", types.ErrDivisionByZero},
		{`=ABS("x")`, types.ErrTypeMismatch},
		{"=ROUND(1, 0.5)", types.ErrInvalidArgument},
		{`=NUMBER("abc")`, types.ErrTypeMismatch},
		{"=LEFT(\"x\", -1)", types.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			_, err := evalErr(t, tt.formula, nil)
			expectCode(t, err, tt.code)
			if types.PositionOf(err) != 1 {
				t.Errorf("expected position of the call (1), got %d", types.PositionOf(err))
			}
		})
	}
}

func TestRowSetBuiltins(t *testing.T) {
	rows := []types.Row{
		{"qty": 2, "name": "a"},
		{"qty": "3", "name": ""},
		{"qty": nil, "name": "c"},
		{"qty": 5},
	}
	ev := evaluator.New()
	tests := []struct {
		formula string
		row     types.Row
		want    interface{}
	}{
		{"=COLSUM(qty)", rows[0], 10.0},
		{`=COLSUM("qty")`, rows[0], 10.0},
		{"=COLAVG(qty)", rows[0], 10.0 / 3},
		{"=COLMIN(qty)", rows[0], 2.0},
		{"=COLMAX(qty)", rows[0], 5.0},
		{"=COLCOUNT(name)", rows[0], 2.0},
		{"=ROWCOUNT()", rows[0], 4.0},
		{"=ROWINDEX()", rows[2], 2.0},
		{"=ROWINDEX()", types.Row{"qty": 2}, -1.0},
		{"=qty / COLSUM(qty)", rows[3], 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			v, err := ev.Eval(context.Background(), parser.MustParse(tt.formula), tt.row, rows)
			if err != nil {
				t.Fatal(err)
			}
			if v != tt.want {
				t.Errorf("got %#v, want %#v", v, tt.want)
			}
		})
	}
}

func TestRowSetBuiltinsTolerateEmptyRows(t *testing.T) {
	ev := evaluator.New()
	v, err := ev.Eval(context.Background(), parser.MustParse("=COLSUM(qty) + ROWCOUNT()"), types.Row{"qty": 1}, nil)
	if err != nil || v != 0.0 {
		t.Fatalf("got %v, %v", v, err)
	}
	v, err = ev.Eval(context.Background(), parser.MustParse("=COLMAX(qty)"), types.Row{}, nil)
	if err != nil || !types.IsUndefined(v) {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestBuiltinNamesAreSorted(t *testing.T) {
	names := evaluator.BuiltinNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted at %d: %s >= %s", i, names[i-1], names[i])
		}
	}
	if _, ok := evaluator.GetFunction("colsum"); !ok {
		t.Fatal("built-in lookup should be case-insensitive")
	}
}

func TestEvalNilExpression(t *testing.T) {
	if _, err := evaluator.New().Eval(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected error for nil expression")
	}
}
