//go:build (js && wasm) || wasip1

package evaluator

// init disables concurrent resolution of remote sub-expressions for
// Evaluators created in a WebAssembly process.
//
// On js/wasm goroutines are multiplexed cooperatively on the single
// JavaScript thread, and a remote function that waits on a JS promise
// blocks every sibling. On wasip1 the Go runtime has no threads at all.
// Evaluating sequentially gives the same results without the overhead.
func init() {
	defaultConcurrency = false
}
