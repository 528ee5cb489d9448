package engine

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// Guest-visible completion hooks. Prefixed to keep them out of the way of
// user code; shadowing them only breaks the shadower's own run.
const (
	doneCallback = "__codepad_done"
	failCallback = "__codepad_fail"
	jobFilename  = "main.js"
)

// compileJob wraps preprocessed source in an async IIFE so that the await
// suspension points the preprocessor inserted are legal, and routes the
// settled result into the completion hooks. Compilation errors are guest
// errors, reported through Complete like any other exception.
func compileJob(code string) (*goja.Program, error) {
	wrapped := "(async () => {\n" + spliceReturn(code) + "\n})().then(" +
		doneCallback + ", " + failCallback + ");"
	prg, err := goja.Compile(jobFilename, wrapped, false)
	if err != nil {
		return nil, err
	}
	return prg, nil
}

// spliceReturn turns the last top-level expression statement into a return so
// the async wrapper resolves with its value. Source that does not parse in
// isolation (for example because the preprocessor introduced top-level await)
// is passed through unchanged; such a run simply has no result value.
func spliceReturn(code string) string {
	prog, err := parser.ParseFile(nil, jobFilename, code, 0)
	if err != nil || len(prog.Body) == 0 {
		return code
	}
	last, ok := prog.Body[len(prog.Body)-1].(*ast.ExpressionStatement)
	if !ok {
		return code
	}
	start := int(last.Idx0()) - 1
	end := int(last.Idx1()) - 1
	if start < 0 || end > len(code) || start >= end {
		return code
	}
	return code[:start] + "return (" + code[start:end] + ");" + code[end:]
}

// isInterrupt reports whether err is the VM interrupt raised by cooperative
// cancellation.
func isInterrupt(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}

// formatGuestError renders a guest failure for Complete.Err. Thrown values
// keep their own rendering; an interrupt reads as an interruption rather
// than a stack dump.
func formatGuestError(err error) string {
	if isInterrupt(err) {
		return errInterrupted.Error()
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.Error()
	}
	return err.Error()
}
