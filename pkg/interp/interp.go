// Package interp is the top-level orchestrator: a thin wrapper that wires
// the Symbol Table, every storage engine, the Expression Evaluator, the
// Statement Executor, the Call Dispatcher, and the cooperative Event Loop
// into one runnable unit, the way CWBudde/go-dws's Interpreter holds an
// evaluator instance, an environment, and an output writer instead of
// leaving callers to assemble the pieces by hand.
//
// pkg/interp is also the only place that knows about the host builtin
// surface (print, spawn, sleep, await) — everything below it stays a pure
// AST walker wired through function-field hooks, so adding a host
// primitive never touches pkg/eval or pkg/dispatch.
package interp

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/dispatch"
	"github.com/shadowlink0122/cb/pkg/eval"
	"github.com/shadowlink0122/cb/pkg/eventloop"
	"github.com/shadowlink0122/cb/pkg/future"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/stmtexec"
	"github.com/shadowlink0122/cb/pkg/structengine"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

// Interpreter owns one program run.
type Interpreter struct {
	Symbols   *symbols.Table
	Structs   *structengine.Engine
	Addresses *value.AddressBook
	Impl      *structengine.ImplStack
	Eval      *eval.Evaluator
	Exec      *stmtexec.Executor
	Dispatch  *dispatch.Dispatcher
	Loop      *eventloop.Loop

	output io.Writer
	log    *logrus.Logger

	futures      map[int64]*future.Cell
	nextFutureID int64
}

// New builds an Interpreter wired end to end against sym, writing `print`
// output to out and debug trace through log. A nil log gets a
// logrus.Logger at its default (Info) level; a nil out defaults to
// os.Stdout.
func New(sym *symbols.Table, out io.Writer, log *logrus.Logger) *Interpreter {
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = logrus.New()
	}

	structs := structengine.New(sym)
	addrs := value.NewAddressBook()
	impl := &structengine.ImplStack{}

	ev := eval.New(sym, structs, addrs, impl)
	exec := stmtexec.New(sym, structs, ev, addrs, log)
	disp := dispatch.New(sym, structs, ev, exec, addrs, impl)

	ev.Call = disp.Call

	it := &Interpreter{
		Symbols:   sym,
		Structs:   structs,
		Addresses: addrs,
		Impl:      impl,
		Eval:      ev,
		Exec:      exec,
		Dispatch:  disp,
		Loop:      eventloop.New(log),
		output:    out,
		log:       log,
		futures:   make(map[int64]*future.Cell),
	}
	ev.Builtin = it.builtin
	return it
}

// Run drives a full program: rejects struct definitions that contain
// themselves by value, declares every top-level VarDecl into the
// global scope, then calls `main` if one is defined. It returns the
// process exit code — 0 on a clean run-to-completion, non-zero if main
// raised an unrecovered runtime error.
func (it *Interpreter) Run(prog *ast.Program) int {
	if err := it.Structs.ValidateRecursion(); err != nil {
		it.reportFatal(err)
		return exitCodeFor(err)
	}
	scopes := scope.New()
	for _, d := range prog.Decls {
		if vd, ok := d.(*ast.VarDecl); ok {
			if _, err := it.Exec.Exec(scopes, vd); err != nil {
				it.reportFatal(err)
				return exitCodeFor(err)
			}
		}
	}

	if _, ok := it.Symbols.Functions["main"]; !ok {
		return 0
	}
	call := &ast.Call{Kind: ast.CallPlain, Callee: "main"}
	if _, err := it.Dispatch.Call(scopes, call); err != nil {
		it.reportFatal(err)
		return exitCodeFor(err)
	}

	// Any task still queued when main returns (an un-awaited spawn, or a
	// sleep whose caller never awaited it) still runs, in enqueue order,
	// before the process exits.
	it.Loop.Run()
	return 0
}

func (it *Interpreter) reportFatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
}

// exitCodeFor maps an error kind to a stable, non-zero process exit code.
// The specific values are this host's own mapping; only stability per
// error kind matters to callers.
func exitCodeFor(err error) int {
	ce, ok := err.(*cberrors.Error)
	if !ok {
		return 1
	}
	switch ce.Kind {
	case cberrors.DivisionByZero:
		return 2
	case cberrors.ArrayOutOfBounds, cberrors.ArrayShape:
		return 3
	case cberrors.NullDereference:
		return 4
	case cberrors.TypeMismatch:
		return 5
	case cberrors.UndefinedSymbol:
		return 6
	case cberrors.ArgumentCount:
		return 7
	case cberrors.ConstReassign, cberrors.PrivateAccess, cberrors.UnionValueRejected:
		return 8
	case cberrors.FutureNotReady:
		return 9
	default:
		return 1
	}
}

// ---- Host builtin surface -------------------------------------------------

// builtin is wired as eval.Evaluator.Builtin. It intercepts the `print`
// statement lowering, the async primitives (spawn/sleep/await), and any
// direct call to a function declared async — which returns a Future
// handle instead of running synchronously.
func (it *Interpreter) builtin(scopes *scope.Stack, call *ast.Call) (value.Value, bool, error) {
	switch call.Callee {
	case "print":
		return it.doPrint(scopes, call)
	case "spawn":
		return it.doSpawn(scopes, call)
	case "sleep":
		return it.doSleep(scopes, call)
	case "await":
		return it.doAwait(scopes, call)
	}
	if call.Kind != ast.CallPlain && call.Kind != ast.CallFunctionPointer {
		return value.Value{}, false, nil
	}
	decl, ok := it.Symbols.Functions[call.Callee]
	if !ok || !decl.IsAsync {
		return value.Value{}, false, nil
	}
	v, err := it.scheduleCall(scopes, decl, call)
	return v, true, err
}

// doPrint writes every argument's string form, space-separated, to the
// print sink followed by a newline.
func (it *Interpreter) doPrint(scopes *scope.Stack, call *ast.Call) (value.Value, bool, error) {
	for i, arg := range call.Args {
		v, err := it.Eval.Eval(scopes, arg)
		if err != nil {
			return value.Value{}, true, err
		}
		if i > 0 {
			fmt.Fprint(it.output, " ")
		}
		fmt.Fprint(it.output, v.AsString())
	}
	fmt.Fprintln(it.output)
	return value.Value{}, true, nil
}

// doSpawn explicitly schedules a call expression onto the event loop
// instead of running it inline, returning a Future handle immediately.
// `spawn(f())` and calling an async f() directly (handled by the
// IsAsync auto-detect branch in builtin) reach the same scheduleCall path.
func (it *Interpreter) doSpawn(scopes *scope.Stack, call *ast.Call) (value.Value, bool, error) {
	if len(call.Args) != 1 {
		return value.Value{}, true, cberrors.New(cberrors.ArgumentCount, "spawn expects exactly one call argument")
	}
	inner, ok := call.Args[0].(*ast.Call)
	if !ok {
		return value.Value{}, true, cberrors.New(cberrors.TypeMismatch, "spawn argument must be a function call")
	}
	var decl *ast.FunctionDecl
	found := false
	if inner.Kind == ast.CallPlain || inner.Kind == ast.CallFunctionPointer {
		decl, found = it.Symbols.Functions[inner.Callee]
	}
	if !found {
		// Method/chain calls can't be deferred without evaluating their
		// receiver first; run eagerly and hand back an already-ready
		// future instead of failing the program outright.
		v, err := it.Dispatch.Call(scopes, inner)
		cell := future.New(v.Tag)
		if err != nil {
			cell.Fail(err)
		} else {
			_ = cell.Set(v)
		}
		return value.NewFuture(it.registerFuture(cell)), true, nil
	}
	v, err := it.scheduleCall(scopes, decl, inner)
	return v, true, err
}

// scheduleCall posts decl's invocation as a deferred task and returns a
// not-yet-ready Future handle immediately; the task resolves the cell
// when the loop steps to it.
func (it *Interpreter) scheduleCall(scopes *scope.Stack, decl *ast.FunctionDecl, call *ast.Call) (value.Value, error) {
	cell := future.New(it.resultTag(decl.ReturnType))
	id := it.registerFuture(cell)
	it.Loop.Post(func() {
		v, err := it.Dispatch.Call(scopes, call)
		if err != nil {
			cell.Fail(err)
			return
		}
		if err := cell.Set(v); err != nil {
			cell.Fail(err)
		}
	})
	return value.NewFuture(id), nil
}

// resultTag resolves a declared return type to the TypeTag a Future
// wrapping it must carry. Struct/interface/array returns degrade to a
// generic tag since the cell only gates readiness, not shape.
func (it *Interpreter) resultTag(t ast.TypeRef) value.TypeTag {
	if t.IsArray {
		return value.TagArray
	}
	resolved := it.Symbols.ResolveTypeName(t.Name)
	if _, ok := it.Symbols.Structs[resolved]; ok {
		return value.TagStruct
	}
	if _, ok := it.Symbols.Interfaces[resolved]; ok {
		return value.TagInterface
	}
	return value.TagFromName(resolved)
}

// doSleep schedules a timer `n` milliseconds out and returns a
// not-yet-ready Future that resolves to void once the timer fires.
func (it *Interpreter) doSleep(scopes *scope.Stack, call *ast.Call) (value.Value, bool, error) {
	if len(call.Args) != 1 {
		return value.Value{}, true, cberrors.New(cberrors.ArgumentCount, "sleep expects exactly one argument")
	}
	durv, err := it.Eval.Eval(scopes, call.Args[0])
	if err != nil {
		return value.Value{}, true, err
	}
	cell := future.New(value.TagUnknown)
	id := it.registerFuture(cell)
	it.Loop.PostTimer(durv.AsInt(), func() {
		_ = cell.Set(value.Value{Tag: value.TagUnknown})
	})
	return value.NewFuture(id), true, nil
}

// doAwait drains the event loop until the named future is ready, then
// extracts its value (or re-raises its failure). Because the loop is
// reentrant-safe (Step operates on a locally-captured due/keep split),
// an await reached from inside an already-running deferred task — the
// `await sleep(...)` pattern inside an async function's body — simply
// nests another drain on the same Loop.
func (it *Interpreter) doAwait(scopes *scope.Stack, call *ast.Call) (value.Value, bool, error) {
	if len(call.Args) != 1 {
		return value.Value{}, true, cberrors.New(cberrors.ArgumentCount, "await expects exactly one argument")
	}
	fv, err := it.Eval.Eval(scopes, call.Args[0])
	if err != nil {
		return value.Value{}, true, err
	}
	if fv.Tag != value.TagFuture {
		return value.Value{}, true, cberrors.New(cberrors.TypeMismatch, "await requires a future handle")
	}
	cell, ok := it.resolveFuture(fv.FutureID())
	if !ok {
		return value.Value{}, true, cberrors.New(cberrors.FutureNotReady, "await on an unknown future handle")
	}
	it.Loop.RunUntil(cell.Ready)
	v, err := cell.Get()
	return v, true, err
}

func (it *Interpreter) registerFuture(c *future.Cell) int64 {
	it.nextFutureID++
	it.futures[it.nextFutureID] = c
	return it.nextFutureID
}

func (it *Interpreter) resolveFuture(id int64) (*future.Cell, bool) {
	c, ok := it.futures[id]
	return c, ok
}
