// Package dispatch implements the Cb Call Dispatcher: the
// function/method/function-pointer/chain call state machine —
// classify, resolve callee, bind parameters, materialize self and its
// shadows, run the body, write self's mutations back to the caller-side
// receiver, copy back array-reference parameters, and unwind the scope
// frame on every exit path including an in-flight Return Signal.
//
// Dispatcher is wired as eval.Evaluator.Call after construction, the
// same function-field injection eval.go uses to avoid an eval<->dispatch
// import cycle — dispatch needs eval for argument/receiver evaluation,
// and stmtexec for running a callee's body.
package dispatch

import (
	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/eval"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/stmtexec"
	"github.com/shadowlink0122/cb/pkg/structengine"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

// Dispatcher runs function and method calls against a scope stack.
type Dispatcher struct {
	Symbols   *symbols.Table
	Structs   *structengine.Engine
	Eval      *eval.Evaluator
	Exec      *stmtexec.Executor
	Addresses *value.AddressBook
	Impl      *structengine.ImplStack
}

func New(sym *symbols.Table, structs *structengine.Engine, ev *eval.Evaluator, exec *stmtexec.Executor, addrs *value.AddressBook, impl *structengine.ImplStack) *Dispatcher {
	return &Dispatcher{Symbols: sym, Structs: structs, Eval: ev, Exec: exec, Addresses: addrs, Impl: impl}
}

// Call is wired to eval.Evaluator.Call. The classify step is an explicit
// tag on the AST node (ast.CallKind) rather than re-derived intent.
func (d *Dispatcher) Call(scopes *scope.Stack, call *ast.Call) (value.Value, error) {
	switch call.Kind {
	case ast.CallFunctionPointer:
		return d.callFunctionPointer(scopes, call)
	case ast.CallMethod, ast.CallChain:
		return d.callMethod(scopes, call)
	default:
		return d.invokeFunction(scopes, call.Callee, call.Args)
	}
}

func (d *Dispatcher) callFunctionPointer(scopes *scope.Stack, call *ast.Call) (value.Value, error) {
	v, ok := scopes.Find(call.Callee)
	if !ok {
		return value.Value{}, cberrors.Newf(cberrors.UndefinedSymbol, "undefined function pointer %q", call.Callee)
	}
	id := v.FuncTarget
	if id == 0 && v.Tag == value.TagFunctionPointer {
		id = v.Get().Ptr.FuncID
	}
	name, ok := d.Eval.FuncIndex.NameOf(id)
	if !ok {
		return value.Value{}, cberrors.Newf(cberrors.UndefinedSymbol, "function pointer %q does not resolve to a known function", call.Callee)
	}
	return d.invokeFunction(scopes, name, call.Args)
}

// ---- Receiver resolution ------------------------------------------------

// receiverTarget names the real state a method's self-mutations get
// written back into once the body has run: a struct aggregate, or — for
// a primitive/array receiver — the Variable itself.
type receiverTarget struct {
	structPtr *value.Struct
	plainVar  *value.Variable // non-struct receiver (primitive or array)
	typeKey   string
}

// resolveReceiver implements the dispatcher's four-way receiver
// classification: Direct, Pointer, Interface, and Chain. The type key is
// a struct's name, an interface's resolved struct name, an array's
// element-type-with-brackets string, or the primitive's textual name.
func (d *Dispatcher) resolveReceiver(scopes *scope.Stack, expr ast.Expr) (*receiverTarget, error) {
	if _, isCall := expr.(*ast.Call); isCall {
		rv, err := d.Eval.Eval(scopes, expr)
		if err != nil {
			return nil, err
		}
		if rv.Struct == nil {
			return nil, cberrors.New(cberrors.TypeMismatch, "chained call receiver did not produce a struct")
		}
		return &receiverTarget{structPtr: rv.Struct, typeKey: rv.Struct.TypeName}, nil
	}

	v, _, err := d.Eval.ResolveVariable(scopes, expr)
	if err != nil {
		return nil, err
	}
	if v.Tag == value.TagPointer {
		pv := v.Get()
		if pv.Ptr.Kind == value.PointerNull {
			return nil, cberrors.New(cberrors.NullDereference, "method call on a null pointer receiver")
		}
		pointee, ok := d.Addresses.Resolve(pv.Ptr.ReferentID)
		if !ok || pointee.StructMembers == nil {
			return nil, cberrors.New(cberrors.NullDereference, "dangling pointer receiver")
		}
		return &receiverTarget{structPtr: pointee.StructMembers, typeKey: pointee.StructMembers.TypeName}, nil
	}
	if v.StructMembers != nil {
		return &receiverTarget{structPtr: v.StructMembers, typeKey: v.StructMembers.TypeName}, nil
	}
	if v.IsArray {
		return &receiverTarget{plainVar: v, typeKey: v.ElemTag.String() + "[]"}, nil
	}
	if v.Tag.IsNumeric() || v.Tag == value.TagString {
		return &receiverTarget{plainVar: v, typeKey: v.Tag.String()}, nil
	}
	return nil, cberrors.New(cberrors.TypeMismatch, "method receiver is not a struct, interface, array, or primitive value")
}

func (d *Dispatcher) callMethod(scopes *scope.Stack, call *ast.Call) (value.Value, error) {
	target, err := d.resolveReceiver(scopes, call.Receiver)
	if err != nil {
		return value.Value{}, err
	}
	decl, implBlock, ok := d.Symbols.FindMethod(target.typeKey, call.Callee)
	if !ok {
		return value.Value{}, cberrors.Newf(cberrors.UndefinedSymbol, "undefined method %q on %q", call.Callee, target.typeKey)
	}
	if len(call.Args) != len(decl.Params) {
		return value.Value{}, cberrors.Newf(cberrors.ArgumentCount, "method %q expects %d arguments, got %d", call.Callee, len(decl.Params), len(call.Args))
	}

	scopes.Push()
	defer scopes.Pop()
	d.Exec.Log.Debugf("dispatch: enter method %s::%s", target.typeKey, call.Callee)
	defer d.Exec.Log.Debugf("dispatch: leave method %s::%s", target.typeKey, call.Callee)

	var self *value.Struct
	var selfVar *value.Variable
	if target.structPtr != nil {
		self = target.structPtr.Clone()
		selfVar = &value.Variable{Name: "self", Tag: value.TagStruct, IsStruct: true, StructMembers: self, TypeName: target.typeKey}
		scopes.Insert("self", selfVar)
		d.Structs.MaterializeShadows(scopes, false, "self", self)
	} else {
		selfVar = clonePlainReceiver(target.plainVar)
		scopes.Insert("self", selfVar)
	}

	var copybacks []arrayCopyback
	if err := d.bindParams(scopes, decl.Params, call.Args, &copybacks); err != nil {
		return value.Value{}, err
	}

	// The impl-context stack carries the running method's struct for
	// privacy decisions, plus the interface the method was resolved
	// through (empty for a plain impl).
	ctx := structengine.ImplContext{Struct: target.typeKey}
	if implBlock != nil {
		ctx.Interface = implBlock.InterfaceName
	}
	d.Impl.Push(ctx)
	defer d.Impl.Pop()

	ret, execErr := d.Exec.ExecBlock(scopes, decl.Body)

	// Writeback self and array-reference parameters on every exit path,
	// including when execErr carries a Return Signal-adjacent error.
	if self != nil {
		d.Structs.SyncStructFromShadows(scopes, "self", self)
		structengine.CopyValues(target.structPtr, self)
	} else {
		writebackPlainReceiver(target.plainVar, selfVar)
	}
	for _, cb := range copybacks {
		cb.source.Array = cb.bound.Array.Clone()
	}

	if execErr != nil {
		return value.Value{}, execErr
	}
	if ret == nil {
		return value.Value{}, nil
	}
	return d.clampReturn(decl, ret.AsValue()), nil
}

// clonePlainReceiver copies a primitive or array receiver into a frame-
// local self binding, mirroring the deep-copy struct receivers get.
func clonePlainReceiver(recv *value.Variable) *value.Variable {
	selfVar := &value.Variable{
		Name: "self", Tag: recv.Tag, ElemTag: recv.ElemTag, TypeName: recv.TypeName,
		IsArray: recv.IsArray, IsMultiDim: recv.IsMultiDim,
		ArrayDims: append([]int(nil), recv.ArrayDims...), IsUnsigned: recv.IsUnsigned,
	}
	if recv.IsArray && recv.Array != nil {
		selfVar.Array = recv.Array.Clone()
	} else {
		selfVar.Set(recv.Get())
	}
	return selfVar
}

func writebackPlainReceiver(recv, selfVar *value.Variable) {
	if recv.IsArray {
		if selfVar.Array != nil {
			recv.Array = selfVar.Array.Clone()
		}
		return
	}
	recv.Set(selfVar.Get())
}

func (d *Dispatcher) invokeFunction(scopes *scope.Stack, name string, args []ast.Expr) (value.Value, error) {
	decl, ok := d.Symbols.Functions[name]
	if !ok {
		return value.Value{}, cberrors.Newf(cberrors.UndefinedSymbol, "undefined function %q", name)
	}
	if len(args) != len(decl.Params) {
		return value.Value{}, cberrors.Newf(cberrors.ArgumentCount, "function %q expects %d arguments, got %d", name, len(decl.Params), len(args))
	}

	scopes.Push()
	defer scopes.Pop()
	d.Exec.Log.Debugf("dispatch: enter function %s", name)
	defer d.Exec.Log.Debugf("dispatch: leave function %s", name)

	var copybacks []arrayCopyback
	if err := d.bindParams(scopes, decl.Params, args, &copybacks); err != nil {
		return value.Value{}, err
	}

	ret, execErr := d.Exec.ExecBlock(scopes, decl.Body)
	for _, cb := range copybacks {
		cb.source.Array = cb.bound.Array.Clone()
	}
	if execErr != nil {
		return value.Value{}, execErr
	}
	if ret == nil {
		return value.Value{}, nil
	}
	return d.clampReturn(decl, ret.AsValue()), nil
}

// clampReturn applies the unsigned policy to a function's result: an
// unsigned-declared function returning a negative integer clamps to
// zero with a warning, the same storage-boundary rule scalar writes
// follow.
func (d *Dispatcher) clampReturn(decl *ast.FunctionDecl, v value.Value) value.Value {
	if !decl.ReturnType.IsUnsigned || !v.Tag.IsNumeric() {
		return v
	}
	v.Unsigned = true
	clamped, warn := value.ClampUnsigned(v)
	if warn {
		d.Exec.Log.Warn(cberrors.Newf(cberrors.UnsignedNegativeWarning, "unsigned function %q returned a negative value, clamped to 0", decl.Name).Error())
	}
	return clamped
}

// ---- Parameter binding ---------------------------------------------------

func implementorListed(implementors []string, name string) bool {
	for _, impl := range implementors {
		if impl == name {
			return true
		}
	}
	return false
}

// arrayCopyback records an array-reference parameter so invokeFunction /
// callMethod can copy its mutated storage back into the source variable
// at frame exit.
type arrayCopyback struct {
	source *value.Variable
	bound  *value.Variable
}

func (d *Dispatcher) bindParams(scopes *scope.Stack, params []*ast.Param, args []ast.Expr, copybacks *[]arrayCopyback) error {
	for i, p := range params {
		if err := d.bindOne(scopes, p, args[i], copybacks); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) bindOne(scopes *scope.Stack, p *ast.Param, argExpr ast.Expr, copybacks *[]arrayCopyback) error {
	pt := p.Type

	// Case 1: &fn argument bound to a pointer-typed parameter.
	if u, ok := argExpr.(*ast.UnaryExpr); ok && u.Op == "&" && pt.IsPointer {
		if ident, ok2 := u.X.(*ast.Ident); ok2 {
			if _, isFunc := d.Symbols.Functions[ident.Name]; isFunc {
				id := d.Eval.FuncIndex.IDFor(ident.Name)
				scopes.Insert(p.Name, &value.Variable{Name: p.Name, Tag: value.TagFunctionPointer, IsFunctionPointer: true, FuncTarget: id})
				return nil
			}
		}
	}

	// Case 2: reference parameter.
	if pt.IsReference {
		referent, _, err := d.Eval.ResolveVariable(scopes, argExpr)
		if err != nil {
			return err
		}
		scopes.Insert(p.Name, &value.Variable{Name: p.Name, Tag: referent.Tag, IsReference: true, Referent: referent})
		return nil
	}

	// Case 3: array parameter, bound by copy-in/copy-out.
	if pt.IsArray {
		if ident, ok := argExpr.(*ast.Ident); ok {
			if src, ok2 := scopes.Find(ident.Name); ok2 && src.IsArray && src.Array != nil {
				bound := &value.Variable{
					Name: p.Name, Tag: value.TagArray, ElemTag: src.ElemTag, IsArray: true,
					IsMultiDim: src.IsMultiDim, ArrayDims: append([]int(nil), src.ArrayDims...),
					Array: src.Array.Clone(), IsUnsigned: src.IsUnsigned,
				}
				scopes.Insert(p.Name, bound)
				*copybacks = append(*copybacks, arrayCopyback{source: src, bound: bound})
				return nil
			}
		}
		lit, err := d.Eval.Eval(scopes, argExpr)
		if err != nil {
			return err
		}
		if lit.Tag != value.TagArray || lit.Array == nil {
			return cberrors.Newf(cberrors.TypeMismatch, "parameter %q requires an array argument", p.Name)
		}
		scopes.Insert(p.Name, &value.Variable{
			Name: p.Name, Tag: value.TagArray, ElemTag: lit.Array.ElemTag, IsArray: true,
			IsMultiDim: len(lit.Array.Dims) > 1, ArrayDims: append([]int(nil), lit.Array.Dims...), Array: lit.Array.Clone(),
		})
		return nil
	}

	resolved := d.Symbols.ResolveTypeName(pt.Name)

	// Case 6: struct parameter, deep-copied.
	if _, isStruct := d.Symbols.Structs[resolved]; isStruct {
		v, err := d.Eval.Eval(scopes, argExpr)
		if err != nil {
			return err
		}
		if v.Struct == nil {
			return cberrors.Newf(cberrors.TypeMismatch, "parameter %q requires a struct value", p.Name)
		}
		cloned := v.Struct.Clone()
		scopes.Insert(p.Name, &value.Variable{Name: p.Name, Tag: value.TagStruct, IsStruct: true, StructMembers: cloned, TypeName: resolved})
		d.Structs.MaterializeShadows(scopes, false, p.Name, cloned)
		return nil
	}

	// Case 5: interface parameter, wrapping a bare primitive if needed.
	// The argument's concrete type must be in the interface's
	// compatibility set when one has been registered.
	if iface, isIface := d.Symbols.Interfaces[resolved]; isIface {
		v, err := d.Eval.Eval(scopes, argExpr)
		if err != nil {
			return err
		}
		concrete := v.Tag.String()
		if v.Struct != nil {
			concrete = v.Struct.TypeName
		}
		if len(iface.Implementors) > 0 && !implementorListed(iface.Implementors, concrete) {
			return cberrors.Newf(cberrors.TypeMismatch, "type %q does not implement interface %q", concrete, resolved)
		}
		s := v.Struct
		if s == nil {
			s = value.NewStruct(v.Tag.String())
			s.WrappedPrimitive = true
			s.Add(value.NewScalar("value", v))
		}
		scopes.Insert(p.Name, &value.Variable{Name: p.Name, Tag: value.TagInterface, IsStruct: true, StructMembers: s, TypeName: resolved})
		d.Structs.MaterializeShadows(scopes, false, p.Name, s)
		return nil
	}

	// Case 4 (string) / Case 7 (numeric): evaluate and bind at the
	// declared width, clamping unsigned on a negative literal.
	v, err := d.Eval.Eval(scopes, argExpr)
	if err != nil {
		return err
	}
	tag := value.TagFromName(resolved)
	if tag == value.TagUnknown {
		tag = v.Tag
	}
	bound := &value.Variable{Name: p.Name, Tag: tag, IsUnsigned: pt.IsUnsigned}
	bound.Set(v)
	scopes.Insert(p.Name, bound)
	return nil
}
