// Package eval implements the Cb Expression Evaluator: it
// walks expression AST nodes and produces a value.Value, resolving
// identifiers through the scope stack (reference-transparently), member
// access through the struct shadow-or-aggregate rule, array indexing
// through the array engine, and calls by delegating to whatever
// dispatcher and host-builtin hooks the owning interpreter wires in.
//
// The Call/Builtin hooks exist because the call dispatcher itself needs
// to evaluate argument expressions — wiring the dependency as a field
// instead of an import avoids a package cycle between eval and dispatch.
package eval

import (
	"fmt"

	"github.com/shadowlink0122/cb/pkg/arrayengine"
	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/structengine"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

// FuncIndex assigns stable integer ids to function/method names so
// function-pointer values
// can carry an id instead of re-deriving a node address.
type FuncIndex struct {
	byID   map[int64]string
	byName map[string]int64
	next   int64
}

func NewFuncIndex() *FuncIndex {
	return &FuncIndex{byID: make(map[int64]string), byName: make(map[string]int64)}
}

func (f *FuncIndex) IDFor(name string) int64 {
	if id, ok := f.byName[name]; ok {
		return id
	}
	f.next++
	f.byName[name] = f.next
	f.byID[f.next] = name
	return f.next
}

func (f *FuncIndex) NameOf(id int64) (string, bool) {
	n, ok := f.byID[id]
	return n, ok
}

// Evaluator walks expressions against a scope stack.
type Evaluator struct {
	Symbols   *symbols.Table
	Structs   *structengine.Engine
	Addresses *value.AddressBook
	Impl      *structengine.ImplStack
	FuncIndex *FuncIndex

	// Call handles any call the evaluator cannot resolve itself
	// (everything but the hex builtin): wired to the dispatcher.
	Call func(scopes *scope.Stack, call *ast.Call) (value.Value, error)

	// Builtin handles host async primitives (spawn/sleep/await); wired
	// by the top-level interpreter, which owns the event loop.
	Builtin func(scopes *scope.Stack, call *ast.Call) (value.Value, bool, error)
}

func New(sym *symbols.Table, structs *structengine.Engine, addrs *value.AddressBook, impl *structengine.ImplStack) *Evaluator {
	return &Evaluator{Symbols: sym, Structs: structs, Addresses: addrs, Impl: impl, FuncIndex: NewFuncIndex()}
}

// Eval produces the value an expression evaluates to.
func (e *Evaluator) Eval(scopes *scope.Stack, expr ast.Expr) (value.Value, error) {
	switch x := expr.(type) {
	case *ast.Literal:
		return e.evalLiteral(x)
	case *ast.Ident:
		v, ok := scopes.Find(x.Name)
		if !ok {
			return value.Value{}, cberrors.Newf(cberrors.UndefinedSymbol, "undefined symbol %q", x.Name)
		}
		return e.variableValue(v), nil
	case *ast.BinaryExpr:
		return e.evalBinary(scopes, x)
	case *ast.UnaryExpr:
		return e.evalUnary(scopes, x)
	case *ast.MemberAccess:
		v, _, err := e.ResolveVariable(scopes, x)
		if err != nil {
			return value.Value{}, err
		}
		return e.variableValue(v), nil
	case *ast.IndexExpr:
		return e.evalIndex(scopes, x)
	case *ast.ArrayLiteral:
		return value.Value{}, cberrors.New(cberrors.TypeMismatch, "array literal is only valid as a declaration initializer")
	case *ast.Ternary:
		c, err := e.Eval(scopes, x.Cond)
		if err != nil {
			return value.Value{}, err
		}
		if c.AsBool() {
			return e.Eval(scopes, x.Then)
		}
		return e.Eval(scopes, x.Else)
	case *ast.Call:
		return e.evalCall(scopes, x)
	default:
		return value.Value{}, cberrors.New(cberrors.TypeMismatch, "unsupported expression node")
	}
}

func (e *Evaluator) evalLiteral(l *ast.Literal) (value.Value, error) {
	switch l.Kind {
	case ast.LitInt:
		return value.NewInt(value.TagInt, l.I, false), nil
	case ast.LitFloat:
		return value.NewFloat(float32(l.F)), nil
	case ast.LitDouble:
		return value.NewDouble(l.F), nil
	case ast.LitString:
		return value.NewString(l.S), nil
	case ast.LitBool:
		return value.NewBool(l.B), nil
	case ast.LitChar:
		return value.NewChar(byte(l.I)), nil
	case ast.LitNull:
		return value.Value{Tag: value.TagPointer, Ptr: value.Null}, nil
	default:
		return value.Value{}, cberrors.New(cberrors.TypeMismatch, "unknown literal kind")
	}
}

func (e *Evaluator) evalCall(scopes *scope.Stack, call *ast.Call) (value.Value, error) {
	if call.Callee == "hex" && len(call.Args) == 1 {
		v, err := e.Eval(scopes, call.Args[0])
		if err != nil {
			return value.Value{}, err
		}
		s, err := value.Hex(v)
		if err != nil {
			return value.Value{}, cberrors.New(cberrors.TypeMismatch, err.Error())
		}
		return value.NewString(s), nil
	}
	if e.Builtin != nil {
		if v, handled, err := e.Builtin(scopes, call); handled {
			return v, err
		}
	}
	if e.Call == nil {
		return value.Value{}, cberrors.New(cberrors.RuntimeError, "call dispatcher not wired")
	}
	return e.Call(scopes, call)
}

func (e *Evaluator) evalIndex(scopes *scope.Stack, x *ast.IndexExpr) (value.Value, error) {
	v, _, err := e.ResolveVariable(scopes, x.Array)
	if err != nil {
		return value.Value{}, err
	}
	v = followReference(v)
	indices, err := e.EvalIndices(scopes, x.Indices)
	if err != nil {
		return value.Value{}, err
	}
	return arrayengine.Get(v, indices)
}

// EvalIndices evaluates each index expression to an int, used for array
// reads and by pkg/stmtexec for array writes.
func (e *Evaluator) EvalIndices(scopes *scope.Stack, exprs []ast.Expr) ([]int, error) {
	out := make([]int, len(exprs))
	for i, ex := range exprs {
		v, err := e.Eval(scopes, ex)
		if err != nil {
			return nil, err
		}
		out[i] = int(v.AsInt())
	}
	return out, nil
}

// ResolveVariable follows an lvalue-shaped expression (identifier or a
// chain of member accesses) down to the *value.Variable currently bound
// to it, preferring a direct-access shadow over the struct aggregate at
// every step. It also returns the dotted scope path,
// which callers use to reinstall shadows after a write.
func (e *Evaluator) ResolveVariable(scopes *scope.Stack, expr ast.Expr) (*value.Variable, string, error) {
	switch x := expr.(type) {
	case *ast.Ident:
		v, ok := scopes.Find(x.Name)
		if !ok {
			return nil, "", cberrors.Newf(cberrors.UndefinedSymbol, "undefined symbol %q", x.Name)
		}
		return v, x.Name, nil
	case *ast.MemberAccess:
		parent, parentPath, err := e.ResolveVariable(scopes, x.Object)
		if err != nil {
			return nil, "", err
		}
		parent = followReference(parent)
		if parent != nil && parent.Tag == value.TagPointer {
			// p->m and p.m through a pointer both read the pointee.
			parent, err = e.derefToVariable(parent)
			if err != nil {
				return nil, "", err
			}
			parentPath = parent.Name
		}
		if parent == nil || parent.StructMembers == nil {
			return nil, "", cberrors.Newf(cberrors.UndefinedSymbol, "%q is not a struct", parentPath)
		}
		mv, ok := parent.StructMembers.Get(x.Member)
		if !ok {
			return nil, "", cberrors.Newf(cberrors.UndefinedSymbol, "struct %q has no member %q", parent.StructMembers.TypeName, x.Member)
		}
		if err := e.checkPrivate(parent.StructMembers.TypeName, x.Member, mv.IsPrivate); err != nil {
			return nil, "", err
		}
		path := parentPath + "." + x.Member
		if shadow, ok := scopes.Find(path); ok {
			return shadow, path, nil
		}
		return mv, path, nil
	case *ast.IndexExpr:
		return e.resolveIndexedStruct(scopes, x)
	case *ast.UnaryExpr:
		if x.Op != "*" {
			return nil, "", cberrors.New(cberrors.TypeMismatch, "expression is not an addressable variable")
		}
		pv, _, err := e.ResolveVariable(scopes, x.X)
		if err != nil {
			return nil, "", err
		}
		pointee, err := e.derefToVariable(followReference(pv))
		if err != nil {
			return nil, "", err
		}
		return pointee, pointee.Name, nil
	default:
		return nil, "", cberrors.New(cberrors.TypeMismatch, "expression is not an addressable variable")
	}
}

// derefToVariable resolves a pointer-typed binding to the Variable it
// addresses, for lvalue surfaces ((*p).m, p->m, method receivers).
func (e *Evaluator) derefToVariable(p *value.Variable) (*value.Variable, error) {
	if p == nil || p.Tag != value.TagPointer {
		return nil, cberrors.New(cberrors.TypeMismatch, "dereference of a non-pointer value")
	}
	pv := p.Get()
	if pv.Ptr.Kind == value.PointerNull {
		return nil, cberrors.New(cberrors.NullDereference, "dereference of a null pointer")
	}
	pointee, ok := e.Addresses.Resolve(pv.Ptr.ReferentID)
	if !ok {
		return nil, cberrors.New(cberrors.NullDereference, "dangling pointer")
	}
	return pointee, nil
}

// resolveIndexedStruct resolves a[i...] where a is an array of struct
// elements, for the "a[i].m = v" and "o.m[i].n = v" assignment surfaces:
// array elements are stored as stable *value.Struct pointers, so writes
// through the returned Variable mutate the array in place with no
// copy-back needed.
func (e *Evaluator) resolveIndexedStruct(scopes *scope.Stack, x *ast.IndexExpr) (*value.Variable, string, error) {
	arrVar, arrPath, err := e.ResolveVariable(scopes, x.Array)
	if err != nil {
		return nil, "", err
	}
	arrVar = followReference(arrVar)
	if arrVar == nil || arrVar.Array == nil || arrVar.Array.ElemTag != value.TagStruct {
		return nil, "", cberrors.New(cberrors.TypeMismatch, "indexed expression is not an array of structs")
	}
	indices, err := e.EvalIndices(scopes, x.Indices)
	if err != nil {
		return nil, "", err
	}
	dims := arrVar.ArrayDims
	if len(dims) == 0 {
		dims = arrVar.Array.Dims
	}
	flat, err := arrayengine.FlatIndex(dims, indices)
	if err != nil {
		return nil, "", err
	}
	elems := arrVar.Array.Structs()
	if flat < 0 || flat >= len(elems) {
		return nil, "", cberrors.New(cberrors.ArrayOutOfBounds, "struct array index out of range")
	}
	path := fmt.Sprintf("%s[%d]", arrPath, flat)
	return &value.Variable{Name: path, Tag: value.TagStruct, IsStruct: true, StructMembers: elems[flat], TypeName: arrVar.Array.ElemTypeName}, path, nil
}

func (e *Evaluator) checkPrivate(structTypeName, member string, isPrivate bool) error {
	return e.Structs.CheckPrivate(e.Impl, structTypeName, member, isPrivate)
}

func (e *Evaluator) variableValue(v *value.Variable) value.Value {
	v = followReference(v)
	switch {
	case v.IsStruct:
		return value.NewStructValue(v.StructMembers, v.Tag)
	case v.IsArray:
		return value.NewArrayValue(v.Array)
	case v.IsFunctionPointer:
		return value.NewFunctionPointer(value.Pointer{Kind: value.PointerFunc, FuncID: v.FuncTarget})
	default:
		return v.Get()
	}
}

func followReference(v *value.Variable) *value.Variable {
	for v != nil && v.IsReference && v.Referent != nil {
		v = v.Referent
	}
	return v
}

func (e *Evaluator) evalUnary(scopes *scope.Stack, u *ast.UnaryExpr) (value.Value, error) {
	switch u.Op {
	case "-":
		v, err := e.Eval(scopes, u.X)
		if err != nil {
			return value.Value{}, err
		}
		if v.Tag.IsFloating() {
			return castFloat(v.Tag, -v.AsDouble()), nil
		}
		return value.NewInt(v.Tag, -v.AsInt(), false), nil
	case "!":
		v, err := e.Eval(scopes, u.X)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(!v.AsBool()), nil
	case "~":
		v, err := e.Eval(scopes, u.X)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(v.Tag, ^v.AsInt(), v.Unsigned), nil
	case "&":
		return e.evalAddrOf(scopes, u.X)
	case "*":
		return e.evalDeref(scopes, u.X)
	default:
		return value.Value{}, cberrors.Newf(cberrors.TypeMismatch, "unsupported unary operator %q", u.Op)
	}
}

// evalAddrOf yields a function-pointer value if the named operand is a
// function, a fat pointer if the operand is a scalar array element
// (the element has no Variable of its own to address, so the pointer
// carries metadata naming the array and indices), and otherwise the
// referent address of the variable.
func (e *Evaluator) evalAddrOf(scopes *scope.Stack, x ast.Expr) (value.Value, error) {
	if ident, ok := x.(*ast.Ident); ok {
		if _, isFunc := e.Symbols.Functions[ident.Name]; isFunc {
			id := e.FuncIndex.IDFor(ident.Name)
			return value.NewFunctionPointer(value.Pointer{Kind: value.PointerFunc, FuncID: id}), nil
		}
	}
	if idx, ok := x.(*ast.IndexExpr); ok {
		arrVar, _, err := e.ResolveVariable(scopes, idx.Array)
		if err != nil {
			return value.Value{}, err
		}
		arrVar = followReference(arrVar)
		// Struct elements fall through: resolveIndexedStruct addresses
		// them through the array's stable *Struct pointers.
		if arrVar != nil && arrVar.Array != nil && arrVar.Array.ElemTag != value.TagStruct {
			indices, err := e.EvalIndices(scopes, idx.Indices)
			if err != nil {
				return value.Value{}, err
			}
			dims := arrVar.ArrayDims
			if len(dims) == 0 {
				dims = arrVar.Array.Dims
			}
			// Bounds-check at address-of time so a bad element address
			// fails here, not at first use.
			if _, err := arrayengine.FlatIndex(dims, indices); err != nil {
				return value.Value{}, err
			}
			id := e.Addresses.NewMetadata(&value.PointerMetadata{ArrayTarget: arrVar, Index: indices})
			return value.NewPointer(value.Pointer{Kind: value.PointerFat, MetadataID: id}), nil
		}
	}
	v, _, err := e.ResolveVariable(scopes, x)
	if err != nil {
		return value.Value{}, err
	}
	id := e.Addresses.AddressOf(v)
	return value.NewPointer(value.Pointer{Kind: value.PointerRaw, ReferentID: id}), nil
}

// evalDeref dereferences a pointer: null fails, a fat pointer resolves
// through its metadata, a plain pointer resolves to its Variable.
func (e *Evaluator) evalDeref(scopes *scope.Stack, x ast.Expr) (value.Value, error) {
	p, err := e.Eval(scopes, x)
	if err != nil {
		return value.Value{}, err
	}
	if p.Tag != value.TagPointer && p.Tag != value.TagFunctionPointer {
		return value.Value{}, cberrors.New(cberrors.TypeMismatch, "dereference of a non-pointer value")
	}
	switch p.Ptr.Kind {
	case value.PointerNull:
		return value.Value{}, cberrors.New(cberrors.NullDereference, "dereference of a null pointer")
	case value.PointerFat:
		meta, ok := e.Addresses.ResolveMetadata(p.Ptr.MetadataID)
		if !ok || meta.ArrayTarget == nil {
			return value.Value{}, cberrors.New(cberrors.NullDereference, "dangling fat pointer")
		}
		return arrayengine.Get(meta.ArrayTarget, meta.Index)
	default: // PointerRaw, PointerFunc
		v, ok := e.Addresses.Resolve(p.Ptr.ReferentID)
		if !ok {
			return value.Value{}, cberrors.New(cberrors.NullDereference, "dangling pointer")
		}
		return e.variableValue(v), nil
	}
}

func (e *Evaluator) evalBinary(scopes *scope.Stack, b *ast.BinaryExpr) (value.Value, error) {
	if b.Op == "&&" || b.Op == "||" {
		l, err := e.Eval(scopes, b.Left)
		if err != nil {
			return value.Value{}, err
		}
		if b.Op == "&&" && !l.AsBool() {
			return value.NewBool(false), nil
		}
		if b.Op == "||" && l.AsBool() {
			return value.NewBool(true), nil
		}
		r, err := e.Eval(scopes, b.Right)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(r.AsBool()), nil
	}

	l, err := e.Eval(scopes, b.Left)
	if err != nil {
		return value.Value{}, err
	}
	r, err := e.Eval(scopes, b.Right)
	if err != nil {
		return value.Value{}, err
	}

	if b.Op == "+" && (l.Tag == value.TagString || r.Tag == value.TagString) {
		return value.NewString(l.AsString() + r.AsString()), nil
	}

	switch b.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		return e.compare(b.Op, l, r), nil
	}

	wide := value.Wider(l.Tag, r.Tag)
	if wide.IsFloating() {
		lf, rf := l.AsDouble(), r.AsDouble()
		var res float64
		switch b.Op {
		case "+":
			res = lf + rf
		case "-":
			res = lf - rf
		case "*":
			res = lf * rf
		case "/":
			res = lf / rf // IEEE inf/NaN on zero divisor
		default:
			return value.Value{}, cberrors.Newf(cberrors.TypeMismatch, "unsupported operator %q for floating operands", b.Op)
		}
		return castFloat(wide, res), nil
	}

	li, ri := l.AsInt(), r.AsInt()
	unsigned := l.Unsigned || r.Unsigned
	switch b.Op {
	case "+":
		return value.NewInt(wide, li+ri, unsigned), nil
	case "-":
		return value.NewInt(wide, li-ri, unsigned), nil
	case "*":
		return value.NewInt(wide, li*ri, unsigned), nil
	case "/":
		if ri == 0 {
			return value.Value{}, cberrors.New(cberrors.DivisionByZero, "integer division by zero")
		}
		return value.NewInt(wide, li/ri, unsigned), nil
	case "%":
		if ri == 0 {
			return value.Value{}, cberrors.New(cberrors.DivisionByZero, "integer modulo by zero")
		}
		return value.NewInt(wide, li%ri, unsigned), nil
	case "&":
		return value.NewInt(wide, li&ri, unsigned), nil
	case "|":
		return value.NewInt(wide, li|ri, unsigned), nil
	case "^":
		return value.NewInt(wide, li^ri, unsigned), nil
	case "<<":
		return value.NewInt(wide, li<<uint(ri), unsigned), nil
	case ">>":
		return value.NewInt(wide, li>>uint(ri), unsigned), nil
	default:
		return value.Value{}, cberrors.Newf(cberrors.TypeMismatch, "unsupported operator %q", b.Op)
	}
}

func (e *Evaluator) compare(op string, l, r value.Value) value.Value {
	if l.Tag == value.TagString || r.Tag == value.TagString {
		ls, rs := l.AsString(), r.AsString()
		switch op {
		case "==":
			return value.NewBool(ls == rs)
		case "!=":
			return value.NewBool(ls != rs)
		case "<":
			return value.NewBool(ls < rs)
		case "<=":
			return value.NewBool(ls <= rs)
		case ">":
			return value.NewBool(ls > rs)
		default:
			return value.NewBool(ls >= rs)
		}
	}
	wide := value.Wider(l.Tag, r.Tag)
	if wide.IsFloating() {
		lf, rf := l.AsDouble(), r.AsDouble()
		return value.NewBool(compareOrdered(op, lf < rf, lf == rf, lf > rf))
	}
	li, ri := l.AsInt(), r.AsInt()
	return value.NewBool(compareOrdered(op, li < ri, li == ri, li > ri))
}

func compareOrdered(op string, lt, eq, gt bool) bool {
	switch op {
	case "==":
		return eq
	case "!=":
		return !eq
	case "<":
		return lt
	case "<=":
		return lt || eq
	case ">":
		return gt
	default: // ">="
		return gt || eq
	}
}

func castFloat(tag value.TypeTag, f float64) value.Value {
	switch tag {
	case value.TagFloat:
		return value.NewFloat(float32(f))
	case value.TagQuad:
		return value.NewQuad(f)
	default:
		return value.NewDouble(f)
	}
}
