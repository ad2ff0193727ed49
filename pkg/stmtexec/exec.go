// Package stmtexec implements the Cb Statement Executor:
// variable declarations across the reference/struct/union/array/scalar
// branches, the seven assignment left-hand-side forms, ternary-in-
// assignment recursion, and the Return Signal raised by `return`.
//
// Declaration and assignment defer to pkg/structengine and
// pkg/arrayengine for their respective storage surfaces, keeping the
// same split between evaluating an expression and executing a statement
// against scope that pkg/eval and pkg/stmtexec draw between themselves.
package stmtexec

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shadowlink0122/cb/pkg/arrayengine"
	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/eval"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/signal"
	"github.com/shadowlink0122/cb/pkg/structengine"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

// Executor runs statements against a scope stack, producing a Return
// Signal when a `return` unwinds the current body.
type Executor struct {
	Symbols   *symbols.Table
	Structs   *structengine.Engine
	Eval      *eval.Evaluator
	Addresses *value.AddressBook
	Log       *logrus.Logger
}

func New(sym *symbols.Table, structs *structengine.Engine, ev *eval.Evaluator, addrs *value.AddressBook, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.New()
	}
	return &Executor{Symbols: sym, Structs: structs, Eval: ev, Addresses: addrs, Log: log}
}

func (x *Executor) isGlobal(scopes *scope.Stack) bool { return scopes.Depth() == 1 }

// Exec runs one statement, returning a non-nil *signal.Return only when
// a `return` (in this statement or one nested under it) unwinds control.
// An error raised without a source location picks up this statement's
// position, so diagnostics carry file/line/column and the caret marker.
func (x *Executor) Exec(scopes *scope.Stack, stmt ast.Stmt) (*signal.Return, error) {
	ret, err := x.exec(scopes, stmt)
	if ce, ok := err.(*cberrors.Error); ok && ce.Location == nil {
		if pos := stmt.Pos(); pos.Line > 0 {
			err = ce.WithLocation(&cberrors.Location{File: pos.File, Line: pos.Line, Column: pos.Column, Source: pos.Source})
		}
	}
	return ret, err
}

func (x *Executor) exec(scopes *scope.Stack, stmt ast.Stmt) (*signal.Return, error) {
	switch s := stmt.(type) {
	case *ast.Block:
		return x.ExecBlock(scopes, s)
	case *ast.VarDecl:
		return nil, x.execVarDecl(scopes, s)
	case *ast.Assign:
		return nil, x.execAssign(scopes, s)
	case *ast.Return:
		return x.execReturn(scopes, s)
	case *ast.If:
		return x.execIf(scopes, s)
	case *ast.While:
		return x.execWhile(scopes, s)
	case *ast.For:
		return x.execFor(scopes, s)
	case *ast.ExprStmt:
		_, err := x.Eval.Eval(scopes, s.X)
		return nil, err
	default:
		return nil, cberrors.New(cberrors.TypeMismatch, "unsupported statement")
	}
}

// ExecBlock runs a statement list in sequence, stopping and propagating
// on the first error or Return Signal. An UnsignedNegativeWarning is
// logged and execution continues.
func (x *Executor) ExecBlock(scopes *scope.Stack, b *ast.Block) (*signal.Return, error) {
	for _, stmt := range b.Stmts {
		ret, err := x.Exec(scopes, stmt)
		if err != nil {
			if cberrors.IsKind(err, cberrors.UnsignedNegativeWarning) {
				x.Log.Warn(err.Error())
				continue
			}
			return nil, err
		}
		if ret != nil {
			return ret, nil
		}
	}
	return nil, nil
}

func (x *Executor) execIf(scopes *scope.Stack, s *ast.If) (*signal.Return, error) {
	c, err := x.Eval.Eval(scopes, s.Cond)
	if err != nil {
		return nil, err
	}
	if c.AsBool() {
		scopes.Push()
		defer scopes.Pop()
		return x.ExecBlock(scopes, s.Then)
	}
	if s.Else != nil {
		scopes.Push()
		defer scopes.Pop()
		return x.Exec(scopes, s.Else)
	}
	return nil, nil
}

func (x *Executor) execWhile(scopes *scope.Stack, s *ast.While) (*signal.Return, error) {
	for {
		c, err := x.Eval.Eval(scopes, s.Cond)
		if err != nil {
			return nil, err
		}
		if !c.AsBool() {
			return nil, nil
		}
		scopes.Push()
		ret, err := x.ExecBlock(scopes, s.Body)
		scopes.Pop()
		if err != nil {
			return nil, err
		}
		if ret != nil {
			return ret, nil
		}
	}
}

func (x *Executor) execFor(scopes *scope.Stack, s *ast.For) (*signal.Return, error) {
	scopes.Push()
	defer scopes.Pop()
	if s.Init != nil {
		if _, err := x.Exec(scopes, s.Init); err != nil {
			return nil, err
		}
	}
	for {
		if s.Cond != nil {
			c, err := x.Eval.Eval(scopes, s.Cond)
			if err != nil {
				return nil, err
			}
			if !c.AsBool() {
				return nil, nil
			}
		}
		scopes.Push()
		ret, err := x.ExecBlock(scopes, s.Body)
		scopes.Pop()
		if err != nil {
			return nil, err
		}
		if ret != nil {
			return ret, nil
		}
		if s.Post != nil {
			if _, err := x.Exec(scopes, s.Post); err != nil {
				return nil, err
			}
		}
	}
}

func (x *Executor) execReturn(scopes *scope.Stack, r *ast.Return) (*signal.Return, error) {
	if r.Value == nil {
		ret := signal.VoidReturn()
		return &ret, nil
	}
	v, err := x.Eval.Eval(scopes, r.Value)
	if err != nil {
		return nil, err
	}
	switch v.Tag {
	case value.TagString:
		ret := signal.FromString(v.AsString())
		return &ret, nil
	case value.TagStruct, value.TagInterface, value.TagUnion:
		typeName := ""
		if v.Struct != nil {
			typeName = v.Struct.TypeName
		}
		ret := signal.FromStruct(v.Struct, typeName)
		return &ret, nil
	case value.TagArray:
		ret := signal.FromArray(v.Array)
		return &ret, nil
	case value.TagFunctionPointer:
		ret := signal.FromValue(v)
		ret.IsFunctionPointer = true
		return &ret, nil
	default:
		ret := signal.FromValue(v)
		return &ret, nil
	}
}

func (x *Executor) execVarDecl(scopes *scope.Stack, d *ast.VarDecl) error {
	resolved := x.Symbols.ResolveTypeName(d.Type.Name)
	global := x.isGlobal(scopes)
	for i, name := range d.Names {
		var initExpr ast.Expr
		if i < len(d.Values) {
			initExpr = d.Values[i]
		}
		if err := x.declareOne(scopes, global, name, resolved, d, initExpr); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) declareOne(scopes *scope.Stack, global bool, name, resolved string, d *ast.VarDecl, initExpr ast.Expr) error {
	if d.Type.IsReference {
		return x.declareReference(scopes, global, name, initExpr)
	}
	if _, isStruct := x.Symbols.Structs[resolved]; isStruct && !d.Type.IsPointer && !d.Type.IsArray {
		return x.declareStruct(scopes, global, name, resolved, initExpr)
	}
	if _, isUnion := x.Symbols.Unions[resolved]; isUnion {
		return x.declareUnion(scopes, global, name, resolved, initExpr)
	}
	if _, isIface := x.Symbols.Interfaces[resolved]; isIface && !d.Type.IsPointer && !d.Type.IsArray {
		return x.declareInterface(scopes, global, name, resolved, initExpr)
	}
	if d.Type.IsArray {
		return x.declareArray(scopes, global, name, resolved, d, initExpr)
	}
	if d.Type.IsPointer {
		v := &value.Variable{Name: name, Tag: value.TagPointer, TypeName: resolved}
		v.Set(value.Value{Tag: value.TagPointer, Ptr: value.Null})
		v.IsAssigned = false
		if initExpr != nil {
			iv, err := x.Eval.Eval(scopes, initExpr)
			if err != nil {
				return err
			}
			v.Set(iv)
		}
		x.insert(scopes, global, name, v)
		return nil
	}
	tag := value.TagFromName(resolved)
	v := &value.Variable{Name: name, Tag: tag, IsConst: d.IsConst, IsUnsigned: d.Type.IsUnsigned}
	zero := value.Zero(tag)
	zero.Unsigned = d.Type.IsUnsigned
	v.Set(zero)
	v.IsAssigned = false
	if initExpr != nil {
		iv, err := x.evalMaybeTernary(scopes, initExpr)
		if err != nil {
			return err
		}
		if warn := v.Set(iv); warn {
			x.Log.Warn(cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0 for unsigned "+name).Error())
		}
	}
	x.insert(scopes, global, name, v)
	return nil
}

func (x *Executor) declareReference(scopes *scope.Stack, global bool, name string, initExpr ast.Expr) error {
	ident, ok := initExpr.(*ast.Ident)
	if !ok {
		return cberrors.New(cberrors.TypeMismatch, "reference declaration requires a variable initializer")
	}
	referent, _, err := x.Eval.ResolveVariable(scopes, ident)
	if err != nil {
		return err
	}
	v := &value.Variable{Name: name, Tag: referent.Tag, IsReference: true, Referent: referent}
	x.insert(scopes, global, name, v)
	return nil
}

func (x *Executor) declareStruct(scopes *scope.Stack, global bool, name, resolved string, initExpr ast.Expr) error {
	s, err := x.Structs.Instantiate(resolved)
	if err != nil {
		return err
	}
	v := &value.Variable{Name: name, Tag: value.TagStruct, IsStruct: true, StructMembers: s, TypeName: resolved}
	if initExpr != nil {
		iv, err := x.Eval.Eval(scopes, initExpr)
		if err != nil {
			return err
		}
		if iv.Tag != value.TagStruct && iv.Tag != value.TagInterface && iv.Tag != value.TagUnion {
			return cberrors.Newf(cberrors.TypeMismatch, "cannot initialize struct %q from a %s value", resolved, iv.Tag)
		}
		if iv.Struct != nil {
			v.StructMembers = iv.Struct.Clone()
		}
	}
	x.insert(scopes, global, name, v)
	x.Structs.MaterializeShadows(scopes, global, name, v.StructMembers)
	return nil
}

// declareInterface binds an interface-typed variable. The payload is
// whichever concrete struct the initializer currently holds; a primitive
// initializer is wrapped in a synthesized single-member struct so
// interface dispatch on it still resolves by textual type name.
func (x *Executor) declareInterface(scopes *scope.Stack, global bool, name, resolved string, initExpr ast.Expr) error {
	v := &value.Variable{Name: name, Tag: value.TagInterface, IsStruct: true, TypeName: resolved}
	if initExpr != nil {
		iv, err := x.Eval.Eval(scopes, initExpr)
		if err != nil {
			return err
		}
		v.StructMembers = wrapForInterface(iv)
		x.insert(scopes, global, name, v)
		x.Structs.MaterializeShadows(scopes, global, name, v.StructMembers)
		return nil
	}
	x.insert(scopes, global, name, v)
	return nil
}

// wrapForInterface returns the concrete struct an interface binding
// holds: the value's own aggregate, or a synthesized wrapper carrying a
// primitive under a single "value" member.
func wrapForInterface(v value.Value) *value.Struct {
	if v.Struct != nil {
		return v.Struct
	}
	s := value.NewStruct(v.Tag.String())
	s.WrappedPrimitive = true
	s.Add(value.NewScalar("value", v))
	return s
}

func (x *Executor) declareUnion(scopes *scope.Stack, global bool, name, resolved string, initExpr ast.Expr) error {
	allowed, err := x.unionAllowed(scopes, resolved)
	if err != nil {
		return err
	}
	v := &value.Variable{Name: name, Tag: value.TagUnion, TypeName: resolved}
	v.StructMembers = &value.Struct{TypeName: resolved, UnionAllowed: allowed}
	if initExpr != nil {
		iv, err := x.Eval.Eval(scopes, initExpr)
		if err != nil {
			return err
		}
		if !unionContains(allowed, iv) {
			return cberrors.Newf(cberrors.UnionValueRejected, "value not permitted by union %q", resolved)
		}
		v.SetUnion(iv)
	}
	x.insert(scopes, global, name, v)
	return nil
}

func (x *Executor) declareArray(scopes *scope.Stack, global bool, name, resolved string, d *ast.VarDecl, initExpr ast.Expr) error {
	if _, isStruct := x.Symbols.Structs[resolved]; isStruct {
		return x.declareStructArray(scopes, global, name, resolved, d, initExpr)
	}
	elemTag := value.TagFromName(resolved)
	v := &value.Variable{Name: name, Tag: value.TagArray, ElemTag: elemTag, IsArray: true, IsUnsigned: d.Type.IsUnsigned}
	switch lit := initExpr.(type) {
	case *ast.ArrayLiteral:
		warns, err := arrayengine.InitFromLiteral(v, lit, elemTag, d.Type.IsUnsigned, d.Type.Dims)
		for i := 0; i < warns; i++ {
			x.Log.Warn(cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0 in unsigned array "+name).Error())
		}
		if err != nil {
			return err
		}
	case nil:
		dims := d.Type.Dims
		if len(dims) == 0 {
			dims = []int{0}
		}
		v.Array = value.NewArray(elemTag, d.Type.IsUnsigned, dims)
		v.ArrayDims = dims
		v.IsMultiDim = len(dims) > 1
	default:
		iv, err := x.Eval.Eval(scopes, initExpr)
		if err != nil {
			return err
		}
		if iv.Tag != value.TagArray || iv.Array == nil {
			return cberrors.New(cberrors.TypeMismatch, "array initializer did not evaluate to an array")
		}
		// A static-sized declaration must match a function-returned
		// array's shape; a dynamic-sized declaration accepts any size.
		if len(d.Type.Dims) > 0 && d.Type.Dims[0] != 0 && !arrayengine.ShapeEqual(d.Type.Dims, iv.Array.Dims) {
			return cberrors.Newf(cberrors.ArrayShape, "array of shape %v cannot initialize declaration of shape %v", iv.Array.Dims, d.Type.Dims)
		}
		v.Array = iv.Array.Clone()
		v.ArrayDims = v.Array.Dims
		v.IsMultiDim = len(v.ArrayDims) > 1
	}
	x.insert(scopes, global, name, v)
	return nil
}

// declareStructArray handles an array-of-structs declaration: each
// element is its own
// default-initialized struct instance from the Struct Engine, addressed
// by a stable pointer rather than a flat scalar vector. Struct array
// literal initializers are not supported; only explicit-size declaration
// is, matching the rest of the array engine's "sized declarations must
// match exactly" posture.
func (x *Executor) declareStructArray(scopes *scope.Stack, global bool, name, resolved string, d *ast.VarDecl, initExpr ast.Expr) error {
	if initExpr != nil {
		return cberrors.New(cberrors.TypeMismatch, "struct array literal initializers are not supported")
	}
	dims := d.Type.Dims
	if len(dims) == 0 || dims[0] == 0 {
		return cberrors.New(cberrors.ArrayShape, "struct array declaration requires an explicit size")
	}
	n := 1
	for _, dim := range dims {
		n *= dim
	}
	elems := make([]*value.Struct, n)
	for i := range elems {
		s, err := x.Structs.Instantiate(resolved)
		if err != nil {
			return err
		}
		elems[i] = s
	}
	v := &value.Variable{
		Name: name, Tag: value.TagArray, ElemTag: value.TagStruct, TypeName: resolved,
		IsArray: true, IsMultiDim: len(dims) > 1, ArrayDims: dims,
		Array: value.NewStructArray(resolved, dims, elems),
	}
	x.insert(scopes, global, name, v)
	return nil
}

func (x *Executor) insert(scopes *scope.Stack, global bool, name string, v *value.Variable) {
	if global {
		scopes.InsertGlobal(name, v)
	} else {
		scopes.Insert(name, v)
	}
}

// evalMaybeTernary evaluates a scalar initializer, recursing through a
// Ternary the way assignment does.
func (x *Executor) evalMaybeTernary(scopes *scope.Stack, expr ast.Expr) (value.Value, error) {
	if t, ok := expr.(*ast.Ternary); ok {
		c, err := x.Eval.Eval(scopes, t.Cond)
		if err != nil {
			return value.Value{}, err
		}
		if c.AsBool() {
			return x.evalMaybeTernary(scopes, t.Then)
		}
		return x.evalMaybeTernary(scopes, t.Else)
	}
	return x.Eval.Eval(scopes, expr)
}

func (x *Executor) unionAllowed(scopes *scope.Stack, resolved string) ([]value.Value, error) {
	decl, ok := x.Symbols.Unions[resolved]
	if !ok {
		return nil, cberrors.Newf(cberrors.UndefinedSymbol, "undefined union type %q", resolved)
	}
	out := make([]value.Value, 0, len(decl.Allowed))
	for _, e := range decl.Allowed {
		v, err := x.Eval.Eval(scopes, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func unionContains(allowed []value.Value, v value.Value) bool {
	for _, a := range allowed {
		if valuesEqual(a, v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b value.Value) bool {
	switch {
	case a.Tag.IsFloating() || b.Tag.IsFloating():
		return a.AsDouble() == b.AsDouble()
	case a.Tag == value.TagString || b.Tag == value.TagString:
		return a.AsString() == b.AsString()
	default:
		return a.AsInt() == b.AsInt()
	}
}

// ---- Assignment -------------------------------------------------------

func (x *Executor) execAssign(scopes *scope.Stack, a *ast.Assign) error {
	return x.assignTo(scopes, a.Target, a.Value)
}

func (x *Executor) assignTo(scopes *scope.Stack, target ast.AssignTarget, valExpr ast.Expr) error {
	if tern, ok := valExpr.(*ast.Ternary); ok {
		c, err := x.Eval.Eval(scopes, tern.Cond)
		if err != nil {
			return err
		}
		if c.AsBool() {
			return x.assignTo(scopes, target, tern.Then)
		}
		return x.assignTo(scopes, target, tern.Else)
	}
	switch t := target.(type) {
	case *ast.NameTarget:
		return x.assignName(scopes, t, valExpr)
	case *ast.DerefTarget:
		return x.assignDeref(scopes, t, valExpr)
	case *ast.IndexTarget:
		return x.assignIndex(scopes, t, valExpr)
	case *ast.MemberTarget:
		return x.assignMember(scopes, t, valExpr)
	default:
		return cberrors.New(cberrors.TypeMismatch, "unsupported assignment target")
	}
}

func (x *Executor) assignName(scopes *scope.Stack, t *ast.NameTarget, valExpr ast.Expr) error {
	v, ok := scopes.Find(t.Name)
	if !ok {
		return cberrors.Newf(cberrors.UndefinedSymbol, "undefined symbol %q", t.Name)
	}
	if v.IsConst && v.IsAssigned {
		return cberrors.Newf(cberrors.ConstReassign, "const %q is already assigned", t.Name)
	}
	nv, err := x.Eval.Eval(scopes, valExpr)
	if err != nil {
		return err
	}
	if v.IsReference && v.Referent != nil {
		if v.Referent.IsConst && v.Referent.IsAssigned {
			return cberrors.Newf(cberrors.ConstReassign, "const %q is already assigned", v.Referent.Name)
		}
	}
	switch v.Tag {
	case value.TagUnion:
		if v.StructMembers == nil || !unionContains(v.StructMembers.UnionAllowed, nv) {
			return cberrors.Newf(cberrors.UnionValueRejected, "value not permitted by union %q", v.TypeName)
		}
		v.SetUnion(nv)
		return nil
	case value.TagInterface:
		v.StructMembers = wrapForInterface(nv)
		v.IsAssigned = true
		x.Structs.MaterializeShadows(scopes, x.isGlobal(scopes), t.Name, v.StructMembers)
		return nil
	case value.TagStruct:
		if nv.Struct == nil {
			return cberrors.Newf(cberrors.TypeMismatch, "cannot assign a %s value to struct %q", nv.Tag, t.Name)
		}
		structengine.CopyValues(v.StructMembers, nv.Struct)
		x.Structs.SyncShadowsFromStruct(scopes, x.isGlobal(scopes), t.Name, v.StructMembers)
		v.IsAssigned = true
		return nil
	}
	if warn := v.Set(nv); warn {
		return cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0 for unsigned "+t.Name)
	}
	return nil
}

func (x *Executor) assignDeref(scopes *scope.Stack, t *ast.DerefTarget, valExpr ast.Expr) error {
	p, err := x.Eval.Eval(scopes, t.Pointer)
	if err != nil {
		return err
	}
	if p.Tag != value.TagPointer {
		return cberrors.New(cberrors.TypeMismatch, "dereference-assign of a non-pointer value")
	}
	nv, err := x.Eval.Eval(scopes, valExpr)
	if err != nil {
		return err
	}
	switch p.Ptr.Kind {
	case value.PointerNull:
		return cberrors.New(cberrors.NullDereference, "assignment through a null pointer")
	case value.PointerFat:
		meta, ok := x.Addresses.ResolveMetadata(p.Ptr.MetadataID)
		if !ok || meta.ArrayTarget == nil {
			return cberrors.New(cberrors.NullDereference, "dangling fat pointer")
		}
		warn, err := arrayengine.Set(meta.ArrayTarget, meta.Index, nv)
		if err != nil {
			return err
		}
		if warn {
			return cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0")
		}
		return nil
	default:
		target, ok := x.Addresses.Resolve(p.Ptr.ReferentID)
		if !ok {
			return cberrors.New(cberrors.NullDereference, "dangling pointer")
		}
		if target.IsConst && target.IsAssigned {
			return cberrors.Newf(cberrors.ConstReassign, "const %q is already assigned", target.Name)
		}
		if warn := target.Set(nv); warn {
			return cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0")
		}
		return nil
	}
}

func (x *Executor) assignIndex(scopes *scope.Stack, t *ast.IndexTarget, valExpr ast.Expr) error {
	v, _, err := x.Eval.ResolveVariable(scopes, t.Array)
	if err != nil {
		return err
	}
	indices, err := x.Eval.EvalIndices(scopes, t.Indices)
	if err != nil {
		return err
	}
	nv, err := x.Eval.Eval(scopes, valExpr)
	if err != nil {
		return err
	}
	warn, err := arrayengine.Set(v, indices, nv)
	if err != nil {
		return err
	}
	if warn {
		return cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0")
	}
	return nil
}

func (x *Executor) assignMember(scopes *scope.Stack, t *ast.MemberTarget, valExpr ast.Expr) error {
	if t.ArrowDeref {
		p, err := x.Eval.Eval(scopes, t.Object)
		if err != nil {
			return err
		}
		if p.Tag != value.TagPointer {
			return cberrors.New(cberrors.TypeMismatch, "-> on a non-pointer value")
		}
		if p.Ptr.Kind == value.PointerNull {
			return cberrors.New(cberrors.NullDereference, "member assignment through a null pointer")
		}
		pointee, ok := x.Addresses.Resolve(p.Ptr.ReferentID)
		if !ok {
			return cberrors.New(cberrors.NullDereference, "dangling pointer")
		}
		return x.assignMemberOnVar(scopes, pointee, pointee.Name, t, valExpr)
	}
	objVar, objPath, err := x.Eval.ResolveVariable(scopes, t.Object)
	if err != nil {
		return err
	}
	return x.assignMemberOnVar(scopes, objVar, objPath, t, valExpr)
}

func (x *Executor) assignMemberOnVar(scopes *scope.Stack, objVar *value.Variable, objPath string, t *ast.MemberTarget, valExpr ast.Expr) error {
	if objVar == nil || objVar.StructMembers == nil {
		return cberrors.Newf(cberrors.TypeMismatch, "%q is not a struct", objPath)
	}
	mv, ok := objVar.StructMembers.Get(t.Member)
	if !ok {
		return cberrors.Newf(cberrors.UndefinedSymbol, "struct %q has no member %q", objVar.StructMembers.TypeName, t.Member)
	}
	if err := x.Structs.CheckPrivate(x.Eval.Impl, objVar.StructMembers.TypeName, t.Member, mv.IsPrivate); err != nil {
		return err
	}
	global := x.isGlobal(scopes)
	if len(t.Indices) == 0 {
		nv, err := x.Eval.Eval(scopes, valExpr)
		if err != nil {
			return err
		}
		return x.Structs.AssignMember(scopes, global, objPath, objVar.StructMembers, t.Member, nv)
	}
	indices, err := x.Eval.EvalIndices(scopes, t.Indices)
	if err != nil {
		return err
	}
	nv, err := x.Eval.Eval(scopes, valExpr)
	if err != nil {
		return err
	}
	warn, err := arrayengine.Set(mv, indices, nv)
	if err != nil {
		return err
	}
	dims := mv.ArrayDims
	if len(dims) == 0 && mv.Array != nil {
		dims = mv.Array.Dims
	}
	flat, err := arrayengine.FlatIndex(dims, indices)
	if err == nil {
		path := fmt.Sprintf("%s.%s[%d]", objPath, t.Member, flat)
		elem, flatErr := arrayengine.Get(mv, indices)
		if flatErr == nil {
			shadow := value.NewScalar(path, elem)
			if global {
				scopes.InsertGlobal(path, shadow)
			} else {
				scopes.Insert(path, shadow)
			}
		}
	}
	if warn {
		return cberrors.New(cberrors.UnsignedNegativeWarning, "negative value clamped to 0")
	}
	return nil
}
