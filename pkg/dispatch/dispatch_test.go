package dispatch

import (
	"testing"

	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/eval"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/stmtexec"
	"github.com/shadowlink0122/cb/pkg/structengine"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

type harness struct {
	sym   *symbols.Table
	disp  *Dispatcher
	addrs *value.AddressBook
}

func newHarness() *harness {
	sym := symbols.NewTable()
	structs := structengine.New(sym)
	addrs := value.NewAddressBook()
	impl := &structengine.ImplStack{}
	ev := eval.New(sym, structs, addrs, impl)
	exec := stmtexec.New(sym, structs, ev, addrs, nil)
	disp := New(sym, structs, ev, exec, addrs, impl)
	ev.Call = disp.Call
	return &harness{sym: sym, disp: disp, addrs: addrs}
}

func intLit(n int64) *ast.Literal { return &ast.Literal{Kind: ast.LitInt, I: n} }

func TestInvokeFunctionReturnsValue(t *testing.T) {
	h := newHarness()
	h.sym.Functions["double"] = &ast.FunctionDecl{
		Name:   "double",
		Params: []*ast.Param{{Name: "n", Type: ast.TypeRef{Name: "int"}}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.BinaryExpr{Op: "*", Left: &ast.Ident{Name: "n"}, Right: intLit(2)}},
		}},
	}
	s := scope.New()
	v, err := h.disp.invokeFunction(s, "double", []ast.Expr{intLit(21)})
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 42 {
		t.Fatalf("expected 42, got %d", v.AsInt())
	}
}

func TestArgumentCountMismatchFailsBeforeScopePush(t *testing.T) {
	h := newHarness()
	h.sym.Functions["f"] = &ast.FunctionDecl{Name: "f", Params: []*ast.Param{{Name: "a", Type: ast.TypeRef{Name: "int"}}}, Body: &ast.Block{}}
	s := scope.New()
	if _, err := h.disp.invokeFunction(s, "f", nil); err == nil {
		t.Fatal("expected argument count mismatch error")
	}
}

func pointStruct(h *harness) {
	h.sym.Structs["Point"] = &symbols.StructDefinition{
		Name: "Point",
		Members: []ast.StructMember{
			{Name: "x", Type: ast.TypeRef{Name: "int"}},
		},
	}
	h.sym.Methods["Point::bump"] = &ast.FunctionDecl{
		Name:     "bump",
		Receiver: &ast.Param{Name: "self", Type: ast.TypeRef{Name: "Point", IsPointer: true}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Assign{
				Target: &ast.MemberTarget{Object: &ast.Ident{Name: "self"}, Member: "x"},
				Value:  &ast.BinaryExpr{Op: "+", Left: &ast.MemberAccess{Object: &ast.Ident{Name: "self"}, Member: "x"}, Right: intLit(1)},
			},
		}},
	}
	h.sym.Impls = append(h.sym.Impls, &ast.ImplBlock{StructName: "Point", Methods: []*ast.FunctionDecl{h.sym.Methods["Point::bump"]}})
}

func TestMethodCallWritesBackThroughDirectReceiver(t *testing.T) {
	h := newHarness()
	pointStruct(h)
	s := scope.New()
	agg := value.NewStruct("Point")
	agg.Add(value.NewScalar("x", value.NewInt(value.TagInt, 10, false)))
	recv := &value.Variable{Name: "p", Tag: value.TagStruct, IsStruct: true, StructMembers: agg, TypeName: "Point"}
	s.Insert("p", recv)

	call := &ast.Call{Kind: ast.CallMethod, Receiver: &ast.Ident{Name: "p"}, Callee: "bump"}
	if _, err := h.disp.Call(s, call); err != nil {
		t.Fatal(err)
	}
	mv, _ := recv.StructMembers.Get("x")
	if mv.Get().AsInt() != 11 {
		t.Fatalf("expected 11 after writeback, got %d", mv.Get().AsInt())
	}
}

func TestMethodCallNullPointerReceiverFails(t *testing.T) {
	h := newHarness()
	pointStruct(h)
	s := scope.New()
	ptrVar := &value.Variable{Name: "p", Tag: value.TagPointer}
	ptrVar.Set(value.Value{Tag: value.TagPointer, Ptr: value.Null})
	s.Insert("p", ptrVar)

	call := &ast.Call{Kind: ast.CallMethod, Receiver: &ast.Ident{Name: "p"}, Callee: "bump"}
	if _, err := h.disp.Call(s, call); err == nil {
		t.Fatal("expected a null-dereference error before binding")
	}
}

func TestMethodCallThroughPointerReceiverWritesBackToPointee(t *testing.T) {
	h := newHarness()
	pointStruct(h)
	s := scope.New()
	agg := value.NewStruct("Point")
	agg.Add(value.NewScalar("x", value.NewInt(value.TagInt, 0, false)))
	pointee := &value.Variable{Name: "p", Tag: value.TagStruct, IsStruct: true, StructMembers: agg, TypeName: "Point"}
	s.Insert("p", pointee)

	id := h.addrs.AddressOf(pointee)
	ptrVar := &value.Variable{Name: "pp", Tag: value.TagPointer}
	ptrVar.Set(value.Value{Tag: value.TagPointer, Ptr: value.Pointer{Kind: value.PointerRaw, ReferentID: id}})
	s.Insert("pp", ptrVar)

	call := &ast.Call{Kind: ast.CallMethod, Receiver: &ast.Ident{Name: "pp"}, Callee: "bump"}
	if _, err := h.disp.Call(s, call); err != nil {
		t.Fatal(err)
	}
	mv, _ := pointee.StructMembers.Get("x")
	if mv.Get().AsInt() != 1 {
		t.Fatalf("expected 1 after pointer-receiver writeback, got %d", mv.Get().AsInt())
	}
}

func TestArrayParameterCopiesBackOnFrameExit(t *testing.T) {
	h := newHarness()
	h.sym.Functions["fill"] = &ast.FunctionDecl{
		Name: "fill",
		Params: []*ast.Param{
			{Name: "a", Type: ast.TypeRef{Name: "int", IsArray: true, Dims: []int{2}}},
		},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Assign{Target: &ast.IndexTarget{Array: &ast.Ident{Name: "a"}, Indices: []ast.Expr{intLit(0)}}, Value: intLit(77)},
		}},
	}
	s := scope.New()
	arrVar := &value.Variable{Name: "a", Tag: value.TagArray, ElemTag: value.TagInt, IsArray: true, ArrayDims: []int{2}, Array: value.NewArray(value.TagInt, false, []int{2})}
	s.Insert("a", arrVar)

	if _, err := h.disp.invokeFunction(s, "fill", []ast.Expr{&ast.Ident{Name: "a"}}); err != nil {
		t.Fatal(err)
	}
	if arrVar.Array.Ints()[0] != 77 {
		t.Fatalf("expected array copyback to apply mutation, got %d", arrVar.Array.Ints()[0])
	}
}

func TestUnsignedFunctionNegativeReturnClampsToZero(t *testing.T) {
	h := newHarness()
	h.sym.Functions["f"] = &ast.FunctionDecl{
		Name:       "f",
		ReturnType: ast.TypeRef{Name: "int", IsUnsigned: true},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.UnaryExpr{Op: "-", X: intLit(7)}},
		}},
	}
	s := scope.New()
	v, err := h.disp.invokeFunction(s, "f", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 0 {
		t.Fatalf("expected clamped 0, got %d", v.AsInt())
	}
}

func TestMethodCallOnPrimitiveReceiver(t *testing.T) {
	h := newHarness()
	h.sym.Methods["int::doubled"] = &ast.FunctionDecl{
		Name:     "doubled",
		Receiver: &ast.Param{Name: "self", Type: ast.TypeRef{Name: "int"}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.BinaryExpr{Op: "*", Left: &ast.Ident{Name: "self"}, Right: intLit(2)}},
		}},
	}
	s := scope.New()
	s.Insert("n", value.NewScalar("n", value.NewInt(value.TagInt, 21, false)))

	call := &ast.Call{Kind: ast.CallMethod, Receiver: &ast.Ident{Name: "n"}, Callee: "doubled"}
	v, err := h.disp.Call(s, call)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 42 {
		t.Fatalf("expected 42, got %d", v.AsInt())
	}
}

func TestInterfaceParameterRejectsUnlistedType(t *testing.T) {
	h := newHarness()
	h.sym.Interfaces["Shape"] = &symbols.InterfaceDefinition{Name: "Shape", Implementors: []string{"Circle"}}
	h.sym.Functions["area"] = &ast.FunctionDecl{
		Name:   "area",
		Params: []*ast.Param{{Name: "s", Type: ast.TypeRef{Name: "Shape"}}},
		Body:   &ast.Block{},
	}
	s := scope.New()
	if _, err := h.disp.invokeFunction(s, "area", []ast.Expr{intLit(1)}); err == nil {
		t.Fatal("expected an unlisted type to be rejected")
	}
}

func TestFunctionPointerParameterAndCall(t *testing.T) {
	h := newHarness()
	h.sym.Functions["inc"] = &ast.FunctionDecl{
		Name:   "inc",
		Params: []*ast.Param{{Name: "n", Type: ast.TypeRef{Name: "int"}}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.BinaryExpr{Op: "+", Left: &ast.Ident{Name: "n"}, Right: intLit(1)}},
		}},
	}
	h.sym.Functions["apply"] = &ast.FunctionDecl{
		Name: "apply",
		Params: []*ast.Param{
			{Name: "f", Type: ast.TypeRef{Name: "int", IsPointer: true}},
		},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.Call{Kind: ast.CallFunctionPointer, Callee: "f", Args: []ast.Expr{intLit(41)}}},
		}},
	}
	s := scope.New()
	v, err := h.disp.invokeFunction(s, "apply", []ast.Expr{&ast.UnaryExpr{Op: "&", X: &ast.Ident{Name: "inc"}}})
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 42 {
		t.Fatalf("expected 42, got %d", v.AsInt())
	}
}
