package interp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/symbols"
)

func newTestInterp(t *testing.T, prog *ast.Program) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	table := symbols.NewTable()
	symbols.AddFromProgram(table, prog)
	var out bytes.Buffer
	return New(table, &out, nil), &out
}

// TestMethodWritebackViaPointerReceiver builds, by hand, the equivalent
// of:
//
//	struct P { x int }
//	impl P { fn inc(self) { self.x = self.x + 1 } }
//	fn main() {
//	    P p;
//	    p.x = 5;
//	    P* pp = &p;
//	    pp.inc();
//	    print p.x;
//	}
//
// and checks the pointer-receiver method call writes 6 back to p.
func TestMethodWritebackViaPointerReceiver(t *testing.T) {
	structDecl := &ast.StructDecl{
		Name:    "P",
		Members: []ast.StructMember{{Name: "x", Type: ast.TypeRef{Name: "int"}}},
	}
	incBody := &ast.Assign{
		Target: &ast.MemberTarget{Object: &ast.Ident{Name: "self"}, Member: "x", IsSelf: true},
		Value: &ast.BinaryExpr{
			Op:    "+",
			Left:  &ast.MemberAccess{Object: &ast.Ident{Name: "self"}, Member: "x"},
			Right: &ast.Literal{Kind: ast.LitInt, I: 1},
		},
	}
	inc := &ast.FunctionDecl{
		Name:     "inc",
		Receiver: &ast.Param{Name: "self", Type: ast.TypeRef{Name: "P"}},
		Body:     &ast.Block{Stmts: []ast.Stmt{incBody}},
	}
	impl := &ast.ImplBlock{StructName: "P", Methods: []*ast.FunctionDecl{inc}}

	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Names: []string{"p"}, Type: ast.TypeRef{Name: "P"}},
		&ast.Assign{
			Target: &ast.MemberTarget{Object: &ast.Ident{Name: "p"}, Member: "x"},
			Value:  &ast.Literal{Kind: ast.LitInt, I: 5},
		},
		&ast.VarDecl{
			Names:  []string{"pp"},
			Type:   ast.TypeRef{Name: "P", IsPointer: true},
			Values: []ast.Expr{&ast.UnaryExpr{Op: "&", X: &ast.Ident{Name: "p"}}},
		},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallMethod, Receiver: &ast.Ident{Name: "pp"}, Callee: "inc"}},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{
			&ast.MemberAccess{Object: &ast.Ident{Name: "p"}, Member: "x"},
		}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}

	prog := &ast.Program{Decls: []ast.Decl{structDecl, impl, main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "6\n", out.String())
}

// TestPrintMultipleArguments checks doPrint's space-joined, newline-
// terminated output shape.
func TestPrintMultipleArguments(t *testing.T) {
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{
			&ast.Literal{Kind: ast.LitInt, I: 1},
			&ast.Literal{Kind: ast.LitBool, B: true},
			&ast.Literal{Kind: ast.LitString, S: "hi"},
		}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "1 true hi\n", out.String())
}

// TestAwaitPipelineResolvesThroughSleep builds the equivalent of:
//
//	fn f() async int { await sleep(10); return 42; }
//	fn main() { print await f(); }
//
// confirming an async function call auto-schedules onto the event loop,
// a nested `await sleep(...)` inside its body drains a reentrant Step,
// and the outer await extracts the resolved value.
func TestAwaitPipelineResolvesThroughSleep(t *testing.T) {
	fBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "await", Args: []ast.Expr{
			&ast.Call{Kind: ast.CallPlain, Callee: "sleep", Args: []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: 10}}},
		}}},
		&ast.Return{Value: &ast.Literal{Kind: ast.LitInt, I: 42}},
	}}
	f := &ast.FunctionDecl{Name: "f", IsAsync: true, ReturnType: ast.TypeRef{Name: "int"}, Body: fBody}

	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{
			&ast.Call{Kind: ast.CallPlain, Callee: "await", Args: []ast.Expr{
				&ast.Call{Kind: ast.CallPlain, Callee: "f"},
			}},
		}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}

	prog := &ast.Program{Decls: []ast.Decl{f, main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "42\n", out.String())
}

// TestRunReportsExitCodeOnUnrecoveredError checks that a division by zero
// in main maps to a stable non-zero exit code instead of panicking.
func TestRunReportsExitCodeOnUnrecoveredError(t *testing.T) {
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.BinaryExpr{Op: "/", Left: &ast.Literal{Kind: ast.LitInt, I: 1}, Right: &ast.Literal{Kind: ast.LitInt, I: 0}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{main}}

	it, _ := newTestInterp(t, prog)
	code := it.Run(prog)

	assert.Equal(t, 2, code)
}

// TestChainedMethodCallsOnReturnByValueStruct builds the equivalent of:
//
//	struct B { v int }
//	impl B {
//	    fn set(self, n int) B { self.v = n; return self; }
//	    fn get(self) int { return self.v; }
//	}
//	fn main() { B b; print b.set(7).get(); }
//
// checking the chain receiver carries set's mutation into get.
func TestChainedMethodCallsOnReturnByValueStruct(t *testing.T) {
	structDecl := &ast.StructDecl{
		Name:    "B",
		Members: []ast.StructMember{{Name: "v", Type: ast.TypeRef{Name: "int"}}},
	}
	set := &ast.FunctionDecl{
		Name:     "set",
		Receiver: &ast.Param{Name: "self", Type: ast.TypeRef{Name: "B"}},
		Params:   []*ast.Param{{Name: "n", Type: ast.TypeRef{Name: "int"}}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Assign{
				Target: &ast.MemberTarget{Object: &ast.Ident{Name: "self"}, Member: "v", IsSelf: true},
				Value:  &ast.Ident{Name: "n"},
			},
			&ast.Return{Value: &ast.Ident{Name: "self"}},
		}},
	}
	get := &ast.FunctionDecl{
		Name:     "get",
		Receiver: &ast.Param{Name: "self", Type: ast.TypeRef{Name: "B"}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.MemberAccess{Object: &ast.Ident{Name: "self"}, Member: "v"}},
		}},
	}
	impl := &ast.ImplBlock{StructName: "B", Methods: []*ast.FunctionDecl{set, get}}

	chained := &ast.Call{
		Kind: ast.CallChain,
		Receiver: &ast.Call{
			Kind:     ast.CallMethod,
			Receiver: &ast.Ident{Name: "b"},
			Callee:   "set",
			Args:     []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: 7}},
		},
		Callee: "get",
	}
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Names: []string{"b"}, Type: ast.TypeRef{Name: "B"}},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{chained}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}

	prog := &ast.Program{Decls: []ast.Decl{structDecl, impl, main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "7\n", out.String())
}

// Test2DArrayAssignmentThroughStructMember builds the equivalent of:
//
//	struct G { grid int[2][3] }
//	fn main() { G g; g.grid[1][2] = 9; print g.grid[1][2]; }
func Test2DArrayAssignmentThroughStructMember(t *testing.T) {
	structDecl := &ast.StructDecl{
		Name:    "G",
		Members: []ast.StructMember{{Name: "grid", Type: ast.TypeRef{Name: "int", IsArray: true, Dims: []int{2, 3}}}},
	}
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Names: []string{"g"}, Type: ast.TypeRef{Name: "G"}},
		&ast.Assign{
			Target: &ast.MemberTarget{
				Object:  &ast.Ident{Name: "g"},
				Member:  "grid",
				Indices: []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: 1}, &ast.Literal{Kind: ast.LitInt, I: 2}},
			},
			Value: &ast.Literal{Kind: ast.LitInt, I: 9},
		},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{
			&ast.IndexExpr{
				Array:   &ast.MemberAccess{Object: &ast.Ident{Name: "g"}, Member: "grid"},
				Indices: []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: 1}, &ast.Literal{Kind: ast.LitInt, I: 2}},
			},
		}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{structDecl, main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "9\n", out.String())
}

// TestUnsignedArrayLiteralClampsNegatives builds the equivalent of:
//
//	fn main() {
//	    unsigned int[3] a = [1, -2, 3];
//	    print a[0]; print a[1]; print a[2];
//	}
func TestUnsignedArrayLiteralClampsNegatives(t *testing.T) {
	idx := func(i int64) ast.Stmt {
		return &ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{
			&ast.IndexExpr{Array: &ast.Ident{Name: "a"}, Indices: []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: i}}},
		}}}
	}
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{
			Names: []string{"a"},
			Type:  ast.TypeRef{Name: "int", IsArray: true, Dims: []int{3}, IsUnsigned: true},
			Values: []ast.Expr{&ast.ArrayLiteral{Elements: []ast.Expr{
				&ast.Literal{Kind: ast.LitInt, I: 1},
				&ast.UnaryExpr{Op: "-", X: &ast.Literal{Kind: ast.LitInt, I: 2}},
				&ast.Literal{Kind: ast.LitInt, I: 3},
			}}},
		},
		idx(0), idx(1), idx(2),
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "1\n0\n3\n", out.String())
}

// TestConstReassignmentIsFatal checks the equivalent of
// `const int x = 1; x = 2;` stops execution with a stable exit code and
// runs no further statements.
func TestConstReassignmentIsFatal(t *testing.T) {
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Names: []string{"x"}, Type: ast.TypeRef{Name: "int"}, Values: []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: 1}}, IsConst: true},
		&ast.Assign{Target: &ast.NameTarget{Name: "x"}, Value: &ast.Literal{Kind: ast.LitInt, I: 2}},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{&ast.Literal{Kind: ast.LitString, S: "unreached"}}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	assert.Equal(t, 8, code)
	assert.Empty(t, out.String())
}

// TestArrowMemberAssignAndRead covers p->m = e and reading a member back
// through the pointer.
func TestArrowMemberAssignAndRead(t *testing.T) {
	structDecl := &ast.StructDecl{
		Name:    "P",
		Members: []ast.StructMember{{Name: "x", Type: ast.TypeRef{Name: "int"}}},
	}
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Names: []string{"p"}, Type: ast.TypeRef{Name: "P"}},
		&ast.VarDecl{
			Names:  []string{"pp"},
			Type:   ast.TypeRef{Name: "P", IsPointer: true},
			Values: []ast.Expr{&ast.UnaryExpr{Op: "&", X: &ast.Ident{Name: "p"}}},
		},
		&ast.Assign{
			Target: &ast.MemberTarget{Object: &ast.Ident{Name: "pp"}, Member: "x", ArrowDeref: true},
			Value:  &ast.Literal{Kind: ast.LitInt, I: 7},
		},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{
			&ast.MemberAccess{Object: &ast.Ident{Name: "pp"}, Member: "x", Arrow: true},
		}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{structDecl, main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "7\n", out.String())
}

// TestPrintDoubleInitializedFromIntLiteral checks the equivalent of
// `double d = 3; print d;` stores the payload in the floating slot and
// prints 3, not 0.
func TestPrintDoubleInitializedFromIntLiteral(t *testing.T) {
	mainBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Names: []string{"d"}, Type: ast.TypeRef{Name: "double"}, Values: []ast.Expr{&ast.Literal{Kind: ast.LitInt, I: 3}}},
		&ast.ExprStmt{X: &ast.Call{Kind: ast.CallPlain, Callee: "print", Args: []ast.Expr{&ast.Ident{Name: "d"}}}},
	}}
	main := &ast.FunctionDecl{Name: "main", Body: mainBody}
	prog := &ast.Program{Decls: []ast.Decl{main}}

	it, out := newTestInterp(t, prog)
	code := it.Run(prog)

	require.Equal(t, 0, code)
	assert.Equal(t, "3\n", out.String())
}
