// Package ast defines the Abstract Syntax Tree nodes for Cb programs.
//
// The AST is the execution core's read-only input; this
// module does not parse source text into it. All node types implement
// the Node interface, with statements implementing Stmt, expressions
// implementing Expr, and top-level declarations implementing Decl.
//
// Key node types include:
//   - Program: root node containing all top-level declarations
//   - StructDecl, InterfaceDecl, TypedefDecl, UnionDecl: type declarations
//   - FunctionDecl, ImplBlock: functions and methods
//   - VarDecl, Assign: variable handling, with AssignTarget covering the
//     seven assignment left-hand-side forms
//   - If, While, For, Return, ExprStmt: control flow
//   - Call: carries an explicit Kind (plain/method/function-pointer/chain)
//     rather than requiring callers to re-derive it
package ast
