// Package symbols models the read-only symbol table the parser hands to
// the execution core: struct and interface definitions plus typedef
// aliases. The core consumes this table; it never writes back into it
// (pkg/structengine reads struct definitions from it directly).
package symbols

import "github.com/shadowlink0122/cb/pkg/ast"

// StructDefinition is the ordered member list for one struct name.
type StructDefinition struct {
	Name    string
	Members []ast.StructMember
}

// InterfaceDefinition lists the method short-names a struct must
// provide to satisfy the interface, plus the set of concrete type names
// known to implement it.
type InterfaceDefinition struct {
	Name         string
	Methods      []string
	Implementors []string // struct names, and/or primitive type names
}

// Table is the full symbol table: structs, interfaces, typedefs, free
// functions, and methods.
type Table struct {
	Structs    map[string]*StructDefinition
	Interfaces map[string]*InterfaceDefinition
	Typedefs   map[string]ast.TypeRef
	Unions     map[string]*ast.UnionDecl

	// Functions holds free (non-method) function declarations by name.
	Functions map[string]*ast.FunctionDecl

	// Methods holds "TypeKey::method_name" -> declaration, the primary
	// lookup path the dispatcher's RESOLVE_CALLEE step uses.
	Methods map[string]*ast.FunctionDecl

	// Impls is the registered impl blocks, scanned by short method name
	// when the Methods fast path misses.
	Impls []*ast.ImplBlock
}

func NewTable() *Table {
	return &Table{
		Structs:    make(map[string]*StructDefinition),
		Interfaces: make(map[string]*InterfaceDefinition),
		Typedefs:   make(map[string]ast.TypeRef),
		Unions:     make(map[string]*ast.UnionDecl),
		Functions:  make(map[string]*ast.FunctionDecl),
		Methods:    make(map[string]*ast.FunctionDecl),
	}
}

// ResolveTypeName strips typedef indirection, following chains until a
// non-aliased name is reached.
func (t *Table) ResolveTypeName(name string) string {
	seen := make(map[string]bool)
	for {
		if seen[name] {
			return name // cyclic alias guard; resolution is a no-op past this point
		}
		seen[name] = true
		ref, ok := t.Typedefs[name]
		if !ok || ref.Name == name {
			return name
		}
		name = ref.Name
	}
}

// AddFromProgram walks a Program's top-level Decls and populates the
// table. This is a convenience used by tests and by cmd/cb when no
// separate frontend has already built the table.
func AddFromProgram(t *Table, prog *ast.Program) {
	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *ast.StructDecl:
			t.Structs[decl.Name] = &StructDefinition{Name: decl.Name, Members: decl.Members}
		case *ast.InterfaceDecl:
			t.Interfaces[decl.Name] = &InterfaceDefinition{Name: decl.Name, Methods: decl.Methods}
		case *ast.TypedefDecl:
			t.Typedefs[decl.Name] = decl.Underlying
		case *ast.UnionDecl:
			t.Unions[decl.Name] = decl
		case *ast.FunctionDecl:
			if decl.Receiver == nil {
				t.Functions[decl.Name] = decl
			}
		case *ast.ImplBlock:
			if decl.InterfaceName != "" {
				iface, ok := t.Interfaces[decl.InterfaceName]
				if ok {
					iface.Implementors = append(iface.Implementors, decl.StructName)
				}
			}
			t.Impls = append(t.Impls, decl)
			for _, m := range decl.Methods {
				t.Methods[decl.StructName+"::"+m.Name] = m
			}
		}
	}
}

// FindMethod resolves a callee for a method call: a direct
// TypeKey::method_name lookup, falling back to a scan of registered impl
// blocks whose struct name matches typeKey.
func (t *Table) FindMethod(typeKey, name string) (*ast.FunctionDecl, *ast.ImplBlock, bool) {
	if m, ok := t.Methods[typeKey+"::"+name]; ok {
		for _, impl := range t.Impls {
			if impl.StructName == typeKey {
				for _, cand := range impl.Methods {
					if cand.Name == name {
						return m, impl, true
					}
				}
			}
		}
		return m, nil, true
	}
	for _, impl := range t.Impls {
		if impl.StructName != typeKey {
			continue
		}
		for _, m := range impl.Methods {
			if m.Name == name {
				return m, impl, true
			}
		}
	}
	return nil, nil, false
}
