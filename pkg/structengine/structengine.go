// Package structengine implements the Cb Struct Engine:
// recursion validation of the symbol table's struct definitions, instance
// creation with direct-access shadow materialization, the four
// assignment surfaces, privacy enforcement, and shadow/aggregate
// synchronization.
//
// The dual representation (an aggregate value.Struct plus scope-level
// "name.member" shadow Variables) is kept, not collapsed: collapsing is
// only safe once every read path goes through one representation, and
// pkg/eval reads through both depending on call site.
package structengine

import (
	"fmt"
	"strings"

	"github.com/shadowlink0122/cb/pkg/arrayengine"
	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

// Engine reads struct definitions straight from the symbol table and
// manages instance lifecycle.
type Engine struct {
	Symbols *symbols.Table
}

func New(t *symbols.Table) *Engine { return &Engine{Symbols: t} }

// ValidateRecursion walks every struct definition's member list DFS. A
// value member of struct type is followed; a pointer member is not; a
// back-edge to any name already on the current DFS path fails.
func (e *Engine) ValidateRecursion() error {
	for name := range e.Symbols.Structs {
		if err := e.dfs(name, map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) dfs(name string, path map[string]bool) error {
	if path[name] {
		return cberrors.Newf(cberrors.TypeMismatch, "struct %q contains itself by value (recursive definition)", name)
	}
	def, ok := e.Symbols.Structs[name]
	if !ok {
		return nil
	}
	path[name] = true
	defer delete(path, name)
	for _, m := range def.Members {
		if m.Type.IsPointer {
			continue // pointer members are not followed
		}
		resolved := e.Symbols.ResolveTypeName(m.Type.Name)
		if _, isStruct := e.Symbols.Structs[resolved]; isStruct {
			if err := e.dfs(resolved, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Instantiate creates a default-initialized aggregate for a named
// struct, recursing into nested struct members. It does not install scope shadows; call MaterializeShadows
// for that.
func (e *Engine) Instantiate(typeName string) (*value.Struct, error) {
	resolved := e.Symbols.ResolveTypeName(typeName)
	def, ok := e.Symbols.Structs[resolved]
	if !ok {
		return nil, cberrors.Newf(cberrors.UndefinedSymbol, "undefined struct type %q", typeName)
	}
	s := value.NewStruct(resolved)
	for _, m := range def.Members {
		mv, err := e.defaultMember(m)
		if err != nil {
			return nil, err
		}
		s.Add(mv)
	}
	return s, nil
}

func (e *Engine) defaultMember(m ast.StructMember) (*value.Variable, error) {
	t := m.Type
	v := &value.Variable{Name: m.Name, TypeName: t.Name, IsPrivate: m.IsPrivate, IsUnsigned: t.IsUnsigned}
	resolved := e.Symbols.ResolveTypeName(t.Name)
	if _, isStruct := e.Symbols.Structs[resolved]; isStruct && !t.IsPointer && !t.IsArray {
		v.Tag = value.TagStruct
		v.IsStruct = true
		nested, err := e.Instantiate(resolved)
		if err != nil {
			return nil, err
		}
		v.StructMembers = nested
		return v, nil
	}
	if t.IsPointer {
		v.Tag = value.TagPointer
		return v, nil
	}
	if t.IsArray {
		v.Tag = value.TagArray
		v.IsArray = true
		v.IsMultiDim = len(t.Dims) > 1
		v.ArrayDims = t.Dims
		if _, isStructElem := e.Symbols.Structs[resolved]; isStructElem {
			v.ElemTag = value.TagStruct
			n := 1
			for _, dim := range t.Dims {
				n *= dim
			}
			elems := make([]*value.Struct, n)
			for i := range elems {
				es, err := e.Instantiate(resolved)
				if err != nil {
					return nil, err
				}
				elems[i] = es
			}
			v.Array = value.NewStructArray(resolved, t.Dims, elems)
			return v, nil
		}
		elemTag := value.TagFromName(resolved)
		v.ElemTag = elemTag
		v.Array = value.NewArray(elemTag, t.IsUnsigned, t.Dims)
		return v, nil
	}
	v.Tag = value.TagFromName(resolved)
	zero := value.Zero(v.Tag)
	zero.Unsigned = t.IsUnsigned
	v.Set(zero)
	v.IsAssigned = false
	return v, nil
}

// MaterializeShadows installs a "<parent>.<member>" shadow Variable for
// every member of s (and recursively for nested struct members), the
// instance-creation shadow rule. If global is true, shadows are
// installed in the global scope; otherwise the current scope.
func (e *Engine) MaterializeShadows(scopes *scope.Stack, global bool, parentPath string, s *value.Struct) {
	for _, name := range s.Order {
		m := s.Members[name]
		path := parentPath + "." + name
		if global {
			scopes.InsertGlobal(path, m)
		} else {
			scopes.Insert(path, m)
		}
		if m.IsStruct && m.StructMembers != nil {
			e.MaterializeShadows(scopes, global, path, m.StructMembers)
		}
		if m.IsArray && m.Array != nil {
			e.materializeArrayShadows(scopes, global, path, m)
		}
	}
}

func (e *Engine) materializeArrayShadows(scopes *scope.Stack, global bool, path string, arrVar *value.Variable) {
	if arrVar.ElemTag == value.TagStruct {
		// Struct-array elements are addressed directly through the
		// array's stable *value.Struct pointers (see
		// eval.resolveIndexedStruct), not through a scalar shadow.
		return
	}
	for i := 0; i < arrVar.Array.Size(); i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		elemVar := &value.Variable{Name: elemPath, Tag: arrVar.ElemTag, IsUnsigned: arrVar.IsUnsigned}
		if ev, err := arrayengine.GetFlat(arrVar.Array, i); err == nil {
			elemVar.Set(ev)
		}
		if global {
			scopes.InsertGlobal(elemPath, elemVar)
		} else {
			scopes.Insert(elemPath, elemVar)
		}
	}
}

// SyncShadowsFromStruct rebuilds every "parentPath.m" shadow from the
// aggregate's current member values, the inverse boundary primitive to
// SyncStructFromShadows. Because shadows alias the aggregate's member
// Variables by pointer, most member writes keep both views consistent
// for free; this resync matters after a whole-aggregate replacement
// (struct-to-struct assignment), where stale shadows from a previous
// aggregate must be re-pointed at the current members.
func (e *Engine) SyncShadowsFromStruct(scopes *scope.Stack, global bool, parentPath string, s *value.Struct) {
	e.MaterializeShadows(scopes, global, parentPath, s)
}

// SyncStructFromShadows rebuilds the aggregate's members from whatever
// "parentPath.m" shadows are currently in scope, called at method-call boundaries.
func (e *Engine) SyncStructFromShadows(scopes *scope.Stack, parentPath string, s *value.Struct) {
	for _, name := range s.Order {
		m := s.Members[name]
		path := parentPath + "." + name
		if shadow, ok := scopes.Find(path); ok {
			s.Members[name] = shadow
			if m.IsStruct && shadow.StructMembers != nil {
				e.SyncStructFromShadows(scopes, path, shadow.StructMembers)
			}
		}
	}
}

// AssignMember implements the member-write policy shared by o.m, a[i].m
// and o.m[i].n (the caller resolves the parent struct s): it rejects a
// write to an already-assigned const member, then updates both
// struct_members and the direct-access shadow. o.m[i] element writes do
// not come through here; pkg/stmtexec stores them via the array engine.
func (e *Engine) AssignMember(scopes *scope.Stack, global bool, parentName string, s *value.Struct, member string, v value.Value) error {
	m, ok := s.Get(member)
	if !ok {
		return cberrors.Newf(cberrors.UndefinedSymbol, "struct %q has no member %q", s.TypeName, member)
	}
	if m.IsConst && m.IsAssigned {
		return cberrors.Newf(cberrors.ConstReassign, "member %q of %q is const and already assigned", member, s.TypeName)
	}
	warn := m.Set(v)
	path := parentName + "." + member
	if global {
		scopes.InsertGlobal(path, m)
	} else {
		scopes.Insert(path, m)
	}
	if warn {
		return cberrors.New(cberrors.UnsignedNegativeWarning, fmt.Sprintf("negative value clamped to 0 for unsigned member %q", member))
	}
	return nil
}

// CopyValues writes src's current member values into dst in place,
// recursing into nested struct members and replacing array members
// wholesale. Keeping dst's member Variables alive (rather than swapping
// in src's) means every scope shadow that aliases them by pointer sees
// the update without a resync pass.
func CopyValues(dst, src *value.Struct) {
	for _, name := range src.Order {
		sm := src.Members[name]
		dm, ok := dst.Get(name)
		if !ok {
			continue
		}
		switch {
		case sm.IsStruct && sm.StructMembers != nil && dm.StructMembers != nil:
			CopyValues(dm.StructMembers, sm.StructMembers)
		case sm.IsArray && sm.Array != nil:
			dm.Array = sm.Array.Clone()
		default:
			dm.Set(sm.Get())
		}
	}
}

// ImplContext records the (interface, struct) pair for the
// currently-executing method.
type ImplContext struct {
	Interface string
	Struct    string
}

// ImplStack is pushed on method entry and popped on every exit path,
// including exceptions.
type ImplStack struct {
	frames []ImplContext
}

func (s *ImplStack) Push(c ImplContext) { s.frames = append(s.frames, c) }
func (s *ImplStack) Pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}
func (s *ImplStack) Current() (ImplContext, bool) {
	if len(s.frames) == 0 {
		return ImplContext{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// CheckPrivate enforces the member access rule: a private member is
// reachable only within a method of that struct's impl.
func (e *Engine) CheckPrivate(impl *ImplStack, structTypeName, member string, isPrivate bool) error {
	if !isPrivate {
		return nil
	}
	cur, ok := impl.Current()
	if !ok || !strings.EqualFold(cur.Struct, structTypeName) {
		return cberrors.Newf(cberrors.PrivateAccess, "member %q of %q is private", member, structTypeName)
	}
	return nil
}
