package structengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/scope"
	"github.com/shadowlink0122/cb/pkg/symbols"
	"github.com/shadowlink0122/cb/pkg/value"
)

func tableWith(structs map[string][]ast.StructMember) *symbols.Table {
	t := symbols.NewTable()
	for name, members := range structs {
		t.Structs[name] = &symbols.StructDefinition{Name: name, Members: members}
	}
	return t
}

func TestValidateRecursionAllowsPointerBackReference(t *testing.T) {
	members := map[string][]ast.StructMember{
		"Node": {{Name: "next", Type: ast.TypeRef{Name: "Node", IsPointer: true}}},
	}
	e := New(tableWith(members))
	assert.NoError(t, e.ValidateRecursion())
}

func TestValidateRecursionRejectsValueSelfReference(t *testing.T) {
	members := map[string][]ast.StructMember{
		"Node": {{Name: "child", Type: ast.TypeRef{Name: "Node"}}},
	}
	e := New(tableWith(members))
	err := e.ValidateRecursion()
	require.Error(t, err)
	assert.True(t, cberrors.IsKind(err, cberrors.TypeMismatch))
}

func TestInstantiateBuildsNestedStructAndArrayDefaults(t *testing.T) {
	members := map[string][]ast.StructMember{
		"Inner": {{Name: "n", Type: ast.TypeRef{Name: "int"}}},
		"Outer": {
			{Name: "inner", Type: ast.TypeRef{Name: "Inner"}},
			{Name: "vals", Type: ast.TypeRef{Name: "int", IsArray: true, Dims: []int{3}}},
			{Name: "secret", Type: ast.TypeRef{Name: "int"}, IsPrivate: true},
		},
	}
	e := New(tableWith(members))

	s, err := e.Instantiate("Outer")
	require.NoError(t, err)

	inner, ok := s.Get("inner")
	require.True(t, ok)
	assert.True(t, inner.IsStruct)
	require.NotNil(t, inner.StructMembers)
	n, ok := inner.StructMembers.Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(0), n.Get().AsInt())

	vals, ok := s.Get("vals")
	require.True(t, ok)
	assert.True(t, vals.IsArray)
	assert.Equal(t, 3, vals.Array.Size())

	secret, ok := s.Get("secret")
	require.True(t, ok)
	assert.True(t, secret.IsPrivate)
}

func TestInstantiateBuildsStructArrayMemberWithStableElements(t *testing.T) {
	members := map[string][]ast.StructMember{
		"Cell":  {{Name: "v", Type: ast.TypeRef{Name: "int"}}},
		"Board": {{Name: "cells", Type: ast.TypeRef{Name: "Cell", IsArray: true, Dims: []int{2}}}},
	}
	e := New(tableWith(members))

	s, err := e.Instantiate("Board")
	require.NoError(t, err)

	cells, ok := s.Get("cells")
	require.True(t, ok)
	require.Equal(t, value.TagStruct, cells.ElemTag)
	elems := cells.Array.Structs()
	require.Len(t, elems, 2)

	// Elements are independent instances, not aliases of one default.
	v0, _ := elems[0].Get("v")
	v0.Set(value.NewInt(value.TagInt, 5, false))
	v1, _ := elems[1].Get("v")
	assert.Equal(t, int64(0), v1.Get().AsInt())
}

func TestInstantiateRejectsUndefinedType(t *testing.T) {
	e := New(tableWith(nil))
	_, err := e.Instantiate("Missing")
	require.Error(t, err)
	assert.True(t, cberrors.IsKind(err, cberrors.UndefinedSymbol))
}

func TestMaterializeAndSyncShadowsRoundTrip(t *testing.T) {
	members := map[string][]ast.StructMember{
		"P": {{Name: "x", Type: ast.TypeRef{Name: "int"}}},
	}
	e := New(tableWith(members))
	s, err := e.Instantiate("P")
	require.NoError(t, err)

	scopes := scope.New()
	e.MaterializeShadows(scopes, false, "p", s)

	shadow, ok := scopes.Find("p.x")
	require.True(t, ok)
	shadow.Set(value.NewInt(value.TagInt, 7, false))

	e.SyncStructFromShadows(scopes, "p", s)
	m, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(7), m.Get().AsInt())
}

func TestAssignMemberRejectsConstReassignment(t *testing.T) {
	s := value.NewStruct("P")
	m := value.NewScalar("x", value.NewInt(value.TagInt, 1, false))
	m.IsConst = true
	m.IsAssigned = true
	s.Add(m)

	e := New(tableWith(nil))
	scopes := scope.New()
	err := e.AssignMember(scopes, false, "p", s, "x", value.NewInt(value.TagInt, 2, false))
	require.Error(t, err)
	assert.True(t, cberrors.IsKind(err, cberrors.ConstReassign))
}

func TestAssignMemberWarnsOnUnsignedNegativeClamp(t *testing.T) {
	s := value.NewStruct("P")
	m := &value.Variable{Name: "x", Tag: value.TagInt, IsUnsigned: true}
	s.Add(m)

	e := New(tableWith(nil))
	scopes := scope.New()
	err := e.AssignMember(scopes, false, "p", s, "x", value.NewInt(value.TagInt, -5, true))
	require.Error(t, err)
	assert.True(t, cberrors.IsKind(err, cberrors.UnsignedNegativeWarning))
	assert.Equal(t, int64(0), m.Get().AsInt())
}

func TestCheckPrivateAllowsAccessOnlyFromOwningImpl(t *testing.T) {
	e := New(tableWith(nil))
	impl := &ImplStack{}

	err := e.CheckPrivate(impl, "P", "secret", true)
	require.Error(t, err)
	assert.True(t, cberrors.IsKind(err, cberrors.PrivateAccess))

	impl.Push(ImplContext{Interface: "", Struct: "P"})
	assert.NoError(t, e.CheckPrivate(impl, "P", "secret", true))
	assert.NoError(t, e.CheckPrivate(impl, "P", "public", false))

	impl.Pop()
	err = e.CheckPrivate(impl, "P", "secret", true)
	assert.Error(t, err)
}
