package value

import "fmt"

// Variable is the entity stored in a scope under a name.
type Variable struct {
	Name     string
	Tag      TypeTag
	ElemTag  TypeTag // element tag when Tag == TagArray
	TypeName string  // named type: struct/interface/typedef name

	IsConst    bool
	IsAssigned bool

	IsReference bool
	Referent    *Variable // non-owning view; referent outlives reference, lexically enforced

	IsArray        bool
	IsMultiDim     bool
	ArraySize      int
	ArrayDims      []int
	Array          *Array

	IsStruct      bool
	StructMembers *Struct
	IsPrivate     bool

	IsFunctionPointer bool
	FuncTarget        int64 // resolved target AST node id

	IsUnsigned bool

	scalar Value // payload for non-array, non-struct, non-reference bindings
}

// NewScalar creates a plain scalar binding.
func NewScalar(name string, v Value) *Variable {
	return &Variable{Name: name, Tag: v.Tag, IsUnsigned: v.Unsigned, scalar: v}
}

// Get resolves through a reference chain and returns the value currently
// held. For struct/array bindings the caller should prefer Struct/Array
// directly; Get is for scalar (and pointer/function-pointer) bindings.
func (v *Variable) Get() Value {
	if v.IsReference && v.Referent != nil {
		return v.Referent.Get()
	}
	return v.scalar
}

// Set writes a scalar value, applying width conversion, bool
// normalization, and unsigned clamping at the storage boundary. It
// returns true if an UnsignedNegativeWarning should be emitted.
func (v *Variable) Set(nv Value) (warn bool) {
	if v.IsReference && v.Referent != nil {
		return v.Referent.Set(nv)
	}
	nv = Convert(nv, v.Tag)
	nv.Unsigned = v.IsUnsigned || nv.Unsigned
	nv = NormalizeBool(nv)
	clamped, w := ClampUnsigned(nv)
	v.scalar = clamped
	v.IsAssigned = true
	return w
}

// SetUnion stores nv verbatim, preserving its own dynamic tag instead of
// forcing v.Tag the way Set does — a TagUnion binding's Tag field only
// marks "this is a union instance"; the payload's real tag is whichever
// allowed-set member was assigned.
func (v *Variable) SetUnion(nv Value) {
	v.scalar = nv
	v.IsAssigned = true
}

func (v *Variable) String() string {
	return fmt.Sprintf("Variable{%s %s}", v.Name, v.Tag)
}

// Struct is the struct/interface/union aggregate payload. Members
// preserve declaration order, mirrored by a name->Variable map for O(1)
// lookup — the aggregate side of the dual representation (the
// scope-shadow side lives in pkg/structengine).
type Struct struct {
	TypeName string
	Order    []string
	Members  map[string]*Variable

	// UnionAllowed holds the set of values (compared by value) a TagUnion
	// instance may legally hold; empty for plain structs/interfaces.
	UnionAllowed []Value

	// WrappedPrimitive marks an aggregate synthesized to let a primitive
	// value travel where an interface is expected; the primitive lives
	// under a single "value" member and TypeName carries the primitive's
	// textual type name for method dispatch.
	WrappedPrimitive bool
}

func NewStruct(typeName string) *Struct {
	return &Struct{TypeName: typeName, Members: make(map[string]*Variable)}
}

func (s *Struct) Add(m *Variable) {
	if _, exists := s.Members[m.Name]; !exists {
		s.Order = append(s.Order, m.Name)
	}
	s.Members[m.Name] = m
}

func (s *Struct) Get(name string) (*Variable, bool) {
	m, ok := s.Members[name]
	return m, ok
}

// Clone deep-copies the aggregate, including nested struct/array members,
// for struct-parameter pass-by-value
// and for `self = deepcopy(receiver)`.
func (s *Struct) Clone() *Struct {
	out := NewStruct(s.TypeName)
	out.UnionAllowed = append([]Value(nil), s.UnionAllowed...)
	out.WrappedPrimitive = s.WrappedPrimitive
	for _, name := range s.Order {
		m := s.Members[name]
		clone := *m
		if m.StructMembers != nil {
			clone.StructMembers = m.StructMembers.Clone()
		}
		if m.Array != nil {
			clone.Array = m.Array.Clone()
		}
		out.Add(&clone)
	}
	return out
}

// Array is the N-D typed array storage descriptor.
// A single flat vector per element kind is used; only the vector matching
// ElemTag is meaningful. ElemTag == TagStruct is the one exception: the
// backing store is a flat vector of stable *Struct pointers instead of a
// scalar vector, so a[i].m mutates the element's aggregate in place.
type Array struct {
	ElemTag      TypeTag
	Unsigned     bool
	Dims         []int  // row-major declared dimensions; len==1 for a flat array
	ElemTypeName string // struct type name, when ElemTag == TagStruct

	ints    []int64
	f32s    []float32
	f64s    []float64
	quads   []float64
	strs    []string
	structs []*Struct
}

func NewArray(elemTag TypeTag, unsigned bool, dims []int) *Array {
	size := flatSize(dims)
	a := &Array{ElemTag: elemTag, Unsigned: unsigned, Dims: append([]int(nil), dims...)}
	switch {
	case elemTag == TagString:
		a.strs = make([]string, size)
	case elemTag == TagFloat:
		a.f32s = make([]float32, size)
	case elemTag == TagDouble:
		a.f64s = make([]float64, size)
	case elemTag == TagQuad:
		a.quads = make([]float64, size)
	default:
		a.ints = make([]int64, size)
	}
	return a
}

// NewStructArray builds an array of struct elements: each element is a
// caller-supplied instance (already default-initialized by the struct
// engine), so element identity is a stable *Struct pointer rather than a
// flat scalar vector — struct members are mutated in place through it,
// the same way a[i].m = v mutates the aggregate directly.
func NewStructArray(typeName string, dims []int, elems []*Struct) *Array {
	return &Array{ElemTag: TagStruct, ElemTypeName: typeName, Dims: append([]int(nil), dims...), structs: elems}
}

func flatSize(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func (a *Array) Size() int { return flatSize(a.Dims) }

// Ints, Float32s, Float64s, Quads, and Strings expose the single backing
// vector matching ElemTag for direct indexed access (pkg/arrayengine).
func (a *Array) Ints() []int64       { return a.ints }
func (a *Array) Float32s() []float32 { return a.f32s }
func (a *Array) Float64s() []float64 { return a.f64s }
func (a *Array) Quads() []float64    { return a.quads }
func (a *Array) Strings() []string   { return a.strs }
func (a *Array) Structs() []*Struct  { return a.structs }

func (a *Array) Clone() *Array {
	out := &Array{ElemTag: a.ElemTag, Unsigned: a.Unsigned, Dims: append([]int(nil), a.Dims...), ElemTypeName: a.ElemTypeName}
	out.ints = append([]int64(nil), a.ints...)
	out.f32s = append([]float32(nil), a.f32s...)
	out.f64s = append([]float64(nil), a.f64s...)
	out.quads = append([]float64(nil), a.quads...)
	out.strs = append([]string(nil), a.strs...)
	if a.structs != nil {
		out.structs = make([]*Struct, len(a.structs))
		for i, s := range a.structs {
			out.structs[i] = s.Clone()
		}
	}
	return out
}

// AddressBook assigns stable integer ids to Variables and to pointer
// metadata records, replacing the source's high-bit-tagged-integer trick
// with the recommended explicit Raw/Fat/FuncNode/Null sum
// type. One AddressBook is owned per interpreter instance.
type AddressBook struct {
	byID   map[int64]*Variable
	byVar  map[*Variable]int64
	metas  map[int64]*PointerMetadata
	nextID int64
}

// PointerMetadata is what a Fat pointer addresses: enough information to
// read/write through it without re-deriving intent. Scalar array
// elements are the one lvalue with no Variable of their own, so the
// metadata names the array binding and the element's indices; struct
// members and whole variables are addressed by raw referent id instead.
type PointerMetadata struct {
	ArrayTarget *Variable
	Index       []int
}

func NewAddressBook() *AddressBook {
	return &AddressBook{byID: make(map[int64]*Variable), byVar: make(map[*Variable]int64), metas: make(map[int64]*PointerMetadata)}
}

func (ab *AddressBook) AddressOf(v *Variable) int64 {
	if id, ok := ab.byVar[v]; ok {
		return id
	}
	ab.nextID++
	id := ab.nextID
	ab.byID[id] = v
	ab.byVar[v] = id
	return id
}

func (ab *AddressBook) Resolve(id int64) (*Variable, bool) {
	v, ok := ab.byID[id]
	return v, ok
}

func (ab *AddressBook) NewMetadata(m *PointerMetadata) int64 {
	ab.nextID++
	id := ab.nextID
	ab.metas[id] = m
	return id
}

func (ab *AddressBook) ResolveMetadata(id int64) (*PointerMetadata, bool) {
	m, ok := ab.metas[id]
	return m, ok
}
