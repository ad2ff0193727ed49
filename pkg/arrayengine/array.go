// Package arrayengine implements the Cb Array Engine: 1-D
// and N-D typed storage over a single flat vector per element kind,
// row-major flat indexing, literal initialization with shape checking,
// typed get/set, and whole-suffix slice copy.
package arrayengine

import (
	"github.com/shadowlink0122/cb/pkg/ast"
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/value"
)

// FlatIndex computes flat = Σ iᵢ · (∏_{j>i} dim_j).
func FlatIndex(dims []int, indices []int) (int, error) {
	if len(indices) != len(dims) {
		return 0, cberrors.Newf(cberrors.TypeMismatch, "expected %d indices, got %d", len(dims), len(indices))
	}
	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= dims[i] {
			return 0, cberrors.Newf(cberrors.ArrayOutOfBounds, "index %d out of bounds for dimension %d (size %d)", idx, i, dims[i])
		}
		stride := 1
		for j := i + 1; j < len(dims); j++ {
			stride *= dims[j]
		}
		flat += idx * stride
	}
	return flat, nil
}

// Get resolves element kind from v.ElemTag and returns the element at
// indices as a value.Value.
func Get(v *value.Variable, indices []int) (value.Value, error) {
	if v.Array == nil {
		return value.Value{}, cberrors.New(cberrors.TypeMismatch, "variable is not an array")
	}
	dims := v.ArrayDims
	if len(dims) == 0 {
		dims = v.Array.Dims
	}
	flat, err := FlatIndex(dims, indices)
	if err != nil {
		return value.Value{}, err
	}
	return GetFlat(v.Array, flat)
}

// GetFlat reads the element at a row-major flat offset, used by Get and
// by the struct engine when it snapshots per-element member shadows.
func GetFlat(a *value.Array, flat int) (value.Value, error) {
	switch a.ElemTag {
	case value.TagStruct:
		if flat < 0 || flat >= len(a.Structs()) {
			return value.Value{}, cberrors.New(cberrors.ArrayOutOfBounds, "struct array index out of range")
		}
		return value.NewStructValue(a.Structs()[flat], value.TagStruct), nil
	case value.TagString:
		if flat < 0 || flat >= len(a.Strings()) {
			return value.Value{}, cberrors.New(cberrors.ArrayOutOfBounds, "string array index out of range")
		}
		return value.NewString(a.Strings()[flat]), nil
	case value.TagFloat:
		if flat < 0 || flat >= len(a.Float32s()) {
			return value.Value{}, cberrors.New(cberrors.ArrayOutOfBounds, "float array index out of range")
		}
		return value.NewFloat(a.Float32s()[flat]), nil
	case value.TagDouble:
		if flat < 0 || flat >= len(a.Float64s()) {
			return value.Value{}, cberrors.New(cberrors.ArrayOutOfBounds, "double array index out of range")
		}
		return value.NewDouble(a.Float64s()[flat]), nil
	case value.TagQuad:
		if flat < 0 || flat >= len(a.Quads()) {
			return value.Value{}, cberrors.New(cberrors.ArrayOutOfBounds, "quad array index out of range")
		}
		return value.NewQuad(a.Quads()[flat]), nil
	default:
		if flat < 0 || flat >= len(a.Ints()) {
			return value.Value{}, cberrors.New(cberrors.ArrayOutOfBounds, "array index out of range")
		}
		return value.NewInt(a.ElemTag, a.Ints()[flat], a.Unsigned), nil
	}
}

// Set writes v into indices, clamping per unsigned policy.
func Set(v *value.Variable, indices []int, nv value.Value) (warn bool, err error) {
	if v.Array == nil {
		return false, cberrors.New(cberrors.TypeMismatch, "variable is not an array")
	}
	dims := v.ArrayDims
	if len(dims) == 0 {
		dims = v.Array.Dims
	}
	flat, err := FlatIndex(dims, indices)
	if err != nil {
		return false, err
	}
	return setFlat(v.Array, flat, nv)
}

func setFlat(a *value.Array, flat int, nv value.Value) (bool, error) {
	if a.ElemTag == value.TagStruct {
		if flat < 0 || flat >= len(a.Structs()) {
			return false, cberrors.New(cberrors.ArrayOutOfBounds, "struct array index out of range")
		}
		if nv.Struct == nil {
			return false, cberrors.New(cberrors.TypeMismatch, "cannot assign a non-struct value into a struct array element")
		}
		a.Structs()[flat] = nv.Struct
		return false, nil
	}
	nv.Unsigned = a.Unsigned || nv.Unsigned
	clamped, warn := value.ClampUnsigned(nv)
	switch a.ElemTag {
	case value.TagString:
		s := a.Strings()
		if flat < 0 || flat >= len(s) {
			return false, cberrors.New(cberrors.ArrayOutOfBounds, "string array index out of range")
		}
		s[flat] = clamped.AsString()
	case value.TagFloat:
		s := a.Float32s()
		if flat < 0 || flat >= len(s) {
			return false, cberrors.New(cberrors.ArrayOutOfBounds, "float array index out of range")
		}
		s[flat] = clamped.AsFloat32()
	case value.TagDouble:
		s := a.Float64s()
		if flat < 0 || flat >= len(s) {
			return false, cberrors.New(cberrors.ArrayOutOfBounds, "double array index out of range")
		}
		s[flat] = clamped.AsDouble()
	case value.TagQuad:
		s := a.Quads()
		if flat < 0 || flat >= len(s) {
			return false, cberrors.New(cberrors.ArrayOutOfBounds, "quad array index out of range")
		}
		s[flat] = clamped.AsQuad()
	default:
		s := a.Ints()
		if flat < 0 || flat >= len(s) {
			return false, cberrors.New(cberrors.ArrayOutOfBounds, "array index out of range")
		}
		s[flat] = clamped.AsInt()
	}
	return warn, nil
}

// shapeOf reports the nested-literal shape (outermost length first).
func shapeOf(lit *ast.ArrayLiteral) []int {
	shape := []int{len(lit.Elements)}
	if len(lit.Elements) == 0 {
		return shape
	}
	if nested, ok := lit.Elements[0].(*ast.ArrayLiteral); ok {
		shape = append(shape, shapeOf(nested)...)
	}
	return shape
}

// InitFromLiteral fills v.Array from a (possibly nested) array literal.
// A sized declaration's dimensions must match the literal's shape exactly
// (ArrayShape error); an unsized declaration infers array_size from the
// literal's outermost length. The returned count is how many elements the
// unsigned policy clamped, so the caller can log one warning per clamp.
func InitFromLiteral(v *value.Variable, lit *ast.ArrayLiteral, elemTag value.TypeTag, unsigned bool, declaredDims []int) (int, error) {
	shape := shapeOf(lit)
	dims := declaredDims
	if len(dims) == 0 || dims[0] == 0 {
		dims = shape
	} else if !ShapeEqual(dims, shape) {
		return 0, cberrors.Newf(cberrors.ArrayShape, "array literal shape %v does not match declared shape %v", shape, dims)
	}
	v.Array = value.NewArray(elemTag, unsigned, dims)
	v.ArrayDims = dims
	v.ArraySize = dims[0]
	v.ElemTag = elemTag
	v.IsArray = true
	v.IsMultiDim = len(dims) > 1
	flat := 0
	warns := 0
	if err := fillLiteral(v.Array, lit, &flat, &warns); err != nil {
		return warns, err
	}
	return warns, nil
}

// ShapeEqual reports whether two dimension lists match exactly.
func ShapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fillLiteral(a *value.Array, lit *ast.ArrayLiteral, flat *int, warns *int) error {
	for _, elem := range lit.Elements {
		if nested, ok := elem.(*ast.ArrayLiteral); ok {
			if err := fillLiteral(a, nested, flat, warns); err != nil {
				return err
			}
			continue
		}
		v, err := constElement(elem, a.ElemTag)
		if err != nil {
			return err
		}
		warn, err := setFlat(a, *flat, v)
		if err != nil {
			return err
		}
		if warn {
			*warns++
		}
		*flat++
	}
	return nil
}

// constElement evaluates a literal element, unwrapping a unary minus so
// initializers like [1, -2, 3] stay constant-foldable without an
// evaluator in scope.
func constElement(elem ast.Expr, elemTag value.TypeTag) (value.Value, error) {
	if u, ok := elem.(*ast.UnaryExpr); ok && u.Op == "-" {
		inner, err := constElement(u.X, elemTag)
		if err != nil {
			return value.Value{}, err
		}
		if inner.Tag.IsFloating() {
			return value.NewDouble(-inner.AsDouble()), nil
		}
		return value.NewInt(elemTag, -inner.AsInt(), false), nil
	}
	litVal, ok := elem.(*ast.Literal)
	if !ok {
		return value.Value{}, cberrors.New(cberrors.TypeMismatch, "array literal element is not a constant")
	}
	return literalToValue(litVal, elemTag), nil
}

func literalToValue(lit *ast.Literal, elemTag value.TypeTag) value.Value {
	switch lit.Kind {
	case ast.LitInt:
		return value.NewInt(elemTag, lit.I, false)
	case ast.LitFloat:
		return value.NewFloat(float32(lit.F))
	case ast.LitDouble:
		return value.NewDouble(lit.F)
	case ast.LitString:
		return value.NewString(lit.S)
	case ast.LitBool:
		return value.NewBool(lit.B)
	case ast.LitChar:
		return value.NewChar(byte(lit.I))
	default:
		return value.Zero(elemTag)
	}
}

// Compatible reports whether src may be copied/sliced into dst: element
// kinds must match (after typedef resolution, handled by the caller),
// or sizes and shapes must be equal. Struct-element arrays are the
// exception: both sides need the same struct element type, whatever
// their shapes.
func Compatible(src, dst *value.Array) bool {
	if src.ElemTag == value.TagStruct || dst.ElemTag == value.TagStruct {
		return src.ElemTag == dst.ElemTag && src.ElemTypeName == dst.ElemTypeName
	}
	if src.ElemTag == dst.ElemTag {
		return true
	}
	return ShapeEqual(src.Dims, dst.Dims) && src.Size() == dst.Size()
}

// CopySuffix copies src[i0...] into dst, requiring the remaining
// dimension count to match and every dimension beyond the fixed prefix
// to agree.
func CopySuffix(src *value.Array, prefix []int, dst *value.Array) error {
	if !Compatible(src, dst) {
		return cberrors.New(cberrors.TypeMismatch, "incompatible array element kinds for slice copy")
	}
	remaining := src.Dims[len(prefix):]
	if !ShapeEqual(remaining, dst.Dims) {
		return cberrors.Newf(cberrors.ArrayShape, "slice shape %v does not match destination shape %v", remaining, dst.Dims)
	}
	startFlat, err := prefixFlatOffset(src.Dims, prefix)
	if err != nil {
		return err
	}
	count := dst.Size()
	switch src.ElemTag {
	case value.TagStruct:
		srcElems := src.Structs()[startFlat : startFlat+count]
		dstElems := dst.Structs()
		for i, s := range srcElems {
			dstElems[i] = s.Clone()
		}
	case value.TagString:
		copy(dst.Strings(), src.Strings()[startFlat:startFlat+count])
	case value.TagFloat:
		copy(dst.Float32s(), src.Float32s()[startFlat:startFlat+count])
	case value.TagDouble:
		copy(dst.Float64s(), src.Float64s()[startFlat:startFlat+count])
	case value.TagQuad:
		copy(dst.Quads(), src.Quads()[startFlat:startFlat+count])
	default:
		copy(dst.Ints(), src.Ints()[startFlat:startFlat+count])
	}
	return nil
}

func prefixFlatOffset(dims []int, prefix []int) (int, error) {
	flat := 0
	for i, idx := range prefix {
		if idx < 0 || idx >= dims[i] {
			return 0, cberrors.Newf(cberrors.ArrayOutOfBounds, "slice prefix index %d out of bounds", idx)
		}
		stride := 1
		for j := i + 1; j < len(dims); j++ {
			stride *= dims[j]
		}
		flat += idx * stride
	}
	return flat, nil
}
