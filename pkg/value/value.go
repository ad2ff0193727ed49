// Package value implements the Cb Value & Type Model: the tagged value
// union every binding, array element, and expression result is built from.
//
// The storage shape is a type-tag plus an untyped payload with
// width-specific accessors, generalized to Cb's wider numeric width set
// and its struct/array/pointer payloads.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// TypeTag is the closed set of value kinds Cb's type system recognizes.
type TypeTag int

const (
	TagUnknown TypeTag = iota
	TagBool
	TagTiny
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagQuad
	TagChar
	TagString
	TagStruct
	TagInterface
	TagUnion
	TagPointer
	TagFunctionPointer
	TagArray
	TagFuture
)

func (t TypeTag) String() string {
	switch t {
	case TagBool:
		return "bool"
	case TagTiny:
		return "tiny"
	case TagShort:
		return "short"
	case TagInt:
		return "int"
	case TagLong:
		return "long"
	case TagFloat:
		return "float"
	case TagDouble:
		return "double"
	case TagQuad:
		return "quad"
	case TagChar:
		return "char"
	case TagString:
		return "string"
	case TagStruct:
		return "struct"
	case TagInterface:
		return "interface"
	case TagUnion:
		return "union"
	case TagPointer:
		return "pointer"
	case TagFunctionPointer:
		return "function_pointer"
	case TagArray:
		return "array"
	case TagFuture:
		return "future"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the tag carries an integer or floating payload
// that participates in arithmetic and unsigned clamping.
func (t TypeTag) IsNumeric() bool {
	switch t {
	case TagBool, TagTiny, TagShort, TagInt, TagLong, TagFloat, TagDouble, TagQuad, TagChar:
		return true
	default:
		return false
	}
}

func (t TypeTag) IsInteger() bool {
	switch t {
	case TagBool, TagTiny, TagShort, TagInt, TagLong, TagChar:
		return true
	default:
		return false
	}
}

func (t TypeTag) IsFloating() bool {
	switch t {
	case TagFloat, TagDouble, TagQuad:
		return true
	default:
		return false
	}
}

// widthRank orders numeric tags so mixed-width arithmetic can promote to
// the widest operand.
func (t TypeTag) widthRank() int {
	switch t {
	case TagBool:
		return 0
	case TagTiny, TagChar:
		return 1
	case TagShort:
		return 2
	case TagInt:
		return 3
	case TagLong:
		return 4
	case TagFloat:
		return 5
	case TagDouble:
		return 6
	case TagQuad:
		return 7
	default:
		return -1
	}
}

// Wider returns whichever of a, b has the higher promotion rank.
func Wider(a, b TypeTag) TypeTag {
	if b.widthRank() > a.widthRank() {
		return b
	}
	return a
}

// PointerKind distinguishes the three things a pointer Value may address,
// replacing the source's high-bit-tagged integer trick with
// an explicit sum type.
type PointerKind int

const (
	PointerNull PointerKind = iota
	PointerRaw              // addresses a Variable directly (referent id)
	PointerFat              // addresses pointer metadata (a Variable's address-of-element)
	PointerFunc             // addresses a function/method AST node
)

// Pointer is the payload for TagPointer and TagFunctionPointer values.
type Pointer struct {
	Kind       PointerKind
	ReferentID int64 // PointerRaw: scope-assigned id of the addressed Variable
	MetadataID int64 // PointerFat: id of the pointer-metadata record
	FuncID     int64 // PointerFunc: id of the resolved function/method node
}

// Null is the zero pointer value.
var Null = Pointer{Kind: PointerNull}

// Value is the tagged variant every expression evaluates to. All payload
// fields coexist; only the ones matching Tag (and, for floats, every
// width not-yet-truncated-away) are meaningful, mirroring the source's
// "keep all three floating widths so a value can be read at the width it
// was written" rule.
type Value struct {
	Tag      TypeTag
	Unsigned bool

	i   int64   // Bool/Tiny/Short/Int/Long/Char integer payload
	f32 float32 // Float payload
	f64 float64 // Double payload
	fq  float64 // Quad payload (best-effort; no true f80/f128 on this platform)

	str string

	Struct *Struct  // TagStruct / TagInterface / TagUnion aggregate
	Array  *Array   // TagArray descriptor
	Ptr    Pointer  // TagPointer / TagFunctionPointer
}

func NewBool(b bool) Value {
	var i int64
	if b {
		i = 1
	}
	return Value{Tag: TagBool, i: i}
}

func NewInt(tag TypeTag, v int64, unsigned bool) Value {
	return Value{Tag: tag, i: v, Unsigned: unsigned}
}

func NewFloat(v float32) Value  { return Value{Tag: TagFloat, f32: v, f64: float64(v), fq: float64(v)} }
func NewDouble(v float64) Value { return Value{Tag: TagDouble, f64: v, f32: float32(v), fq: v} }
func NewQuad(v float64) Value   { return Value{Tag: TagQuad, fq: v, f64: v, f32: float32(v)} }
func NewChar(c byte) Value      { return Value{Tag: TagChar, i: int64(c)} }
func NewString(s string) Value  { return Value{Tag: TagString, str: s} }

func NewStructValue(s *Struct, tag TypeTag) Value {
	if tag == TagUnknown {
		tag = TagStruct
	}
	return Value{Tag: tag, Struct: s}
}

func NewArrayValue(a *Array) Value { return Value{Tag: TagArray, Array: a} }

func NewPointer(p Pointer) Value         { return Value{Tag: TagPointer, Ptr: p} }
func NewFunctionPointer(p Pointer) Value { return Value{Tag: TagFunctionPointer, Ptr: p} }

// NewFuture wraps a host-assigned future handle id. The cell itself lives
// in whatever registry the owning interpreter keeps (pkg/value has no
// business importing pkg/future), so the Value only carries the opaque id
// needed to look it up again.
func NewFuture(id int64) Value { return Value{Tag: TagFuture, i: id} }

// FutureID reads back the handle id stored by NewFuture.
func (v Value) FutureID() int64 { return v.i }

// Zero returns the default-initialized Value for a tag, used by struct
// member materialization and declarations without an
// initializer.
func Zero(tag TypeTag) Value {
	switch tag {
	case TagBool:
		return NewBool(false)
	case TagFloat:
		return NewFloat(0)
	case TagDouble:
		return NewDouble(0)
	case TagQuad:
		return NewQuad(0)
	case TagString:
		return NewString("")
	case TagPointer, TagFunctionPointer:
		return Value{Tag: tag, Ptr: Null}
	default:
		return Value{Tag: tag}
	}
}

// AsInt truncates toward zero, per the width-preserving read rules.
func (v Value) AsInt() int64 {
	switch {
	case v.Tag.IsFloating():
		return int64(v.floatAtTag())
	case v.Tag == TagString:
		i, _ := strconv.ParseInt(v.str, 10, 64)
		return i
	case v.Tag == TagPointer || v.Tag == TagFunctionPointer:
		return v.Ptr.ReferentID
	default:
		return v.i
	}
}

func (v Value) floatAtTag() float64 {
	switch v.Tag {
	case TagFloat:
		return float64(v.f32)
	case TagQuad:
		return v.fq
	default:
		return v.f64
	}
}

// AsFloat32, AsDouble, AsQuad read back at the named width. Storing a
// Double and reading it back as Double returns the exact payload
//; reading a narrower write at a wider width up-converts.
func (v Value) AsFloat32() float32 {
	if v.Tag.IsFloating() {
		return v.f32
	}
	return float32(v.AsInt())
}

func (v Value) AsDouble() float64 {
	if v.Tag.IsFloating() {
		return v.f64
	}
	return float64(v.AsInt())
}

func (v Value) AsQuad() float64 {
	if v.Tag.IsFloating() {
		return v.fq
	}
	return float64(v.AsInt())
}

func (v Value) AsBool() bool {
	switch v.Tag {
	case TagString:
		return v.str != ""
	case TagStruct, TagInterface, TagUnion:
		return v.Struct != nil
	case TagArray:
		return v.Array != nil && v.Array.Size() > 0
	case TagPointer, TagFunctionPointer:
		return v.Ptr.Kind != PointerNull
	default:
		if v.Tag.IsFloating() {
			return v.floatAtTag() != 0
		}
		return v.i != 0
	}
}

// AsString formats the value.
func (v Value) AsString() string {
	switch v.Tag {
	case TagString:
		return v.str
	case TagBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case TagChar:
		return string(rune(v.i))
	case TagFloat:
		return strconv.FormatFloat(float64(v.f32), 'g', -1, 32)
	case TagDouble:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case TagQuad:
		return strconv.FormatFloat(v.fq, 'g', -1, 64)
	case TagPointer, TagFunctionPointer:
		s, _ := Hex(v)
		return s
	case TagUnknown:
		return "unknown"
	default:
		return strconv.FormatInt(v.i, 10)
	}
}

// Hex implements the hex(n) builtin: strip the
// pointer's metadata indirection (if any) and emit 0x-prefixed lowercase
// hex of the underlying address/integer.
func Hex(v Value) (string, error) {
	switch v.Tag {
	case TagPointer, TagFunctionPointer:
		switch v.Ptr.Kind {
		case PointerNull:
			return "0x0", nil
		case PointerFat:
			return fmt.Sprintf("0x%x", v.Ptr.MetadataID), nil
		case PointerFunc:
			return fmt.Sprintf("0x%x", v.Ptr.FuncID), nil
		default:
			return fmt.Sprintf("0x%x", v.Ptr.ReferentID), nil
		}
	default:
		if !v.Tag.IsInteger() {
			return "", fmt.Errorf("hex: argument is not an integer or pointer type (got %s)", v.Tag)
		}
		return fmt.Sprintf("0x%x", uint64(v.AsInt())), nil
	}
}

// Convert re-tags v for storage into a binding declared as tag, moving
// the payload between the integer and floating slots when the kinds
// differ: an integer write into a floating binding widens, a floating
// write into an integer binding truncates toward zero, and a numeric
// write into a string binding formats. Same-kind writes keep their
// payload as-is — the constructors populate every floating width, so a
// narrower or wider floating binding reads the slot it was declared at.
func Convert(v Value, tag TypeTag) Value {
	if tag == TagUnknown || tag == v.Tag {
		return v
	}
	switch {
	case tag.IsFloating() && !v.Tag.IsFloating():
		f := v.AsDouble()
		v.f32, v.f64, v.fq = float32(f), f, f
	case tag.IsInteger() && v.Tag.IsFloating():
		v.i = int64(v.floatAtTag())
	case tag.IsInteger() && v.Tag == TagString:
		v.i = v.AsInt()
	case tag == TagString && v.Tag != TagString:
		v.str = v.AsString()
	}
	v.Tag = tag
	return v
}

// ClampUnsigned applies the storage-time unsigned policy: a negative numeric written into an
// unsigned-flagged slot becomes zero, and the caller is told whether a
// warning should be emitted.
func ClampUnsigned(v Value) (Value, bool) {
	if !v.Unsigned || !v.Tag.IsNumeric() {
		return v, false
	}
	if v.Tag.IsFloating() {
		if v.floatAtTag() < 0 {
			return Zero(v.Tag), true
		}
		return v, false
	}
	if v.i < 0 {
		v.i = 0
		return v, true
	}
	return v, false
}

// NormalizeBool forces any numeric write into a TagBool slot to 0/1.
func NormalizeBool(v Value) Value {
	if v.Tag != TagBool {
		return v
	}
	if v.i != 0 {
		v.i = 1
	}
	return v
}

// BitsEqual reports whether two floating reads are bit-identical, used
// to verify width round-trip fidelity in tests.
func BitsEqual(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// TagFromName maps a primitive type-name token to its TypeTag, shared by
// every component that resolves a typedef-stripped name to a storage
// kind (struct member defaults, declarations, array element types).
func TagFromName(name string) TypeTag {
	switch name {
	case "bool":
		return TagBool
	case "tiny", "i8", "byte":
		return TagTiny
	case "short", "i16":
		return TagShort
	case "int", "i32":
		return TagInt
	case "long", "i64":
		return TagLong
	case "float", "f32":
		return TagFloat
	case "double", "f64":
		return TagDouble
	case "quad", "f80", "f128":
		return TagQuad
	case "char":
		return TagChar
	case "string":
		return TagString
	default:
		return TagUnknown
	}
}

func (v Value) IsZeroPointer() bool {
	return (v.Tag == TagPointer || v.Tag == TagFunctionPointer) && v.Ptr.Kind == PointerNull
}
