// Package carve extracts structured values from opaque binary data
// according to a declarative schema of field descriptors.
//
// A caller describes a sequence of typed fields -- fixed-width integers,
// raw unknown regions, nested sub-blocks with their own field sequences --
// and a Reader walks a byte source resolving each field to a concrete
// range, producing a labeled result tree that mirrors the schema's
// nesting. Schemas may be built in code or loaded from YAML documents.
package carve

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mkarren/carve/pkg/binsrc"
)

// Field type tags for the non-integer variants. Integer fields report
// width-specific tags such as "u32" or "i16".
const (
	TypeUnknown = "unknown"
	TypeNested  = "nested"
	TypeStruct  = "struct"
)

var (
	// ErrBadWidth reports an integer field with an unsupported bit width.
	ErrBadWidth = errors.New("integer width must be 8, 16, 32 or 64 bits")

	// ErrMissingLength reports a nested block built without a length spec.
	ErrMissingLength = errors.New("nested block requires a length specification")

	// ErrUnresolvedLength reports a length-by-name reference that does not
	// resolve to an integer in the enclosing scope.
	ErrUnresolvedLength = errors.New("length reference unresolved")
)

// Field describes a single piece of data to be extracted from a binary.
// The variant set is closed: IntField, UnknownField, NestedBlockField and
// StructField. The Reader dispatches on the concrete type.
type Field interface {
	// Type returns the tag identifying the field variant.
	Type() string

	// Start returns the explicit starting offset. ok is false when the
	// field is placed sequentially at the cursor.
	Start() (int64, bool)

	// Name returns the field's name, if it has one.
	Name() (string, bool)

	// Transform returns the field-local transform, or nil.
	Transform() binsrc.Transform
}

// Label returns the field's name, or a generated placeholder naming the
// variant and offset when it has none.
func Label(f Field, loc int64) string {
	if name, ok := f.Name(); ok {
		return name
	}
	return fmt.Sprintf("untitled_%s_field_%#x", f.Type(), loc)
}

// fieldAttrs holds the attributes shared by the field constructors.
type fieldAttrs struct {
	name      string
	hasName   bool
	start     int64
	hasStart  bool
	length    int64
	hasLength bool
	transform binsrc.Transform
}

// FieldOption configures a field at construction.
type FieldOption func(*fieldAttrs)

// At fixes the field's starting offset instead of placing it at the
// cursor.
func At(offset int64) FieldOption {
	return func(a *fieldAttrs) {
		a.start = offset
		a.hasStart = true
	}
}

// Named binds the decoded value under name in the enclosing scope and
// labels the result node with it.
func Named(name string) FieldOption {
	return func(a *fieldAttrs) {
		a.name = name
		a.hasName = true
	}
}

// WithTransform applies transform to the field's raw bytes before they
// are interpreted. It composes after any ambient transform inherited from
// an enclosing block.
func WithTransform(transform binsrc.Transform) FieldOption {
	return func(a *fieldAttrs) {
		a.transform = transform
	}
}

// WithLength bounds a struct field to a total byte length. It has no
// effect on other variants.
func WithLength(length int64) FieldOption {
	return func(a *fieldAttrs) {
		a.length = length
		a.hasLength = true
	}
}

func buildAttrs(opts []FieldOption) fieldAttrs {
	var a fieldAttrs
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (a fieldAttrs) Start() (int64, bool) {
	return a.start, a.hasStart
}

func (a fieldAttrs) Name() (string, bool) {
	return a.name, a.hasName
}

func (a fieldAttrs) Transform() binsrc.Transform {
	return a.transform
}

// IntField describes a single fixed-width integer value, 8 to 64 bits,
// signed or unsigned.
type IntField struct {
	fieldAttrs
	bits   int
	signed bool
}

// NewInt creates an integer field of the given bit width. Widths outside
// {8, 16, 32, 64} are rejected.
func NewInt(bits int, signed bool, opts ...FieldOption) (*IntField, error) {
	switch bits {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("%d-bit integer field: %w", bits, ErrBadWidth)
	}
	return &IntField{fieldAttrs: buildAttrs(opts), bits: bits, signed: signed}, nil
}

func newInt(bits int, signed bool, name string, opts []FieldOption) *IntField {
	if name != "" {
		opts = append([]FieldOption{Named(name)}, opts...)
	}
	// The width is a literal here, so NewInt cannot fail.
	f, _ := NewInt(bits, signed, opts...)
	return f
}

// U8 creates an unsigned 8-bit integer field. An empty name leaves the
// field unnamed. The remaining width/signedness shorthands behave the
// same way.
func U8(name string, opts ...FieldOption) *IntField { return newInt(8, false, name, opts) }

// I8 creates a signed 8-bit integer field.
func I8(name string, opts ...FieldOption) *IntField { return newInt(8, true, name, opts) }

// U16 creates an unsigned 16-bit integer field.
func U16(name string, opts ...FieldOption) *IntField { return newInt(16, false, name, opts) }

// I16 creates a signed 16-bit integer field.
func I16(name string, opts ...FieldOption) *IntField { return newInt(16, true, name, opts) }

// U32 creates an unsigned 32-bit integer field.
func U32(name string, opts ...FieldOption) *IntField { return newInt(32, false, name, opts) }

// I32 creates a signed 32-bit integer field.
func I32(name string, opts ...FieldOption) *IntField { return newInt(32, true, name, opts) }

// U64 creates an unsigned 64-bit integer field.
func U64(name string, opts ...FieldOption) *IntField { return newInt(64, false, name, opts) }

// I64 creates a signed 64-bit integer field.
func I64(name string, opts ...FieldOption) *IntField { return newInt(64, true, name, opts) }

func (f *IntField) Type() string {
	prefix := "u"
	if f.signed {
		prefix = "i"
	}
	return prefix + strconv.Itoa(f.bits)
}

// Bits reports the field's width in bits.
func (f *IntField) Bits() int {
	return f.bits
}

// Signed reports whether the value is interpreted as signed.
func (f *IntField) Signed() bool {
	return f.signed
}

// UnknownField describes a raw, uninterpreted span of bytes. Unknown
// fields carry no name and no transform; the Reader also synthesizes them
// for unspecified gaps when gap-filling is enabled.
type UnknownField struct {
	start    int64
	hasStart bool
	length   int64
}

// NewUnknown creates a raw span of length bytes. Only the At option
// applies.
func NewUnknown(length int64, opts ...FieldOption) *UnknownField {
	a := buildAttrs(opts)
	return &UnknownField{start: a.start, hasStart: a.hasStart, length: length}
}

func (f *UnknownField) Type() string {
	return TypeUnknown
}

func (f *UnknownField) Start() (int64, bool) {
	return f.start, f.hasStart
}

func (f *UnknownField) Name() (string, bool) {
	return "", false
}

func (f *UnknownField) Transform() binsrc.Transform {
	return nil
}

// Length reports the declared span length in bytes.
func (f *UnknownField) Length() int64 {
	return f.length
}

// LengthSpec gives a nested block its byte length: either a literal count
// or a reference to an integer bound earlier in the enclosing scope.
type LengthSpec interface {
	// Resolve returns the concrete byte length under the given scope.
	Resolve(scope map[string]any) (int64, error)
}

type byteCount int64

func (c byteCount) Resolve(map[string]any) (int64, error) {
	return int64(c), nil
}

type lengthRef string

func (r lengthRef) Resolve(scope map[string]any) (int64, error) {
	v, ok := scope[string(r)]
	if !ok {
		return 0, fmt.Errorf("variable %q not bound in scope: %w", string(r), ErrUnresolvedLength)
	}
	n, ok := asInt64(v)
	if !ok {
		return 0, fmt.Errorf("variable %q is %T, not an integer: %w", string(r), v, ErrUnresolvedLength)
	}
	if n < 0 {
		return 0, fmt.Errorf("variable %q resolved to negative length %d: %w", string(r), n, ErrUnresolvedLength)
	}
	return n, nil
}

// Count is a literal byte-count length spec.
func Count(n int64) LengthSpec {
	return byteCount(n)
}

// Ref is a length spec naming an integer variable bound by an earlier
// sibling in the same scope.
func Ref(name string) LengthSpec {
	return lengthRef(name)
}

// NestedBlockField describes a sub-block with its own field sequence.
// The block is read through a view source covering exactly its range, so
// child offsets are relative to the block's start.
type NestedBlockField struct {
	fieldAttrs
	length LengthSpec
	fields []Field
}

// NewNestedBlock creates a nested block. A length spec is required; nil
// is rejected at construction.
func NewNestedBlock(length LengthSpec, fields []Field, opts ...FieldOption) (*NestedBlockField, error) {
	if length == nil {
		return nil, ErrMissingLength
	}
	return &NestedBlockField{fieldAttrs: buildAttrs(opts), length: length, fields: fields}, nil
}

func (f *NestedBlockField) Type() string {
	return TypeNested
}

// Length resolves the block's byte length against the enclosing scope.
func (f *NestedBlockField) Length(scope map[string]any) (int64, error) {
	return f.length.Resolve(scope)
}

// Fields returns the block's child sequence.
func (f *NestedBlockField) Fields() []Field {
	return f.fields
}

// StructField describes an aggregate of other fields read in place, with
// an optional total length bound. A bounded struct stops consuming
// children once the cursor reaches the bound.
type StructField struct {
	fieldAttrs
	fields []Field
}

// NewStruct creates an aggregate field over the given child sequence.
func NewStruct(fields []Field, opts ...FieldOption) *StructField {
	return &StructField{fieldAttrs: buildAttrs(opts), fields: fields}
}

func (f *StructField) Type() string {
	return TypeStruct
}

// Length returns the struct's total length bound, if one was set.
func (f *StructField) Length() (int64, bool) {
	return f.length, f.hasLength
}

// Fields returns the struct's child sequence.
func (f *StructField) Fields() []Field {
	return f.fields
}

// asInt64 widens any of the integer types a decoded field may produce.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}
