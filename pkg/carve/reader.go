package carve

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/mkarren/carve/pkg/binsrc"
)

// Reader applies a field-descriptor sequence to a byte source, producing
// a result tree. A Reader is reusable: every Read works on its own copy
// of the queue with a fresh scope, so the same Reader may be applied to
// any number of sources.
type Reader struct {
	fields    []Field
	fillGaps  bool
	transform binsrc.Transform // ambient, inherited by nested reads
	logger    *slog.Logger
}

// ReaderOption configures a Reader at construction.
type ReaderOption func(*Reader)

// WithGapFill controls whether unspecified byte ranges between and after
// described fields are materialized as unknown fields in the result tree.
// When disabled, gaps are silently skipped.
func WithGapFill(enabled bool) ReaderOption {
	return func(r *Reader) {
		r.fillGaps = enabled
	}
}

// WithAmbientTransform applies transform to every read the Reader makes,
// composing before any field-local transform.
func WithAmbientTransform(transform binsrc.Transform) ReaderOption {
	return func(r *Reader) {
		r.transform = transform
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader creates a Reader over the given field sequence.
func NewReader(fields []Field, opts ...ReaderOption) *Reader {
	r := &Reader{fields: fields, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read walks src from offset zero, treating the whole source as an
// implicit struct bounded by src.Size() with the Reader's field sequence
// as its children, and returns the resolved top-level nodes in order.
func (r *Reader) Read(src binsrc.Source) ([]FieldData, error) {
	root := NewStruct(r.fields, WithLength(src.Size()))
	_, data, err := r.consumeStruct(root, src, 0)
	if err != nil {
		return nil, err
	}
	return data.Children(), nil
}

// nextField picks the next descriptor to resolve while consuming a
// struct's children. It returns nil when the struct is done: the cursor
// reached the bound, or the queue is exhausted with nothing left to fill.
// Synthesized gap fields carry an explicit start so they resolve in
// place. Gaps are only synthesized while cur < size: past the source's
// end there are no bytes to materialize, and a gap there would consume
// nothing and stall the cursor.
func (r *Reader) nextField(queue *[]Field, cur, limit int64, haveLimit bool, size int64) Field {
	if haveLimit && cur >= limit {
		return nil
	}

	if len(*queue) == 0 {
		if haveLimit && r.fillGaps && cur < size {
			return NewUnknown(limit-cur, At(cur))
		}
		return nil
	}

	head := (*queue)[0]
	if s, ok := head.Start(); ok && s > cur {
		if r.fillGaps && cur < size {
			// Leave the real field queued; the gap comes first.
			return NewUnknown(s-cur, At(cur))
		}
		*queue = (*queue)[1:]
		return head
	}

	*queue = (*queue)[1:]
	return head
}

// consumeStruct resolves a struct's children starting at loc, returning
// the final cursor and the struct's own result node. Each invocation
// opens a fresh scope, so bindings never leak between sibling subtrees or
// across repeated reads.
func (r *Reader) consumeStruct(st *StructField, src binsrc.Source, loc int64) (int64, FieldData, error) {
	cur := loc
	queue := slices.Clone(st.Fields())
	scope := make(map[string]any)

	var limit int64
	length, haveLimit := st.Length()
	if haveLimit {
		limit = loc + length
	}

	var done []FieldData
	for {
		next := r.nextField(&queue, cur, limit, haveLimit, src.Size())
		if next == nil {
			break
		}

		var (
			data FieldData
			err  error
		)
		cur, data, err = r.consumeField(next, src, cur, scope)
		if err != nil {
			return 0, FieldData{}, fmt.Errorf("consuming struct %q: %w", Label(st, loc), err)
		}
		done = append(done, data)
	}

	return cur, FieldData{Label: Label(st, loc), Type: TypeStruct, Offset: loc, Value: done}, nil
}

// consumeField resolves one descriptor at the cursor, returning the new
// cursor and the field's result node. Named results are bound into scope
// before returning so later siblings can reference them.
func (r *Reader) consumeField(f Field, src binsrc.Source, cur int64, scope map[string]any) (int64, FieldData, error) {
	start := cur
	if s, ok := f.Start(); ok {
		if s < cur {
			r.logger.Warn("field start is behind the cursor",
				"label", Label(f, s), "start", s, "cursor", cur)
		}
		start = s
	}

	transform := Compose(r.transform, f.Transform())
	r.logger.Debug("resolving field", "label", Label(f, start), "type", f.Type(), "offset", start)

	var (
		val  any
		next int64
	)
	switch f := f.(type) {
	case *UnknownField:
		data, err := src.Bytes(start, f.Length(), transform)
		if err != nil {
			return 0, FieldData{}, fmt.Errorf("reading raw span at %#x: %w", start, err)
		}
		val = data
		next = start + consumedLength(start, f.Length(), src.Size())

	case *IntField:
		v, err := r.readInt(f, src, start, transform)
		if err != nil {
			return 0, FieldData{}, fmt.Errorf("decoding %s %q: %w", f.Type(), Label(f, start), err)
		}
		val = v
		next = start + int64(f.Bits()/8)

	case *NestedBlockField:
		length, err := f.Length(scope)
		if err != nil {
			return 0, FieldData{}, fmt.Errorf("resolving length of nested block %q: %w", Label(f, start), err)
		}
		view := binsrc.NewBlock(src, start, length)
		sub := &Reader{
			fields:    f.Fields(),
			fillGaps:  r.fillGaps,
			transform: transform,
			logger:    r.logger,
		}
		children, err := sub.Read(view)
		if err != nil {
			return 0, FieldData{}, fmt.Errorf("reading nested block %q: %w", Label(f, start), err)
		}
		val = children
		next = start + length

	case *StructField:
		end, data, err := r.consumeStruct(f, src, start)
		if err != nil {
			return 0, FieldData{}, err
		}
		if name, ok := f.Name(); ok {
			scope[name] = data.Value
		}
		return end, data, nil

	default:
		return 0, FieldData{}, fmt.Errorf("unsupported field variant %T", f)
	}

	if name, ok := f.Name(); ok {
		scope[name] = val
	}
	return next, FieldData{Label: Label(f, start), Type: f.Type(), Offset: start, Value: val}, nil
}

// readInt decodes one fixed-width integer through the composed transform.
// A short read at the end of the source is an error here, never a
// zero-extended value.
func (r *Reader) readInt(f *IntField, src binsrc.Source, loc int64, transform binsrc.Transform) (any, error) {
	switch f.Type() {
	case "u8":
		v, err := binsrc.U8(src, loc, transform)
		return v, err
	case "i8":
		v, err := binsrc.I8(src, loc, transform)
		return v, err
	case "u16":
		v, err := binsrc.U16(src, loc, transform)
		return v, err
	case "i16":
		v, err := binsrc.I16(src, loc, transform)
		return v, err
	case "u32":
		v, err := binsrc.U32(src, loc, transform)
		return v, err
	case "i32":
		v, err := binsrc.I32(src, loc, transform)
		return v, err
	case "u64":
		v, err := binsrc.U64(src, loc, transform)
		return v, err
	case "i64":
		v, err := binsrc.I64(src, loc, transform)
		return v, err
	}
	// Unreachable: widths are validated at construction.
	return nil, fmt.Errorf("%d-bit integer: %w", f.Bits(), ErrBadWidth)
}

// consumedLength is the raw byte count a span actually covers in the
// source, clamped at the source's end. The cursor advances by source
// bytes consumed, not by the length of a transform's output.
func consumedLength(start, length, size int64) int64 {
	if start >= size {
		return 0
	}
	if start+length > size {
		return size - start
	}
	return length
}
