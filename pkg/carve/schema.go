package carve

import (
	"encoding/binary"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is a YAML document describing a field sequence. Example:
//
//	id: macro_file
//	endian: little
//	fields:
//	  - name: f_size
//	    type: u32
//	    at: 0x04
//	  - name: body
//	    type: block
//	    at: 0x11
//	    size: book_size
//	    transform: xor(0x73)
//	    fields:
//	      - type: unknown
//	        size: 5
//
// The endian key is required; parsing behavior is never derived from the
// host byte order.
type Schema struct {
	ID     string       `yaml:"id"`
	Endian string       `yaml:"endian"`
	Doc    string       `yaml:"doc,omitempty"`
	Fields []SchemaItem `yaml:"fields"`
}

// SchemaItem describes one field in a schema document. Size holds either
// an integer literal or, for block fields, the name of a previously bound
// integer variable.
type SchemaItem struct {
	Name      string       `yaml:"name,omitempty"`
	Type      string       `yaml:"type"`
	At        *int64       `yaml:"at,omitempty"`
	Size      any          `yaml:"size,omitempty"`
	Transform string       `yaml:"transform,omitempty"`
	Doc       string       `yaml:"doc,omitempty"`
	Fields    []SchemaItem `yaml:"fields,omitempty"`
}

// ParseSchema parses a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}
	if _, err := schema.Order(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// LoadSchema reads and parses a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	schema, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	return schema, nil
}

// Order resolves the schema's endian declaration.
func (s *Schema) Order() (binary.ByteOrder, error) {
	switch s.Endian {
	case "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	case "":
		return nil, fmt.Errorf("schema %q: endian is required (little or big)", s.ID)
	default:
		return nil, fmt.Errorf("schema %q: unknown endian %q", s.ID, s.Endian)
	}
}

// Compile turns the schema's items into a field-descriptor sequence.
// Transform specs are resolved against reg; a nil registry means the
// default registry.
func (s *Schema) Compile(reg *Registry) ([]Field, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	return compileItems(s.Fields, reg)
}

func compileItems(items []SchemaItem, reg *Registry) ([]Field, error) {
	fields := make([]Field, 0, len(items))
	for i, item := range items {
		f, err := compileItem(item, reg)
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, itemLabel(item), err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func itemLabel(item SchemaItem) string {
	if item.Name != "" {
		return item.Name
	}
	return item.Type
}

func compileItem(item SchemaItem, reg *Registry) (Field, error) {
	var opts []FieldOption
	if item.Name != "" {
		opts = append(opts, Named(item.Name))
	}
	if item.At != nil {
		opts = append(opts, At(*item.At))
	}
	if item.Transform != "" {
		transform, err := reg.Build(item.Transform)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTransform(transform))
	}

	switch item.Type {
	case "u8", "i8", "u16", "i16", "u32", "i32", "u64", "i64":
		bits, signed := intTypeSpec(item.Type)
		return NewInt(bits, signed, opts...)

	case TypeUnknown:
		if item.Name != "" || item.Transform != "" {
			return nil, fmt.Errorf("unknown fields carry no name or transform")
		}
		n, ok := sizeLiteral(item.Size)
		if !ok {
			return nil, fmt.Errorf("unknown field requires an integer size")
		}
		return NewUnknown(n, opts...), nil

	case "block", TypeNested:
		length, err := sizeSpec(item.Size)
		if err != nil {
			return nil, err
		}
		children, err := compileItems(item.Fields, reg)
		if err != nil {
			return nil, err
		}
		return NewNestedBlock(length, children, opts...)

	case TypeStruct:
		if n, ok := sizeLiteral(item.Size); ok {
			opts = append(opts, WithLength(n))
		} else if item.Size != nil {
			return nil, fmt.Errorf("struct size must be an integer literal")
		}
		children, err := compileItems(item.Fields, reg)
		if err != nil {
			return nil, err
		}
		return NewStruct(children, opts...), nil

	default:
		return nil, fmt.Errorf("unknown field type %q", item.Type)
	}
}

func intTypeSpec(tag string) (bits int, signed bool) {
	signed = tag[0] == 'i'
	switch tag[1:] {
	case "8":
		bits = 8
	case "16":
		bits = 16
	case "32":
		bits = 32
	case "64":
		bits = 64
	}
	return bits, signed
}

// sizeLiteral extracts an integer size from a decoded YAML value.
func sizeLiteral(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// sizeSpec builds a block length spec from a decoded YAML value: an
// integer literal or a variable name.
func sizeSpec(v any) (LengthSpec, error) {
	if v == nil {
		return nil, ErrMissingLength
	}
	if n, ok := sizeLiteral(v); ok {
		return Count(n), nil
	}
	if name, ok := v.(string); ok && name != "" {
		return Ref(name), nil
	}
	return nil, fmt.Errorf("size must be an integer or a variable name, got %T", v)
}
