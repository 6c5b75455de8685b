package carve

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FieldData is one node of the result tree: a labeled, typed value tagged
// with the absolute offset it was read from. Value holds a decoded
// integer, a raw []byte for unknown fields, or a []FieldData child
// sequence for struct and nested-block fields. Nodes are not mutated
// after the Reader produces them.
type FieldData struct {
	Label  string
	Type   string
	Offset int64
	Value  any
}

// Children returns the node's child sequence, or nil for scalar and raw
// nodes.
func (d FieldData) Children() []FieldData {
	children, _ := d.Value.([]FieldData)
	return children
}

// Child returns the first child carrying the given label.
func (d FieldData) Child(label string) (FieldData, bool) {
	for _, c := range d.Children() {
		if c.Label == label {
			return c, true
		}
	}
	return FieldData{}, false
}

// Int returns the node's value widened to int64, when it is an integer.
func (d FieldData) Int() (int64, bool) {
	return asInt64(d.Value)
}

// Bytes returns the node's raw byte value, when it has one.
func (d FieldData) Bytes() ([]byte, bool) {
	b, ok := d.Value.([]byte)
	return b, ok
}

type jsonNode struct {
	Label  string      `json:"label"`
	Type   string      `json:"type"`
	Offset int64       `json:"offset"`
	Value  any         `json:"value,omitempty"`
	Fields []FieldData `json:"fields,omitempty"`
}

// MarshalJSON renders the node with raw bytes hex-encoded and child
// sequences under a "fields" key.
func (d FieldData) MarshalJSON() ([]byte, error) {
	node := jsonNode{Label: d.Label, Type: d.Type, Offset: d.Offset}
	switch v := d.Value.(type) {
	case []FieldData:
		node.Fields = v
	case []byte:
		node.Value = fmt.Sprintf("% x", v)
	default:
		node.Value = v
	}
	return json.Marshal(node)
}

// WriteTree writes an indented text rendering of a result sequence.
func WriteTree(w io.Writer, fields []FieldData) error {
	return writeTree(w, fields, 0)
}

func writeTree(w io.Writer, fields []FieldData, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, d := range fields {
		var err error
		switch v := d.Value.(type) {
		case []FieldData:
			if _, err = fmt.Fprintf(w, "%s%#08x  %-8s %s\n", indent, d.Offset, d.Type, d.Label); err != nil {
				return err
			}
			err = writeTree(w, v, depth+1)
		case []byte:
			_, err = fmt.Fprintf(w, "%s%#08x  %-8s %s = %d bytes %s\n", indent, d.Offset, d.Type, d.Label, len(v), previewBytes(v))
		default:
			_, err = fmt.Fprintf(w, "%s%#08x  %-8s %s = %v\n", indent, d.Offset, d.Type, d.Label, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// previewBytes renders at most the first 16 bytes of a raw span.
func previewBytes(b []byte) string {
	const max = 16
	if len(b) <= max {
		return fmt.Sprintf("[% x]", b)
	}
	return fmt.Sprintf("[% x ...]", b[:max])
}
