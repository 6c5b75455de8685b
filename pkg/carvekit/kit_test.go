package carvekit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/carve/pkg/binsrc"
	"github.com/mkarren/carve/pkg/carve"
)

const sampleSchema = `id: sample
endian: little
fields:
  - name: magic
    type: u16
  - name: len
    type: u16
  - name: body
    type: block
    size: len
    fields:
      - type: unknown
        size: 3
`

// sampleData matches sampleSchema: magic, len=3, then 3 body bytes.
var sampleData = []byte{0x42, 0x00, 0x03, 0x00, 0xAA, 0xBB, 0xCC}

func writeSchema(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestParseBytes(t *testing.T) {
	parser := NewParser()
	fields, err := parser.ParseBytes(sampleData, writeSchema(t, sampleSchema))
	require.NoError(t, err)
	require.Len(t, fields, 3)

	assert.Equal(t, "magic", fields[0].Label)
	assert.Equal(t, uint16(0x42), fields[0].Value)
	assert.Equal(t, uint16(3), fields[1].Value)

	children := fields[2].Children()
	require.Len(t, children, 1)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, children[0].Value)
}

func TestParseFile(t *testing.T) {
	binPath := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(binPath, sampleData, 0o644))

	fields, err := NewParser().ParseFile(binPath, writeSchema(t, sampleSchema))
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, uint16(0x42), fields[0].Value)
}

func TestDumpJSON(t *testing.T) {
	binPath := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(binPath, sampleData, 0o644))

	out, err := NewParser().DumpJSON(binPath, writeSchema(t, sampleSchema))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "magic", decoded[0]["label"])
}

func TestGapFillOption(t *testing.T) {
	schema := writeSchema(t, "id: s\nendian: little\nfields:\n  - name: x\n    type: u8\n    at: 2\n")
	data := []byte{0, 1, 42, 3, 4}

	fields, err := NewParser(WithGapFill(true)).ParseBytes(data, schema)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, carve.TypeUnknown, fields[0].Type)
	assert.Equal(t, uint8(42), fields[1].Value)
	assert.Equal(t, carve.TypeUnknown, fields[2].Type)

	fields, err = NewParser().ParseBytes(data, schema)
	require.NoError(t, err)
	require.Len(t, fields, 1)
}

func TestSchemaCaching(t *testing.T) {
	schemaPath := writeSchema(t, sampleSchema)

	parser := NewParser()
	_, err := parser.ParseBytes(sampleData, schemaPath)
	require.NoError(t, err)

	// Clobber the file; the cached entry keeps the parser working.
	require.NoError(t, os.WriteFile(schemaPath, []byte("fields: [unclosed"), 0o644))
	_, err = parser.ParseBytes(sampleData, schemaPath)
	require.NoError(t, err)

	// A non-caching parser sees the broken file immediately.
	_, err = NewParser(WithoutCaching()).ParseBytes(sampleData, schemaPath)
	require.Error(t, err)
}

func TestCustomRegistry(t *testing.T) {
	reg := carve.NewRegistry()
	// "plus" shifts every byte up by a fixed amount.
	reg.Register("plus", func(params []any) (binsrc.Transform, error) {
		n, _ := params[0].(int64)
		return func(data []byte) ([]byte, error) {
			out := make([]byte, len(data))
			for i, b := range data {
				out[i] = b + byte(n)
			}
			return out, nil
		}, nil
	})

	schema := writeSchema(t, "id: s\nendian: little\nfields:\n  - name: v\n    type: u8\n    transform: plus(1)\n")
	fields, err := NewParser(WithRegistry(reg)).ParseBytes([]byte{9}, schema)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), fields[0].Value)
}

func TestPackageLevelHelpers(t *testing.T) {
	binPath := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(binPath, sampleData, 0o644))
	schemaPath := writeSchema(t, sampleSchema)

	fields, err := ParseFile(binPath, schemaPath)
	require.NoError(t, err)
	assert.Len(t, fields, 3)

	fields, err = ParseBytes(sampleData, schemaPath)
	require.NoError(t, err)
	assert.Len(t, fields, 3)

	out, err := DumpJSON(binPath, schemaPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(out))
}
