package carve

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/carve/pkg/binsrc"
)

func TestRegistryXOR(t *testing.T) {
	reg := NewRegistry()

	tf, err := reg.Build("xor(0x73)")
	require.NoError(t, err)
	out, err := tf([]byte{0x73, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x73, 0x72}, out)

	tf, err = reg.Build("xor([0x0F, 0xF0])")
	require.NoError(t, err)
	out, err = tf([]byte{0x0F, 0xF0, 0x0F, 0xF0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, out, "multi-byte keys cycle")
}

func TestRegistryRotate(t *testing.T) {
	reg := NewRegistry()

	tf, err := reg.Build("rotate(1)")
	require.NoError(t, err)
	out, err := tf([]byte{0b1000_0001})
	require.NoError(t, err)
	assert.Equal(t, []byte{0b0000_0011}, out)

	tf, err = reg.Build("rotate(-1)")
	require.NoError(t, err)
	out, err = tf([]byte{0b0000_0011})
	require.NoError(t, err)
	assert.Equal(t, []byte{0b1000_0001}, out)
}

func TestRegistryZlib(t *testing.T) {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err := zw.Write([]byte("carve carve carve"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	tf, err := NewRegistry().Build("zlib")
	require.NoError(t, err)
	out, err := tf(compressed.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte("carve carve carve"), out)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Build("rot13(1)")
	require.ErrorContains(t, err, "unknown transform")

	_, err = reg.Build("xor()")
	require.ErrorContains(t, err, "at least one parameter")

	_, err = reg.Build("rotate(1, 2)")
	require.Error(t, err)

	_, err = reg.Build("")
	require.Error(t, err)

	_, err = reg.Build("xor)0x73(")
	require.Error(t, err)
}

func TestRegistryCustomTransform(t *testing.T) {
	reg := NewRegistry()
	reg.Register("invert", func(params []any) (binsrc.Transform, error) {
		return func(data []byte) ([]byte, error) {
			out := make([]byte, len(data))
			for i, b := range data {
				out[i] = ^b
			}
			return out, nil
		}, nil
	})

	tf, err := reg.Build("invert()")
	require.NoError(t, err)
	out, err := tf([]byte{0x00, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x00}, out)
}

func TestCompose(t *testing.T) {
	add := func(n byte) func([]byte) ([]byte, error) {
		return func(data []byte) ([]byte, error) {
			out := make([]byte, len(data))
			for i, b := range data {
				out[i] = b + n
			}
			return out, nil
		}
	}
	double := func(data []byte) ([]byte, error) {
		out := make([]byte, len(data))
		for i, b := range data {
			out[i] = b * 2
		}
		return out, nil
	}

	tf := Compose(add(1), double)
	out, err := tf([]byte{3})
	require.NoError(t, err)
	assert.Equal(t, []byte{8}, out, "outer runs before inner")

	assert.Nil(t, Compose(nil, nil))

	only := Compose(add(5), nil)
	out, err = only([]byte{1})
	require.NoError(t, err)
	assert.Equal(t, []byte{6}, out)

	only = Compose(nil, double)
	out, err = only([]byte{4})
	require.NoError(t, err)
	assert.Equal(t, []byte{8}, out)
}
