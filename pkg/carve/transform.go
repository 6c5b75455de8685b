package carve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"

	"github.com/mkarren/carve/pkg/binsrc"
)

// TransformFactory builds a Transform from the parameters of a parsed
// transform spec such as "xor(0x73)".
type TransformFactory func(params []any) (binsrc.Transform, error)

// Registry maps transform names to factories so YAML schemas can refer to
// transforms by spec string. A new registry comes preloaded with "xor",
// "rotate" and "zlib".
type Registry struct {
	factories map[string]TransformFactory
}

// NewRegistry creates a registry with the default transforms registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]TransformFactory)}
	r.Register("xor", xorTransform)
	r.Register("rotate", rotateTransform)
	r.Register("zlib", zlibTransform)
	return r
}

// Register adds or replaces a named transform factory.
func (r *Registry) Register(name string, factory TransformFactory) {
	r.factories[name] = factory
}

// Build parses a transform spec like "xor(0x5F)", "xor([0x5F, 0x10])",
// "rotate(3)" or a bare "zlib" and returns the resulting transform.
func (r *Registry) Build(spec string) (binsrc.Transform, error) {
	name, params, err := parseTransformSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid transform specification: %w", err)
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform: %s", name)
	}
	return factory(params)
}

// Compose chains two optional transforms, running outer first and inner
// on its output. Either side may be nil; composing two nils yields nil,
// which the sources treat as the identity.
func Compose(outer, inner binsrc.Transform) binsrc.Transform {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	return func(data []byte) ([]byte, error) {
		out, err := outer(data)
		if err != nil {
			return nil, err
		}
		return inner(out)
	}
}

// parseTransformSpec splits a spec string into a function name and its
// parameter list. A bare name with no parentheses means no parameters.
func parseTransformSpec(spec string) (string, []any, error) {
	open := strings.Index(spec, "(")
	if open == -1 {
		name := strings.TrimSpace(spec)
		if name == "" {
			return "", nil, fmt.Errorf("empty transform spec")
		}
		return name, nil, nil
	}

	closing := strings.LastIndex(spec, ")")
	if closing < open {
		return "", nil, fmt.Errorf("invalid transform format: %s", spec)
	}

	name := strings.TrimSpace(spec[:open])
	paramStr := strings.TrimSpace(spec[open+1 : closing])

	var params []any
	if strings.HasPrefix(paramStr, "[") && strings.HasSuffix(paramStr, "]") {
		for _, part := range strings.Split(paramStr[1:len(paramStr)-1], ",") {
			param, err := parseParam(strings.TrimSpace(part))
			if err != nil {
				return "", nil, err
			}
			params = append(params, param)
		}
	} else if paramStr != "" {
		param, err := parseParam(paramStr)
		if err != nil {
			return "", nil, err
		}
		params = append(params, param)
	}

	return name, params, nil
}

func parseParam(paramStr string) (any, error) {
	if strings.HasPrefix(paramStr, "0x") || strings.HasPrefix(paramStr, "0X") {
		val, err := strconv.ParseInt(paramStr[2:], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid hex parameter: %s", paramStr)
		}
		return val, nil
	}
	if val, err := strconv.ParseInt(paramStr, 10, 64); err == nil {
		return val, nil
	}
	if val, err := strconv.ParseFloat(paramStr, 64); err == nil {
		return val, nil
	}
	return paramStr, nil
}

func paramByte(param any) (byte, error) {
	switch v := param.(type) {
	case int64:
		return byte(v), nil
	case float64:
		return byte(v), nil
	default:
		return 0, fmt.Errorf("invalid byte parameter type: %T", param)
	}
}

func xorTransform(params []any) (binsrc.Transform, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("xor transform requires at least one parameter")
	}
	key := make([]byte, len(params))
	for i, param := range params {
		b, err := paramByte(param)
		if err != nil {
			return nil, fmt.Errorf("xor key at index %d: %w", i, err)
		}
		key[i] = b
	}
	return func(data []byte) ([]byte, error) {
		return kaitai.ProcessXOR(data, key), nil
	}, nil
}

func rotateTransform(params []any) (binsrc.Transform, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("rotate transform requires exactly one parameter")
	}
	var amount int
	switch v := params[0].(type) {
	case int64:
		amount = int(v)
	case float64:
		amount = int(v)
	default:
		return nil, fmt.Errorf("invalid rotate amount type: %T", params[0])
	}
	return func(data []byte) ([]byte, error) {
		if amount >= 0 {
			return kaitai.ProcessRotateLeft(data, amount), nil
		}
		return kaitai.ProcessRotateRight(data, -amount), nil
	}, nil
}

func zlibTransform(params []any) (binsrc.Transform, error) {
	if len(params) != 0 {
		return nil, fmt.Errorf("zlib transform takes no parameters")
	}
	return func(data []byte) ([]byte, error) {
		return kaitai.ProcessZlib(data)
	}, nil
}
