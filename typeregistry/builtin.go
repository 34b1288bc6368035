package typeregistry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Built-in type names recognized without any transferable registration.
// Sequence and map element types are named "list:<elem>" / "map:<key>:<val>"
// so a descriptor's method signature can reference them as ordinary type
// name strings, the same way a transferable's name is looked up.
const (
	TypeBool   = "bool"
	TypeInt64  = "int64"
	TypeFloat  = "float64"
	TypeString = "string"
	TypeBytes  = "bytes"
	TypeVoid   = "void"
)

// builtinCodec resolves a built-in type name to an encode/decode pair, or
// reports that the name is not a built-in (it might still be a registered
// transferable, or a list:/map: composite of one).
func builtinCodec(typeName string) (*Codec, bool) {
	switch typeName {
	case TypeBool:
		return &Codec{
			TypeName: typeName,
			Encode: func(v any) ([]byte, error) {
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("typeregistry: expected bool, got %T", v)
				}
				if b {
					return []byte{1}, nil
				}
				return []byte{0}, nil
			},
			Decode: func(data []byte) (any, []byte, error) {
				if len(data) < 1 {
					return nil, nil, fmt.Errorf("typeregistry: short bool")
				}
				return data[0] != 0, data[1:], nil
			},
		}, true
	case TypeInt64:
		return &Codec{
			TypeName: typeName,
			Encode: func(v any) ([]byte, error) {
				n, ok := asInt64(v)
				if !ok {
					return nil, fmt.Errorf("typeregistry: expected int, got %T", v)
				}
				buf := make([]byte, 8)
				binary.LittleEndian.PutUint64(buf, uint64(n))
				return buf, nil
			},
			Decode: func(data []byte) (any, []byte, error) {
				if len(data) < 8 {
					return nil, nil, fmt.Errorf("typeregistry: short int64")
				}
				n := int64(binary.LittleEndian.Uint64(data[:8]))
				return n, data[8:], nil
			},
		}, true
	case TypeFloat:
		return &Codec{
			TypeName: typeName,
			Encode: func(v any) ([]byte, error) {
				f, ok := asFloat64(v)
				if !ok {
					return nil, fmt.Errorf("typeregistry: expected float64, got %T", v)
				}
				buf := make([]byte, 8)
				binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
				return buf, nil
			},
			Decode: func(data []byte) (any, []byte, error) {
				if len(data) < 8 {
					return nil, nil, fmt.Errorf("typeregistry: short float64")
				}
				f := math.Float64frombits(binary.LittleEndian.Uint64(data[:8]))
				return f, data[8:], nil
			},
		}, true
	case TypeString:
		return &Codec{
			TypeName: typeName,
			Encode: func(v any) ([]byte, error) {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("typeregistry: expected string, got %T", v)
				}
				buf := make([]byte, 4+len(s))
				binary.LittleEndian.PutUint32(buf[:4], uint32(len(s)))
				copy(buf[4:], s)
				return buf, nil
			},
			Decode: func(data []byte) (any, []byte, error) {
				if len(data) < 4 {
					return nil, nil, fmt.Errorf("typeregistry: short string length")
				}
				l := binary.LittleEndian.Uint32(data[:4])
				if len(data) < int(4+l) {
					return nil, nil, fmt.Errorf("typeregistry: truncated string")
				}
				return string(data[4 : 4+l]), data[4+l:], nil
			},
		}, true
	case TypeBytes:
		return &Codec{
			TypeName: typeName,
			Encode: func(v any) ([]byte, error) {
				b, ok := v.([]byte)
				if !ok {
					return nil, fmt.Errorf("typeregistry: expected []byte, got %T", v)
				}
				buf := make([]byte, 4+len(b))
				binary.LittleEndian.PutUint32(buf[:4], uint32(len(b)))
				copy(buf[4:], b)
				return buf, nil
			},
			Decode: func(data []byte) (any, []byte, error) {
				if len(data) < 4 {
					return nil, nil, fmt.Errorf("typeregistry: short bytes length")
				}
				l := binary.LittleEndian.Uint32(data[:4])
				if len(data) < int(4+l) {
					return nil, nil, fmt.Errorf("typeregistry: truncated bytes")
				}
				out := make([]byte, l)
				copy(out, data[4:4+l])
				return out, data[4+l:], nil
			},
		}, true
	case TypeVoid:
		return &Codec{
			TypeName: typeName,
			Encode:   func(v any) ([]byte, error) { return nil, nil },
			Decode:   func(data []byte) (any, []byte, error) { return nil, data, nil },
		}, true
	default:
		return nil, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	default:
		return 0, false
	}
}
