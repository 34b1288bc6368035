package typeregistry

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
)

// Codec is a resolved, self-delimiting encode/decode pair for one type
// name. Decode must consume exactly the bytes Encode produced and return
// the remainder of the buffer, so composite codecs (list/map, and the
// argument tuple itself) can be built by concatenation.
type Codec struct {
	TypeName string
	Encode   func(v any) ([]byte, error)
	Decode   func(data []byte) (v any, rest []byte, err error)
}

// Transferable is a user-registered type with explicit serialize/deserialize
// functions. Registration is keyed by TypeName (the fully-qualified type
// name used in interface method signatures).
type Transferable struct {
	TypeName    string
	Serialize   func(v any) ([]byte, error)
	Deserialize func(data []byte) (any, error)
}

// resolve turns a type name into a Codec, consulting transferables first
// (a transferable aliasing a built-in name wins per spec's tie-break rule),
// then built-ins, then the list:/map: composite forms.
func resolve(typeName string, transferables map[string]Transferable) (*Codec, error) {
	if t, ok := transferables[typeName]; ok {
		return transferableCodec(t), nil
	}
	if c, ok := builtinCodec(typeName); ok {
		return c, nil
	}
	if elem, ok := strings.CutPrefix(typeName, "list:"); ok {
		elemCodec, err := resolve(elem, transferables)
		if err != nil {
			return nil, fmt.Errorf("typeregistry: list element type %q: %w", elem, err)
		}
		return listCodec(typeName, elemCodec), nil
	}
	if rest, ok := strings.CutPrefix(typeName, "map:"); ok {
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("typeregistry: malformed map type %q", typeName)
		}
		keyCodec, err := resolve(parts[0], transferables)
		if err != nil {
			return nil, fmt.Errorf("typeregistry: map key type %q: %w", parts[0], err)
		}
		valCodec, err := resolve(parts[1], transferables)
		if err != nil {
			return nil, fmt.Errorf("typeregistry: map value type %q: %w", parts[1], err)
		}
		return mapCodec(typeName, keyCodec, valCodec), nil
	}
	return nil, fmt.Errorf("typeregistry: unregistered type %q", typeName)
}

// transferableCodec wraps a user transferable's serialize/deserialize pair
// with a u32 length prefix. A transferable's own byte string is
// self-delimiting by contract (spec §3), but that only means
// deserialize(serialize(v)) round-trips on its own buffer — it says nothing
// about how to find the end of that buffer inside a larger concatenation
// (an argument tuple, or a list/map of the transferable). The length
// prefix gives every transferable that boundary uniformly, without
// requiring each one to manage a shared cursor itself.
func transferableCodec(t Transferable) *Codec {
	return &Codec{
		TypeName: t.TypeName,
		Encode: func(v any) ([]byte, error) {
			b, err := t.Serialize(v)
			if err != nil {
				return nil, err
			}
			out := make([]byte, 4+len(b))
			binary.LittleEndian.PutUint32(out[:4], uint32(len(b)))
			copy(out[4:], b)
			return out, nil
		},
		Decode: func(data []byte) (any, []byte, error) {
			if len(data) < 4 {
				return nil, nil, fmt.Errorf("typeregistry: truncated transferable %s", t.TypeName)
			}
			l := binary.LittleEndian.Uint32(data[:4])
			if len(data) < int(4+l) {
				return nil, nil, fmt.Errorf("typeregistry: truncated transferable %s", t.TypeName)
			}
			v, err := t.Deserialize(data[4 : 4+l])
			return v, data[4+l:], err
		},
	}
}

// listCodec builds a self-delimiting codec for a sequence: u32 count
// followed by each element's self-delimiting encoding, concatenated.
func listCodec(typeName string, elem *Codec) *Codec {
	return &Codec{
		TypeName: typeName,
		Encode: func(v any) ([]byte, error) {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return nil, fmt.Errorf("typeregistry: expected sequence for %s, got %T", typeName, v)
			}
			n := rv.Len()
			out := make([]byte, 4)
			binary.LittleEndian.PutUint32(out, uint32(n))
			for i := 0; i < n; i++ {
				b, err := elem.Encode(rv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				out = append(out, b...)
			}
			return out, nil
		},
		Decode: func(data []byte) (any, []byte, error) {
			if len(data) < 4 {
				return nil, nil, fmt.Errorf("typeregistry: truncated list length")
			}
			n := binary.LittleEndian.Uint32(data[:4])
			rest := data[4:]
			values := make([]any, 0, n)
			for i := uint32(0); i < n; i++ {
				v, next, err := elem.Decode(rest)
				if err != nil {
					return nil, nil, err
				}
				values = append(values, v)
				rest = next
			}
			return values, rest, nil
		},
	}
}

func mapCodec(typeName string, key, val *Codec) *Codec {
	type kv struct{ k, v any }
	return &Codec{
		TypeName: typeName,
		Encode: func(v any) ([]byte, error) {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Map {
				return nil, fmt.Errorf("typeregistry: expected map for %s, got %T", typeName, v)
			}
			keys := rv.MapKeys()
			out := make([]byte, 4)
			binary.LittleEndian.PutUint32(out, uint32(len(keys)))
			for _, k := range keys {
				kb, err := key.Encode(k.Interface())
				if err != nil {
					return nil, err
				}
				vb, err := val.Encode(rv.MapIndex(k).Interface())
				if err != nil {
					return nil, err
				}
				out = append(out, kb...)
				out = append(out, vb...)
			}
			return out, nil
		},
		Decode: func(data []byte) (any, []byte, error) {
			if len(data) < 4 {
				return nil, nil, fmt.Errorf("typeregistry: truncated map length")
			}
			n := binary.LittleEndian.Uint32(data[:4])
			rest := data[4:]
			out := make(map[any]any, n)
			for i := uint32(0); i < n; i++ {
				k, next, err := key.Decode(rest)
				if err != nil {
					return nil, nil, err
				}
				rest = next
				v, next2, err := val.Decode(rest)
				if err != nil {
					return nil, nil, err
				}
				rest = next2
				out[k] = v
			}
			return out, rest, nil
		},
	}
}
