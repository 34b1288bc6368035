package typeregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func echoDescriptor() Descriptor {
	return Descriptor{
		Key: Key{Namespace: "cc.test", Version: Version{Major: 0, Minor: 1}, Name: "Echo"},
		Methods: []MethodSignature{
			{Name: "echo", Args: []Arg{{Name: "in", Type: TypeString}}, ReturnType: TypeString},
		},
	}
}

func TestRegisterAndPlanRoundTrip(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterInterface(echoDescriptor()))

	plan, ok := r.PlanByName(echoDescriptor().Key, "echo")
	require.True(t, ok)
	require.Equal(t, uint32(0), plan.MethodID)

	blob, flags, err := EncodeArgs(plan, []any{"hello"})
	require.NoError(t, err)
	require.Zero(t, flags)

	args, err := DecodeArgs(plan, blob)
	require.NoError(t, err)
	require.Equal(t, "hello", args[0])
}

func TestRegisterInterfaceRejectsUnknownType(t *testing.T) {
	r := New()
	d := Descriptor{
		Key: Key{Namespace: "cc.test", Name: "Bad"},
		Methods: []MethodSignature{
			{Name: "m", Args: []Arg{{Name: "x", Type: "NoSuchType"}}, ReturnType: TypeVoid},
		},
	}
	err := r.RegisterInterface(d)
	require.Error(t, err)
}

func TestTransferableWinsOverBuiltinAlias(t *testing.T) {
	r := New()
	called := false
	require.NoError(t, r.RegisterTransferable(Transferable{
		TypeName:  TypeBytes,
		Serialize: func(v any) ([]byte, error) { called = true; return v.([]byte), nil },
		Deserialize: func(data []byte) (any, error) {
			return data, nil
		},
	}))
	d := Descriptor{
		Key:     Key{Namespace: "cc.test", Name: "B"},
		Methods: []MethodSignature{{Name: "m", Args: []Arg{{Name: "x", Type: TypeBytes}}, ReturnType: TypeVoid}},
	}
	require.NoError(t, r.RegisterInterface(d))
	plan, _ := r.PlanByName(d.Key, "m")
	_, err := plan.ArgCodecs[0].Encode([]byte("hi"))
	require.NoError(t, err)
	require.True(t, called)
}

func TestListCodecRoundTrip(t *testing.T) {
	r := New()
	d := Descriptor{
		Key:     Key{Namespace: "cc.test", Name: "L"},
		Methods: []MethodSignature{{Name: "sum", Args: []Arg{{Name: "xs", Type: "list:" + TypeInt64}}, ReturnType: TypeInt64}},
	}
	require.NoError(t, r.RegisterInterface(d))
	plan, _ := r.PlanByName(d.Key, "sum")

	blob, _, err := EncodeArgs(plan, []any{[]int64{1, 2, 3}})
	require.NoError(t, err)
	args, err := DecodeArgs(plan, blob)
	require.NoError(t, err)
	xs := args[0].([]any)
	require.Len(t, xs, 3)
	require.Equal(t, int64(2), xs[1])
}

func threeArgDescriptor() Descriptor {
	return Descriptor{
		Key: Key{Namespace: "cc.test", Name: "Three"},
		Methods: []MethodSignature{
			{
				Name: "m",
				Args: []Arg{
					{Name: "a", Type: TypeInt64},
					{Name: "b", Type: TypeInt64},
					{Name: "c", Type: TypeInt64},
				},
				ReturnType: TypeVoid,
			},
		},
	}
}

func TestEncodeDecodeArgsWithInteriorNil(t *testing.T) {
	r := New()
	d := threeArgDescriptor()
	require.NoError(t, r.RegisterInterface(d))
	plan, ok := r.PlanByName(d.Key, "m")
	require.True(t, ok)

	blob, flags, err := EncodeArgs(plan, []any{int64(1), nil, int64(3)})
	require.NoError(t, err)
	require.NotZero(t, flags)

	args, err := DecodeArgs(plan, blob)
	require.NoError(t, err)
	require.Equal(t, int64(1), args[0])
	require.Nil(t, args[1])
	require.Equal(t, int64(3), args[2])
}

func TestEncodeDecodeArgsWithLeadingAndTrailingNil(t *testing.T) {
	r := New()
	d := threeArgDescriptor()
	require.NoError(t, r.RegisterInterface(d))
	plan, ok := r.PlanByName(d.Key, "m")
	require.True(t, ok)

	blob, _, err := EncodeArgs(plan, []any{nil, int64(2), nil})
	require.NoError(t, err)

	args, err := DecodeArgs(plan, blob)
	require.NoError(t, err)
	require.Nil(t, args[0])
	require.Equal(t, int64(2), args[1])
	require.Nil(t, args[2])
}

func TestDescriptorEqual(t *testing.T) {
	a := echoDescriptor()
	b := echoDescriptor()
	require.True(t, a.Equal(&b))

	b.Key.Version.Minor = 2
	require.False(t, a.Equal(&b))
}
