package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ccrpc/component"
	"ccrpc/typeregistry"
)

type recordingAdapter struct {
	published []ToolHandle
}

func (a *recordingAdapter) Publish(handles []ToolHandle) error {
	a.published = handles
	return nil
}

func TestEnumerateSortsByName(t *testing.T) {
	d := typeregistry.Descriptor{Key: typeregistry.Key{Namespace: "test", Name: "Thing", Version: typeregistry.Version{Major: 1}}}
	noop := func(ctx context.Context, proxy component.Proxy, args map[string]any) (any, error) { return nil, nil }

	container := map[string]component.Decorated{
		"b": component.Decorate("b_tool", d, map[string]string{"x": typeregistry.TypeInt64}, noop),
		"a": component.Decorate("a_tool", d, nil, noop),
	}

	handles := Enumerate(container)
	require.Len(t, handles, 2)
	require.Equal(t, "a_tool", handles[0].Name)
	require.Equal(t, "b_tool", handles[1].Name)
	require.Equal(t, "crm_address", handles[0].AddressParam)
}

func TestRegisterPublishesThroughAdapter(t *testing.T) {
	d := typeregistry.Descriptor{Key: typeregistry.Key{Namespace: "test", Name: "Thing", Version: typeregistry.Version{Major: 1}}}
	noop := func(ctx context.Context, proxy component.Proxy, args map[string]any) (any, error) { return nil, nil }
	container := map[string]component.Decorated{
		"a": component.Decorate("a_tool", d, nil, noop),
	}

	adapter := &recordingAdapter{}
	handles, err := Register(container, adapter)
	require.NoError(t, err)
	require.Equal(t, handles, adapter.published)
	require.Len(t, adapter.published, 1)
}
