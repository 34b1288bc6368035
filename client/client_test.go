package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ccrpc/crmserver"
	"ccrpc/typeregistry"
)

type arithCRM struct{}

func (arithCRM) Add(ctx context.Context, args []any) (any, error) {
	a := args[0].(int64)
	b := args[1].(int64)
	return a + b, nil
}

func arithDescriptor() typeregistry.Descriptor {
	return typeregistry.Descriptor{
		Key: typeregistry.Key{Namespace: "test", Name: "Arith", Version: typeregistry.Version{Major: 1}},
		Methods: []typeregistry.MethodSignature{
			{
				Name: "Add",
				Args: []typeregistry.Arg{
					{Name: "a", Type: typeregistry.TypeInt64},
					{Name: "b", Type: typeregistry.TypeInt64},
				},
				ReturnType: typeregistry.TypeInt64,
			},
		},
	}
}

func TestProxyCallRoundTrip(t *testing.T) {
	addr := fmt.Sprintf("thread://client-test-%d", time.Now().UnixNano())
	reg := typeregistry.New()
	d := arithDescriptor()

	srv := crmserver.New("Arith", arithCRM{}, d, reg, nil)
	require.NoError(t, srv.Bind(addr))
	go srv.Serve()
	defer srv.Shutdown(time.Second)

	proxy, err := NewProxy(addr, d, reg)
	require.NoError(t, err)
	defer proxy.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := proxy.Call(ctx, "Add", int64(1), int64(2))
	require.NoError(t, err)
	require.Equal(t, int64(3), result)

	result, err = proxy.Call(ctx, "Add", int64(10), int64(20))
	require.NoError(t, err)
	require.Equal(t, int64(30), result)
}

func TestProxyRejectsUnknownMethod(t *testing.T) {
	addr := fmt.Sprintf("thread://client-test-unknown-%d", time.Now().UnixNano())
	reg := typeregistry.New()
	d := arithDescriptor()

	srv := crmserver.New("Arith", arithCRM{}, d, reg, nil)
	require.NoError(t, srv.Bind(addr))
	go srv.Serve()
	defer srv.Shutdown(time.Second)

	proxy, err := NewProxy(addr, d, reg)
	require.NoError(t, err)
	defer proxy.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = proxy.Call(ctx, "Subtract", int64(1), int64(2))
	require.Error(t, err)
}

func TestProxyConcurrentCalls(t *testing.T) {
	addr := fmt.Sprintf("thread://client-test-concurrent-%d", time.Now().UnixNano())
	reg := typeregistry.New()
	d := arithDescriptor()

	srv := crmserver.New("Arith", arithCRM{}, d, reg, nil)
	require.NoError(t, srv.Bind(addr))
	go srv.Serve()
	defer srv.Shutdown(time.Second)

	proxy, err := NewProxy(addr, d, reg)
	require.NoError(t, err)
	defer proxy.Close()

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			result, err := proxy.Call(ctx, "Add", int64(n), int64(n))
			if err != nil {
				errs <- err
				return
			}
			if result.(int64) != int64(n*2) {
				errs <- fmt.Errorf("request %d: expected %d, got %v", n, n*2, result)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
	}
}
