package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, call *Call) *Reply {
	return &Reply{Result: "ok"}
}

func slowHandler(ctx context.Context, call *Call) *Reply {
	time.Sleep(200 * time.Millisecond)
	return &Reply{Result: "ok"}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware()(echoHandler)
	reply := handler(context.Background(), &Call{MethodName: "Arith.Add"})
	require.NotNil(t, reply)
	require.NoError(t, reply.Err)
	require.Equal(t, "ok", reply.Result)
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)
	reply := handler(context.Background(), &Call{MethodName: "Arith.Add"})
	require.NoError(t, reply.Err)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)
	reply := handler(context.Background(), &Call{MethodName: "Arith.Add"})
	require.Error(t, reply.Err)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	call := &Call{MethodName: "Arith.Add"}

	for i := 0; i < 2; i++ {
		reply := handler(context.Background(), call)
		require.NoError(t, reply.Err, "request %d should pass", i)
	}

	reply := handler(context.Background(), call)
	require.Error(t, reply.Err)
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(), TimeoutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)

	reply := handler(context.Background(), &Call{MethodName: "Arith.Add"})
	require.NotNil(t, reply)
	require.NoError(t, reply.Err)
}
