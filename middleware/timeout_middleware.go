package middleware

import (
	"context"
	"time"

	"ccrpc/status"
)

// TimeoutMiddleware enforces a per-call deadline on top of whatever
// deadline crmserver's dispatch loop already set on ctx, returning
// ERROR_TIMEOUT immediately rather than waiting for the CRM method to
// notice the context was cancelled.
//
// The handler goroutine is not killed when the timeout fires — it keeps
// running in the background and its eventual result is discarded. True
// cancellation requires the CRM method itself to observe ctx.Done().
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) *Reply {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *Reply, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return &Reply{Err: status.New(status.ErrorTimeout, "", call.MethodName, "request timed out")}
			}
		}
	}
}
