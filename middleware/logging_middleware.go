package middleware

import (
	"context"
	"time"

	"ccrpc/logging"
)

// LoggingMiddleware records the method name and call duration for every
// dispatch, logging through logrus instead of the teacher's log.Printf so
// output composes with the rest of the framework's structured logging.
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) *Reply {
			start := time.Now()
			reply := next(ctx, call)
			entry := logging.Log.WithFields(map[string]any{
				"method":   call.MethodName,
				"call_id":  call.CallID,
				"duration": time.Since(start),
			})
			if reply.Err != nil {
				entry.WithField("error", reply.Err).Warn("middleware: call failed")
			} else {
				entry.Debug("middleware: call completed")
			}
			return reply
		}
	}
}
