package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"ccrpc/status"
)

// RateLimitMiddleware backs the BUSY status (spec §4.D): a token-bucket
// limiter shared across all calls, rejecting with BUSY the instant
// the bucket runs dry rather than queuing.
//
// The limiter must live in the outer closure, built once per middleware
// construction — building it inside the inner handler would hand every
// call a fresh full bucket and defeat rate limiting entirely.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) *Reply {
			if !limiter.Allow() {
				return &Reply{Err: status.New(status.Busy, "", call.MethodName, "rate limit exceeded")}
			}
			return next(ctx, call)
		}
	}
}
