// Package middleware implements the onion-model dispatch chain wrapping
// every CRM method invocation in crmserver, generalized from the
// teacher's string-keyed RPCMessage handler chain to the method-name/
// typed-args shape spec §4.D's dispatch loop already works in.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Call:     A.before → B.before → C.before → handler
//	Reply:    handler → C.after → B.after → A.after
package middleware

import "context"

// Call is one decoded method invocation, after envelope and argument
// decoding but before the CRM method itself runs.
type Call struct {
	MethodName string
	Args       []any

	// CallID correlates one call's log lines across the middleware chain
	// and the CRM method it dispatches to. Empty unless the caller sets it
	// (crmserver stamps one per call before entering the chain).
	CallID string
}

// Reply is the result of running a Call through the chain: either a
// result value, or an error a middleware (or the CRM method) produced.
// Err may carry a *status.Error when the failure should map to a specific
// status code; crmserver falls back to ERROR_UNAVAILABLE for any other
// error type.
type Reply struct {
	Result any
	Err    error
}

// HandlerFunc is the signature shared by the business handler and every
// middleware-wrapped handler.
type HandlerFunc func(ctx context.Context, call *Call) *Reply

// Middleware wraps a handler to add cross-cutting behavior around it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, building right to left so the
// first middleware given is the outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
