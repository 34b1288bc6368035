package component

import (
	"context"
	"fmt"

	"ccrpc/client"
	"ccrpc/typeregistry"
)

// Scope is one task's ambient connection scope: a context.Context plus
// the Runtime it was built from. Calling Close cancels the derived
// context, which spec §4.F requires to fail any call still in flight on a
// proxy borrowed through this scope with ERROR_UNAVAILABLE — Proxy.Call
// already selects on ctx.Done() for exactly this reason, so Scope only
// needs to own and cancel the context, not touch the transport layer.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	rt     *Runtime
}

// NewScope derives a cancellable scope from parent, carrying rt so
// Connect and decorated functions invoked with Scope.Context() can reach
// it without a process global.
func NewScope(parent context.Context, rt *Runtime) *Scope {
	ctx, cancel := context.WithCancel(WithRuntime(parent, rt))
	return &Scope{ctx: ctx, cancel: cancel, rt: rt}
}

// Context returns the scope's context.Context, to pass to Proxy.Call or a
// decorated function.
func (s *Scope) Context() context.Context { return s.ctx }

// Connect is the scoped connect_crm(address, interface) as proxy form:
// it resolves (or reuses) a Runtime-cached proxy, bound to this scope's
// lifetime only in the sense that a call made through it with s.Context()
// is cancelled when the scope closes — the proxy and its pooled
// connections otherwise outlive any one scope.
//
// Connect also records the resulting proxy as this scope's ambient proxy
// for descriptor.Key, so a component-decorated function invoked later with
// s.Context() finds it via step 1 of spec §4.F's connect_crm resolution,
// instead of always falling back to step 2's crm_address argument.
func (s *Scope) Connect(address string, descriptor typeregistry.Descriptor) (Proxy, error) {
	p, err := s.rt.Connect(address, descriptor)
	if err != nil {
		return Proxy{}, err
	}
	proxy := Proxy{underlying: p, ctx: s.ctx}
	s.ctx = withAmbientProxy(s.ctx, descriptor.Key, proxy)
	return proxy, nil
}

// Close cancels the scope's context. Safe to call more than once.
func (s *Scope) Close() { s.cancel() }

// ambientProxiesKey is the context key under which Scope.Connect records
// proxies by interface, for Decorate's step-1 ambient lookup.
type ambientProxiesKey struct{}

type ambientProxies map[typeregistry.Key]Proxy

// withAmbientProxy returns a context carrying ctx's existing ambient
// proxies plus proxy registered under key. It copies rather than mutates
// so an earlier Scope.Context() call is never retroactively affected.
func withAmbientProxy(ctx context.Context, key typeregistry.Key, proxy Proxy) context.Context {
	existing, _ := ctx.Value(ambientProxiesKey{}).(ambientProxies)
	next := make(ambientProxies, len(existing)+1)
	for k, v := range existing {
		next[k] = v
	}
	next[key] = proxy
	return context.WithValue(ctx, ambientProxiesKey{}, next)
}

// ambientProxyFromContext looks up a proxy a Scope.Connect call already
// registered for key, the "ambient proxy for that interface is already
// present" case of spec §4.F.
func ambientProxyFromContext(ctx context.Context, key typeregistry.Key) (Proxy, bool) {
	existing, ok := ctx.Value(ambientProxiesKey{}).(ambientProxies)
	if !ok {
		return Proxy{}, false
	}
	p, ok := existing[key]
	return p, ok
}

// proxyCaller is the subset of client.Proxy that Proxy needs, so this
// package doesn't need to re-export client.Proxy's full surface.
type proxyCaller interface {
	Call(ctx context.Context, methodName string, args ...any) (any, error)
	CallNamed(ctx context.Context, methodName string, named map[string]any) (any, error)
}

// Proxy binds a client.Proxy to the scope's context so callers never pass
// a context explicitly and can never accidentally use a different scope's
// deadline for a call made through this handle.
type Proxy struct {
	underlying proxyCaller
	ctx        context.Context
}

// Call invokes methodName with the scope's context, per spec §4.F.
func (p Proxy) Call(methodName string, args ...any) (any, error) {
	if p.underlying == nil {
		return nil, fmt.Errorf("component: Proxy used before Connect")
	}
	return p.underlying.Call(p.ctx, methodName, args...)
}

// CallNamed invokes methodName with the scope's context, flattening named
// against the method's declared signature order (spec §4.B), the same way
// client.Proxy.CallNamed does for a directly-held proxy.
func (p Proxy) CallNamed(methodName string, named map[string]any) (any, error) {
	if p.underlying == nil {
		return nil, fmt.Errorf("component: Proxy used before Connect")
	}
	return p.underlying.CallNamed(p.ctx, methodName, named)
}

// HandlerFunc is a component-decorated function: it receives the scope's
// context and the call's declared arguments by name.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Decorated is a HandlerFunc plus the interface it declares and the
// schema of its own non-address arguments, for the bridge package's
// registration-adapter contract (spec §4.H) to inspect.
type Decorated struct {
	Name         string
	Descriptor   typeregistry.Descriptor
	ArgSchema    map[string]string
	AddressParam string
	Handler      HandlerFunc
}

// crmAddressParam is the reserved argument name spec §4.F requires every
// component-decorated function accept: the address of the CRM it should
// connect to before running fn.
const crmAddressParam = "crm_address"

// Decorate wraps fn into a Decorated whose HandlerFunc resolves a Proxy
// for descriptor the way spec §4.F describes connect_crm resolution for a
// component-decorated function:
//
//  1. If the calling scope already has an ambient proxy for this interface
//     (recorded by an earlier Scope.Connect), inject it — fn never dials
//     again for a CRM its scope is already connected to.
//  2. Otherwise, fall back to the reserved crm_address argument: open a
//     proxy dedicated to this one call and close it when fn returns, since
//     nothing else in the scope is holding onto it.
//
// name and argSchema describe the decorated function itself (not the
// CRM's interface) and exist purely for bridge.Enumerate to publish —
// Decorate never inspects them.
func Decorate(name string, descriptor typeregistry.Descriptor, argSchema map[string]string, fn func(ctx context.Context, proxy Proxy, args map[string]any) (any, error)) Decorated {
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		if ambient, ok := ambientProxyFromContext(ctx, descriptor.Key); ok {
			return fn(ctx, ambient, args)
		}

		rt, ok := RuntimeFromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("component: no ambient runtime in context")
		}
		address, ok := args[crmAddressParam].(string)
		if !ok {
			return nil, fmt.Errorf("component: missing required %s argument", crmAddressParam)
		}
		p, err := client.NewProxy(address, descriptor, rt.Registry())
		if err != nil {
			return nil, err
		}
		defer p.Close()
		return fn(ctx, Proxy{underlying: p, ctx: ctx}, args)
	}
	return Decorated{
		Name:         name,
		Descriptor:   descriptor,
		ArgSchema:    argSchema,
		AddressParam: crmAddressParam,
		Handler:      handler,
	}
}
