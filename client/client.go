// Package client implements the client proxy of spec §4.E: given an
// address and an interface descriptor, it synthesizes callable methods
// that marshal through the type registry, borrow a pooled connection,
// and return a structured status.Error on anything but SUCCESS.
//
// Grounded in the teacher's client.Client: the same
// shared-pool-per-address shape and round-robin-flavored reuse, adapted
// from "one pool per service name, transports shared for the whole
// connection's life" to "one transport.Pool per (address, interface),
// a connection borrowed for exactly one call and returned afterward" —
// because spec §4.E's proxy pool is sized and waited-on per call, not
// just multiplexed, and a connection must perform the interface-identity
// handshake exactly once, at dial time, not on every call.
package client

import (
	"context"
	"fmt"

	"ccrpc/config"
	"ccrpc/envelope"
	"ccrpc/status"
	"ccrpc/transport"
	"ccrpc/typeregistry"
)

// Proxy is a callable handle to one CRM's interface at one address.
type Proxy struct {
	address    string
	descriptor typeregistry.Descriptor
	registry   *typeregistry.Registry
	pool       *transport.Pool
	cfg        config.Config
	resolver   resolver
}

// resolver turns a discover://<service> address into a concrete transport
// address on every dial, so each new pooled connection can land on a
// different instance. A nil resolver means address is already concrete.
type resolver interface {
	resolve() (string, error)
}

// NewProxy dials no connections up front; the pool fills lazily on first
// Call, matching the teacher's lazy-pool-creation-on-first-access pattern
// in getTransport.
func NewProxy(address string, descriptor typeregistry.Descriptor, reg *typeregistry.Registry) (*Proxy, error) {
	cfg := config.Load()
	p := &Proxy{address: address, descriptor: descriptor, registry: reg, cfg: cfg}
	p.pool = transport.NewPool(address, cfg.PoolSize, p.dialAndHandshake)
	return p, nil
}

func (p *Proxy) dialAndHandshake() (transport.Conn, error) {
	addr := p.address
	if p.resolver != nil {
		resolved, err := p.resolver.resolve()
		if err != nil {
			return nil, status.New(status.ErrorUnavailable, p.address, "", "discover: "+err.Error())
		}
		addr = resolved
	}
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}
	hs := envelope.EncodeHandshake(p.descriptor.Key.Namespace, p.descriptor.Key.Name,
		p.descriptor.Key.Version.Major, p.descriptor.Key.Version.Minor)
	frame := envelope.EncodeCall(envelope.Call{MethodID: envelope.HandshakeMethodID, ArgBlob: hs})
	if err := conn.Send(frame); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := conn.Recv()
	if err != nil {
		conn.Close()
		return nil, err
	}
	rep, err := envelope.DecodeReply(reply, p.cfg.MaxPayload)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if rep.Status != status.Success {
		conn.Close()
		return nil, status.New(rep.Status, p.address, "", "interface-identity handshake rejected: "+string(rep.Payload))
	}
	return conn, nil
}

// Call marshals args via the method's resolved codec plan, sends the call
// over a pooled connection, and decodes the reply. On a non-SUCCESS reply
// (or a transport failure) it returns a *status.Error naming the address
// and method, per spec §4.E.
func (p *Proxy) Call(ctx context.Context, methodName string, args ...any) (any, error) {
	plan, ok := p.registry.PlanByName(p.descriptor.Key, methodName)
	if !ok {
		return nil, status.Invalid(p.address, methodName, "method not declared by interface_descriptor")
	}

	blob, flags, err := typeregistry.EncodeArgs(plan, args)
	if err != nil {
		return nil, status.Invalid(p.address, methodName, err.Error())
	}

	// spec §5: the client-side call deadline only applies when the caller
	// hasn't already set one on ctx; it is distinct from PoolWait below.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ClientCallDeadline(p.address))
		defer cancel()
	}

	// spec §4.E / scenario S4: pool-acquire wait defaults to PoolWait (5s)
	// regardless of the call's own deadline.
	pc, err := p.pool.Acquire(p.cfg.PoolWait)
	if err != nil {
		// A dial or handshake failure inside Acquire already carries its own
		// status (e.g. ERROR_INVALID for an interface mismatch).
		if se, ok := err.(*status.Error); ok {
			return nil, status.New(se.Status, p.address, methodName, se.Message)
		}
		return nil, status.New(status.ErrorTimeout, p.address, methodName, "pool exhausted: "+err.Error())
	}

	result, callErr := p.doCall(ctx, pc, plan, methodName, blob, flags)
	p.pool.Release(pc)
	return result, callErr
}

// CallNamed flattens a name→value argument map into the declared
// positional order of methodName's signature (spec §4.B: "named arguments
// are flattened to their positional slot using the declared signature
// order") before delegating to Call. A name absent from named leaves that
// position nil, the same "missing" case EncodeArgs marks with a
// nullability bit.
func (p *Proxy) CallNamed(ctx context.Context, methodName string, named map[string]any) (any, error) {
	sig, ok := p.descriptor.MethodByName(methodName)
	if !ok {
		return nil, status.Invalid(p.address, methodName, "method not declared by interface_descriptor")
	}
	args := make([]any, len(sig.Args))
	for i, a := range sig.Args {
		if v, present := named[a.Name]; present {
			args[i] = v
		}
	}
	return p.Call(ctx, methodName, args...)
}

func (p *Proxy) doCall(ctx context.Context, pc *transport.Pooled, plan *typeregistry.MethodPlan, methodName string, blob []byte, flags byte) (any, error) {
	frame := envelope.EncodeCall(envelope.Call{MethodID: plan.MethodID, Flags: flags, ArgBlob: blob})
	if err := pc.Send(frame); err != nil {
		pc.Unusable = true
		return nil, status.New(status.ErrorUnavailable, p.address, methodName, err.Error())
	}

	type result struct {
		frame []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := pc.Recv()
		done <- result{f, err}
	}()

	select {
	case <-ctx.Done():
		pc.Unusable = true
		code := status.ErrorTimeout
		if ctx.Err() == context.Canceled {
			// spec §4.F: a scope torn down mid-call surfaces ERROR_UNAVAILABLE.
			code = status.ErrorUnavailable
		}
		return nil, status.New(code, p.address, methodName, "call cancelled before reply")
	case r := <-done:
		if r.err != nil {
			pc.Unusable = true
			return nil, status.New(status.ErrorUnavailable, p.address, methodName, r.err.Error())
		}
		rep, err := envelope.DecodeReply(r.frame, p.cfg.MaxPayload)
		if err != nil {
			pc.Unusable = true
			return nil, status.Invalid(p.address, methodName, err.Error())
		}
		if rep.Status != status.Success {
			if rep.Status == status.ErrorInvalid && string(rep.Payload) == "payload too large" {
				// spec §6 scenario S6: the server closes the connection
				// after this particular rejection, so the pool must not
				// recycle it for a later call.
				pc.Unusable = true
			}
			return nil, status.New(rep.Status, p.address, methodName, string(rep.Payload))
		}
		if plan.ReturnCodec.TypeName == typeregistry.TypeVoid {
			return nil, nil
		}
		v, _, err := plan.ReturnCodec.Decode(rep.Payload)
		if err != nil {
			return nil, status.Invalid(p.address, methodName, fmt.Sprintf("decoding return value: %v", err))
		}
		return v, nil
	}
}

// Close releases the proxy's pooled connections.
func (p *Proxy) Close() { p.pool.Close() }
