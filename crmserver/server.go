// Package crmserver implements the server core of spec §4.D: a CRM
// (Core Resource Model) instance bound to an address under an interface
// descriptor, dispatching decoded calls to reflectively-invoked CRM
// methods and replying over whichever transport.Conn the call arrived on.
//
// Grounded in the teacher's server.Server: the same
// Accept-loop-spawns-handleConn-spawns-handleRequest concurrency shape, the
// same atomic shutdown flag distinguishing an intentional listener Close
// from a real Accept error, and the same wg.Wait-with-timeout graceful
// drain — generalized from a fixed TCP listener and JSON/service-map
// dispatch to any transport.Listener and a typeregistry-resolved method
// plan, and extended with the interface-identity handshake spec §4.D
// requires on the first frame of every connection.
package crmserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ccrpc/config"
	"ccrpc/envelope"
	"ccrpc/logging"
	"ccrpc/middleware"
	"ccrpc/status"
	"ccrpc/transport"
	"ccrpc/typeregistry"
)

// State is one point in the server lifecycle of spec §4.D:
// CONSTRUCTED → BOUND → RUNNING → STOPPING → STOPPED.
type State int32

const (
	Constructed State = iota
	Bound
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "CONSTRUCTED"
	case Bound:
		return "BOUND"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Server is one CRM bound to one address under one interface descriptor.
type Server struct {
	name       string
	crm        any
	descriptor typeregistry.Descriptor
	registry   *typeregistry.Registry
	bindAddr   string
	onShutdown func()

	methods     map[string]crmMethod
	middlewares []middleware.Middleware
	dispatch    middleware.HandlerFunc
	state       atomic.Int32

	listener   transport.Listener
	wg         sync.WaitGroup
	terminated chan struct{}
	cfg        config.Config
}

// Use registers a dispatch middleware, applied in the order added — the
// first middleware given is the outermost layer, wrapping every other
// middleware and the CRM method invocation itself. Must be called before
// Serve; the chain is built once, not per call, matching the teacher's
// build-chain-once-in-Serve pattern.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// New constructs a server in the CONSTRUCTED state. crm must expose one
// method per entry in descriptor.Methods, matching the shape in
// service.go; this is validated at Bind, not here, so construction never
// fails on a descriptor that hasn't been finalized yet.
func New(name string, crm any, descriptor typeregistry.Descriptor, reg *typeregistry.Registry, onShutdown func()) *Server {
	s := &Server{
		name:       name,
		crm:        crm,
		descriptor: descriptor,
		registry:   reg,
		onShutdown: onShutdown,
		terminated: make(chan struct{}),
		cfg:        config.Load(),
	}
	s.methods = bindMethods(crm)
	return s
}

func (s *Server) State() State { return State(s.state.Load()) }

// Addr returns the address the server actually bound to, which for an
// ephemeral port (e.g. "tcp://127.0.0.1:0") differs from the address passed
// to Bind. Only valid once Bind has returned successfully.
func (s *Server) Addr() string {
	return s.listener.Addr()
}

// Bind resolves bindAddr, registers the descriptor, and validates that crm
// implements every declared method. Transitions CONSTRUCTED → BOUND.
func (s *Server) Bind(bindAddr string) error {
	if s.State() != Constructed {
		return fmt.Errorf("crmserver: Bind called in state %s, want CONSTRUCTED", s.State())
	}
	if err := validateAgainstDescriptor(s.methods, &s.descriptor); err != nil {
		return status.Invalid(bindAddr, "", err.Error())
	}
	if err := s.registry.RegisterInterface(s.descriptor); err != nil {
		return err
	}
	ln, err := transport.Listen(bindAddr)
	if err != nil {
		return err
	}
	s.bindAddr = bindAddr
	s.listener = ln
	s.state.Store(int32(Bound))
	return nil
}

// Serve enters the accept loop. Transitions BOUND → RUNNING and blocks
// until the listener is closed by Shutdown.
func (s *Server) Serve() error {
	if s.State() != Bound {
		return fmt.Errorf("crmserver: Serve called in state %s, want BOUND", s.State())
	}
	s.state.Store(int32(Running))
	s.dispatch = middleware.Chain(s.middlewares...)(s.invokeCRM)
	logging.Log.WithFields(logrus.Fields{"crm": s.name, "address": s.bindAddr}).Info("crmserver: serving")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.State() >= Stopping {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn validates the interface-identity handshake on the first
// frame, then dispatches every subsequent frame to its own goroutine —
// same split as the teacher's handleConn/handleRequest, because a slow
// call must never block the next call on the same connection. Only
// handleCall is wg-tracked for Shutdown's drain, matching the teacher's
// own handleConn/handleRequest split: an open connection idling between
// calls has nothing in flight to wait for, only a genuinely running call
// does.
func (s *Server) handleConn(conn transport.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	if !s.handshake(conn, &writeMu) {
		return
	}

	for {
		frame, err := conn.Recv()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleCall(conn, &writeMu, frame)
	}
}

func (s *Server) handshake(conn transport.Conn, writeMu *sync.Mutex) bool {
	frame, err := conn.Recv()
	if err != nil {
		return false
	}
	call, err := envelope.DecodeCall(frame, s.cfg.MaxPayload)
	if err != nil || call.MethodID != envelope.HandshakeMethodID {
		s.reject(conn, writeMu, "", "first frame must be the interface-identity handshake")
		return false
	}
	namespace, name, major, _, err := envelope.DecodeHandshake(call.ArgBlob)
	if err != nil {
		s.reject(conn, writeMu, "", "malformed handshake")
		return false
	}
	if namespace != s.descriptor.Key.Namespace || name != s.descriptor.Key.Name || major != s.descriptor.Key.Version.Major {
		s.reject(conn, writeMu, "", fmt.Sprintf("interface mismatch: peer wants %s/%s v%d", namespace, name, major))
		return false
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.Send(envelope.EncodeReply(envelope.Reply{Status: status.Success})) == nil
}

func (s *Server) reject(conn transport.Conn, writeMu *sync.Mutex, methodName, message string) {
	logging.Log.WithField("crm", s.name).Warn("crmserver: " + message)
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.Send(envelope.EncodeReply(envelope.Reply{Status: status.ErrorInvalid, Payload: []byte(message)}))
}

// handleCall decodes, dispatches, and replies to one call, in its own
// goroutine so concurrent calls on one connection never serialize on CRM
// method execution (spec §4.D concurrency model: one worker per call, no
// lock held across user code).
func (s *Server) handleCall(conn transport.Conn, writeMu *sync.Mutex, frame []byte) {
	defer s.wg.Done()

	call, err := envelope.DecodeCall(frame, s.cfg.MaxPayload)
	if err != nil {
		msg := err.Error()
		se, isStatus := err.(*status.Error)
		if isStatus {
			msg = se.Message
		}
		s.reply(conn, writeMu, status.ErrorInvalid, []byte(msg))
		// spec §6 scenario S6: a call exceeding max_payload gets the
		// connection closed in addition to the ERROR_INVALID reply, since a
		// peer sending an oversized frame can't be trusted to keep framing
		// correctly.
		if isStatus && se.Message == "payload too large" {
			conn.Close()
		}
		return
	}

	plan, ok := s.registry.PlanByID(s.descriptor.Key, call.MethodID)
	if !ok {
		s.reply(conn, writeMu, status.ErrorInvalid, []byte("unknown method_id"))
		return
	}

	args, err := typeregistry.DecodeArgs(plan, call.ArgBlob)
	if err != nil {
		s.reply(conn, writeMu, status.ErrorInvalid, []byte(err.Error()))
		return
	}

	// spec §5: the server-side per-call deadline defaults to none. Only
	// wrap the context in a timeout when an operator has opted into one via
	// CCRPC_SERVER_CALL_DEADLINE_MS.
	ctx := context.Background()
	cancel := func() {}
	if s.cfg.ServerCallDeadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ServerCallDeadline)
	}
	defer cancel()

	reply := s.dispatch(ctx, &middleware.Call{MethodName: plan.Name, Args: args, CallID: uuid.NewString()})
	if reply.Err != nil {
		s.reply(conn, writeMu, classifyError(reply.Err), []byte(reply.Err.Error()))
		return
	}

	payload, err := plan.ReturnCodec.Encode(reply.Result)
	if err != nil {
		s.reply(conn, writeMu, status.ErrorInvalid, []byte("encoding return value: "+err.Error()))
		return
	}
	s.reply(conn, writeMu, status.Success, payload)
}

// invokeCRM is the innermost handler of the dispatch chain: it invokes
// the CRM method bound to call.MethodName. Any registered middleware
// (logging, timeout, rate limiting) wraps this call, never the envelope
// encode/decode around it.
func (s *Server) invokeCRM(ctx context.Context, call *middleware.Call) *middleware.Reply {
	method := s.methods[call.MethodName]
	result, err := method.invoke(ctx, call.Args)
	if err != nil {
		return &middleware.Reply{Err: err}
	}
	return &middleware.Reply{Result: result}
}

func classifyError(err error) status.Code {
	if se, ok := err.(*status.Error); ok {
		return se.Status
	}
	if err == context.DeadlineExceeded {
		return status.ErrorTimeout
	}
	return status.ErrorUnavailable
}

func (s *Server) reply(conn transport.Conn, writeMu *sync.Mutex, code status.Code, payload []byte) {
	if code != status.Success {
		logging.Log.WithFields(logrus.Fields{"crm": s.name, "status": code}).Warn("crmserver: call failed: " + string(payload))
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.Send(envelope.EncodeReply(envelope.Reply{Status: code, Payload: payload})); err != nil {
		logging.Log.WithField("crm", s.name).Debug("crmserver: reply write failed, peer likely gone")
	}
}

// Shutdown transitions RUNNING → STOPPING → STOPPED: stops accepting new
// connections, waits up to timeout for in-flight calls to finish, then
// invokes on_shutdown exactly once regardless of whether the drain
// completed or timed out.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.state.Store(int32(Stopping))
	s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-time.After(timeout):
		drainErr = fmt.Errorf("crmserver: timeout waiting for in-flight calls")
	}

	s.state.Store(int32(Stopped))
	close(s.terminated)
	if s.onShutdown != nil {
		s.onShutdown()
	}
	return drainErr
}

// WaitForTermination blocks until the server reaches STOPPED, or timeout
// elapses (0 waits forever).
func (s *Server) WaitForTermination(timeout time.Duration) bool {
	if timeout <= 0 {
		<-s.terminated
		return true
	}
	select {
	case <-s.terminated:
		return true
	case <-time.After(timeout):
		return false
	}
}
