// Package transport implements the five interchangeable request/response
// channels of spec §4.C: thread, memory, ipc, tcp, and http. Every driver
// presents the same contract — Dial/Listen/Accept/Send/Recv/Close — so the
// server core and client proxy never need to know which one is in play.
// Selection is by URI scheme; any other scheme fails ERROR_INVALID.
//
// Grounded in the teacher's TCP-only server.Serve/net.Dial pairing and its
// protocol-level length framing, generalized to a pluggable Driver and
// extended with four more transports the teacher never had.
package transport

import (
	"fmt"
	"net/url"

	"ccrpc/status"
)

// Conn is one established request/response channel. Recv always returns
// exactly one complete frame, matching whatever Send wrote on the peer
// side — framing is the driver's responsibility, not the caller's.
type Conn interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
	// RemoteAddr is used only for error messages and logging.
	RemoteAddr() string
}

// Listener accepts incoming connections on a bound address.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
}

// Driver is one transport implementation, selected by URI scheme.
type Driver interface {
	Scheme() string
	Dial(addr string) (Conn, error)
	Listen(addr string) (Listener, error)
}

var drivers = map[string]Driver{}

func register(d Driver) {
	drivers[d.Scheme()] = d
}

func init() {
	register(newThreadDriver())
	register(newMemoryDriver())
	register(&ipcDriver{})
	register(&tcpDriver{})
	register(&httpDriver{})
}

// Dial connects to addr, an URI whose scheme selects the driver.
func Dial(addr string) (Conn, error) {
	scheme, rest, err := split(addr)
	if err != nil {
		return nil, err
	}
	d, ok := drivers[scheme]
	if !ok {
		return nil, status.Invalid(addr, "", fmt.Sprintf("unknown transport scheme %q", scheme))
	}
	return d.Dial(rest)
}

// Listen binds addr, an URI whose scheme selects the driver.
func Listen(addr string) (Listener, error) {
	scheme, rest, err := split(addr)
	if err != nil {
		return nil, err
	}
	d, ok := drivers[scheme]
	if !ok {
		return nil, status.Invalid(addr, "", fmt.Sprintf("unknown transport scheme %q", scheme))
	}
	return d.Listen(rest)
}

// Scheme returns addr's URI scheme — the same parse Dial and Listen use to
// pick a driver — without resolving or dialing anything. Callers that need
// to branch on transport speed (e.g. config's client-call-deadline choice
// between in-process and out-of-process transports) use this instead of
// duplicating the URI parsing here.
func Scheme(addr string) (string, error) {
	scheme, _, err := split(addr)
	return scheme, err
}

// split parses "scheme://rest" and returns the scheme plus the
// scheme-specific remainder (host:port, a path, or an opaque name).
func split(addr string) (scheme, rest string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", status.Invalid(addr, "", "malformed address: "+err.Error())
	}
	if u.Scheme == "" {
		return "", "", status.Invalid(addr, "", "address missing a scheme")
	}
	switch u.Scheme {
	case "thread", "memory":
		if u.Host != "" {
			return u.Scheme, u.Host, nil
		}
		return u.Scheme, u.Opaque, nil
	case "ipc":
		if u.Path != "" {
			return u.Scheme, u.Path, nil
		}
		return u.Scheme, u.Opaque, nil
	case "tcp", "http":
		return u.Scheme, u.Host, nil
	default:
		return u.Scheme, "", nil
	}
}
