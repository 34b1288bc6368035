package transport

import "net"

// tcpDriver implements the tcp:// scheme: a plain TCP stream with the
// 4-byte length framing in framing.go. Direct generalization of the
// teacher's server.Serve("tcp", ...) / net.Dial("tcp", ...) pairing.
type tcpDriver struct{}

func (d *tcpDriver) Scheme() string { return "tcp" }

func (d *tcpDriver) Dial(addr string) (Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newNetConn(c), nil
}

func (d *tcpDriver) Listen(addr string) (Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netListener{listener: l, scheme: "tcp"}, nil
}
