package transport

import (
	"net"
	"os"
)

// ipcDriver implements the ipc:// scheme: a host-local Unix domain socket
// at the filesystem path embedded in the URI, using the same 4-byte length
// framing as tcp://.
type ipcDriver struct{}

func (d *ipcDriver) Scheme() string { return "ipc" }

func (d *ipcDriver) Dial(addr string) (Conn, error) {
	c, err := net.Dial("unix", addr)
	if err != nil {
		return nil, err
	}
	return newNetConn(c), nil
}

func (d *ipcDriver) Listen(addr string) (Listener, error) {
	// A stale socket file from a previous run that wasn't cleaned up on
	// shutdown would otherwise make bind fail with "address in use".
	_ = os.Remove(addr)
	l, err := net.Listen("unix", addr)
	if err != nil {
		return nil, err
	}
	return &ipcListener{netListener{listener: l, scheme: "ipc"}, addr}, nil
}

type ipcListener struct {
	netListener
	path string
}

func (l *ipcListener) Close() error {
	err := l.netListener.Close()
	_ = os.Remove(l.path)
	return err
}
