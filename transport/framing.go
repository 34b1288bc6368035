package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// netConn adapts a net.Conn (TCP or a Unix domain socket) to the Conn
// contract using the 4-byte big-endian length prefix spec §4.C specifies
// for both tcp:// and ipc://. Grounded in the teacher's protocol package:
// same io.ReadFull-guarantees-exactly-N-bytes technique, same per-connection
// write mutex to keep concurrent senders from interleaving frames.
type netConn struct {
	conn   net.Conn
	wmu    sync.Mutex
	closed sync.Once
}

func newNetConn(c net.Conn) *netConn {
	return &netConn{conn: c}
}

func (c *netConn) Send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(frame)
	return err
}

func (c *netConn) Recv() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(c.conn, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *netConn) Close() error {
	var err error
	c.closed.Do(func() { err = c.conn.Close() })
	return err
}

func (c *netConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// netListener adapts a net.Listener.
type netListener struct {
	listener net.Listener
	scheme   string
}

func (l *netListener) Accept() (Conn, error) {
	c, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	return newNetConn(c), nil
}

func (l *netListener) Close() error { return l.listener.Close() }

func (l *netListener) Addr() string {
	return fmt.Sprintf("%s://%s", l.scheme, l.listener.Addr().String())
}
