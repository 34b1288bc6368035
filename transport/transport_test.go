package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T, l Listener) {
	t.Helper()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c Conn) {
				defer c.Close()
				for {
					frame, err := c.Recv()
					if err != nil {
						return
					}
					if err := c.Send(frame); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

func TestThreadTransportEcho(t *testing.T) {
	l, err := Listen("thread://test-echo")
	require.NoError(t, err)
	defer l.Close()
	echoServer(t, l)

	conn, err := Dial("thread://test-echo")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte("hello")))
	got, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestMemoryTransportEcho(t *testing.T) {
	l, err := Listen("memory://test-echo")
	require.NoError(t, err)
	defer l.Close()
	echoServer(t, l)

	conn, err := Dial("memory://test-echo")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte("big payload")))
	got, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("big payload"), got)
}

func TestTCPTransportEcho(t *testing.T) {
	l, err := Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	echoServer(t, l)

	conn, err := Dial("tcp://" + l.(*netListener).listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte("hello tcp")))
	got, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("hello tcp"), got)
}

func TestHTTPTransportEcho(t *testing.T) {
	l, err := Listen("http://127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	echoServer(t, l)

	conn, err := Dial("http://" + l.(*httpListener).netln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte("hello http")))
	got, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("hello http"), got)
}

func TestUnknownSchemeRejected(t *testing.T) {
	_, err := Dial("ftp://example.com")
	require.Error(t, err)
}
