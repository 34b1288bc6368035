package transport

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"ccrpc/status"
)

const rpcContentType = "application/octet-stream"

// httpDriver implements the http:// scheme: each call is a single
// POST /rpc, body is the call envelope, response body is the reply
// envelope, per spec §4.C. Routing on the server side uses gorilla/mux
// (a pack-wide dependency — see DESIGN.md), matching how a host service
// would normally mount an RPC endpoint alongside other HTTP routes.
type httpDriver struct{}

func (d *httpDriver) Scheme() string { return "http" }

func (d *httpDriver) Dial(addr string) (Conn, error) {
	return &httpClientConn{baseURL: "http://" + addr + "/rpc", client: &http.Client{}}, nil
}

func (d *httpDriver) Listen(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	l := &httpListener{
		netln:  ln,
		accept: make(chan *httpServerConn, defaultQueueCapacity),
		closed: make(chan struct{}),
	}
	router.HandleFunc("/rpc", l.serveRPC).Methods(http.MethodPost)
	l.server = &http.Server{Handler: router}
	go l.server.Serve(ln)
	return l, nil
}

// httpClientConn performs the whole request/response inside Send, since
// HTTP/1.1 has no concept of a half-open call; Recv just hands back what
// Send already received.
type httpClientConn struct {
	baseURL  string
	client   *http.Client
	mu       sync.Mutex
	pending  []byte
	pendErr  error
}

func (c *httpClientConn) Send(frame []byte) error {
	resp, err := c.client.Post(c.baseURL, rpcContentType, bytes.NewReader(frame))
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.pendErr = err
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.pendErr = err
		return err
	}
	if resp.StatusCode != http.StatusOK {
		c.pendErr = status.New(status.ErrorUnavailable, c.baseURL, "", fmt.Sprintf("http status %d", resp.StatusCode))
		return c.pendErr
	}
	c.pending = body
	return nil
}

func (c *httpClientConn) Recv() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendErr != nil {
		return nil, c.pendErr
	}
	if c.pending == nil {
		return nil, fmt.Errorf("transport: http recv called before send")
	}
	frame := c.pending
	c.pending = nil
	return frame, nil
}

func (c *httpClientConn) Close() error { return nil }

func (c *httpClientConn) RemoteAddr() string { return c.baseURL }

// httpServerConn represents exactly one POST /rpc request/response cycle,
// so Recv only ever yields one frame before the server worker observes the
// conn "close" the way spec §4.D describes for any transport.
type httpServerConn struct {
	remote   string
	reqFrame []byte
	recvOnce sync.Once
	respCh   chan []byte
	doneOnce sync.Once
}

func (c *httpServerConn) Recv() ([]byte, error) {
	var frame []byte
	got := false
	c.recvOnce.Do(func() { frame = c.reqFrame; got = true })
	if got {
		return frame, nil
	}
	return nil, io.EOF
}

func (c *httpServerConn) Send(frame []byte) error {
	c.doneOnce.Do(func() { c.respCh <- frame })
	return nil
}

func (c *httpServerConn) Close() error {
	c.doneOnce.Do(func() { close(c.respCh) })
	return nil
}

func (c *httpServerConn) RemoteAddr() string { return c.remote }

type httpListener struct {
	netln  net.Listener
	server *http.Server
	accept chan *httpServerConn
	closed chan struct{}
	once   sync.Once
}

func (l *httpListener) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	conn := &httpServerConn{remote: r.RemoteAddr, reqFrame: body, respCh: make(chan []byte, 1)}
	select {
	case l.accept <- conn:
	case <-l.closed:
		http.Error(w, "server stopped", http.StatusServiceUnavailable)
		return
	}
	reply, ok := <-conn.respCh
	if !ok {
		http.Error(w, "no reply", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", rpcContentType)
	w.Write(reply)
}

func (l *httpListener) Accept() (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.closed:
		return nil, fmt.Errorf("transport: http listener closed")
	}
}

func (l *httpListener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.server.Close()
	})
	return nil
}

func (l *httpListener) Addr() string {
	return "http://" + l.netln.Addr().String()
}
