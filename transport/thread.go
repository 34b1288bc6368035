package transport

import (
	"fmt"
	"sync"

	"ccrpc/status"
)

// threadDriver implements the thread:// scheme: a process-wide registry
// mapping address names to a listener's accept queue. Connecting enqueues a
// freshly paired connection for the listener to Accept, then both sides
// exchange frames over a bounded channel pair. thread:// addresses are not
// inherited across a fork (spec §9) because this table lives in one
// process's memory.
type threadDriver struct {
	mu        sync.Mutex
	listeners map[string]*threadListener
}

func newThreadDriver() *threadDriver {
	return &threadDriver{listeners: make(map[string]*threadListener)}
}

func (d *threadDriver) Scheme() string { return "thread" }

func (d *threadDriver) Listen(addr string) (Listener, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.listeners[addr]; exists {
		return nil, status.Invalid("thread://"+addr, "", "address already bound")
	}
	l := &threadListener{
		driver: d,
		addr:   addr,
		accept: make(chan *pipeConn, defaultQueueCapacity),
		closed: make(chan struct{}),
	}
	d.listeners[addr] = l
	return l, nil
}

func (d *threadDriver) Dial(addr string) (Conn, error) {
	d.mu.Lock()
	l, ok := d.listeners[addr]
	d.mu.Unlock()
	if !ok {
		return nil, status.New(status.ErrorUnavailable, "thread://"+addr, "", "no listener at address")
	}
	client, server := newPipe("thread://"+addr, newChanQueue(defaultQueueCapacity), newChanQueue(defaultQueueCapacity))
	select {
	case l.accept <- server:
		return client, nil
	case <-l.closed:
		return nil, status.New(status.ErrorUnavailable, "thread://"+addr, "", "listener stopped")
	}
}

func (d *threadDriver) unregister(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, addr)
}

type threadListener struct {
	driver *threadDriver
	addr   string
	accept chan *pipeConn
	closed chan struct{}
	once   sync.Once
}

func (l *threadListener) Accept() (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.closed:
		return nil, fmt.Errorf("transport: thread listener %q closed", l.addr)
	}
}

func (l *threadListener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.driver.unregister(l.addr)
	})
	return nil
}

func (l *threadListener) Addr() string { return "thread://" + l.addr }
