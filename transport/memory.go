package transport

import (
	"fmt"
	"sync"

	"ccrpc/status"
)

// memoryDriver implements the memory:// scheme: like thread, a process-wide
// named-endpoint table, but frames travel over a ringQueue instead of a
// channel — a shared ring buffer per connection, matching spec §4.C's
// "copy-free transfer of large payloads within the same address space."
// memory:// is inherited by a forked child only if it reopens the same
// name (spec §9); this table is still process-local.
type memoryDriver struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
}

func newMemoryDriver() *memoryDriver {
	return &memoryDriver{listeners: make(map[string]*memoryListener)}
}

func (d *memoryDriver) Scheme() string { return "memory" }

func (d *memoryDriver) Listen(addr string) (Listener, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.listeners[addr]; exists {
		return nil, status.Invalid("memory://"+addr, "", "address already bound")
	}
	l := &memoryListener{
		driver: d,
		addr:   addr,
		accept: make(chan *pipeConn, defaultQueueCapacity),
		closed: make(chan struct{}),
	}
	d.listeners[addr] = l
	return l, nil
}

func (d *memoryDriver) Dial(addr string) (Conn, error) {
	d.mu.Lock()
	l, ok := d.listeners[addr]
	d.mu.Unlock()
	if !ok {
		return nil, status.New(status.ErrorUnavailable, "memory://"+addr, "", "no listener at address")
	}
	client, server := newPipe("memory://"+addr, newRingQueue(defaultQueueCapacity), newRingQueue(defaultQueueCapacity))
	select {
	case l.accept <- server:
		return client, nil
	case <-l.closed:
		return nil, status.New(status.ErrorUnavailable, "memory://"+addr, "", "listener stopped")
	}
}

func (d *memoryDriver) unregister(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, addr)
}

type memoryListener struct {
	driver *memoryDriver
	addr   string
	accept chan *pipeConn
	closed chan struct{}
	once   sync.Once
}

func (l *memoryListener) Accept() (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.closed:
		return nil, fmt.Errorf("transport: memory listener %q closed", l.addr)
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.driver.unregister(l.addr)
	})
	return nil
}

func (l *memoryListener) Addr() string { return "memory://" + l.addr }
