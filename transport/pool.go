package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("connection pool closed")

// DefaultIdleTimeout is kept below the server's read timeout so a pooled
// connection is dropped before the server gives up on it.
const DefaultIdleTimeout = 15 * time.Second

// ConnPool keeps idle transports to a single server for reuse.
//
// Connections are created lazily and used exclusively: Get hands a transport
// to one caller, Put gives it back. Broken or stale transports are closed
// instead of being pooled.
type ConnPool struct {
	mu          sync.Mutex
	idle        []*ClientTransport // LIFO, most recently used last
	maxIdle     int
	idleTimeout time.Duration
	closed      bool
	factory     func(ctx context.Context) (*ClientTransport, error)
}

// NewConnPool creates a pool that keeps at most maxIdle transports.
func NewConnPool(maxIdle int, idleTimeout time.Duration, factory func(ctx context.Context) (*ClientTransport, error)) *ConnPool {
	if maxIdle <= 0 {
		maxIdle = 1
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &ConnPool{maxIdle: maxIdle, idleTimeout: idleTimeout, factory: factory}
}

// Get returns an idle transport, or dials a new one if none is usable.
func (p *ConnPool) Get(ctx context.Context) (*ClientTransport, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	for len(p.idle) > 0 {
		t := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if t.Broken() || time.Since(t.IdleSince()) > p.idleTimeout {
			t.Close()
			continue
		}
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()
	return p.factory(ctx)
}

// Put returns a transport to the pool. Broken transports and those beyond
// maxIdle are closed.
func (p *ConnPool) Put(t *ClientTransport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || t.Broken() || len(p.idle) >= p.maxIdle {
		t.Close()
		return
	}
	p.idle = append(p.idle, t)
}

// Idle returns the number of pooled transports.
func (p *ConnPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close closes every idle transport. Transports currently checked out are
// closed when they are Put back.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, t := range p.idle {
		t.Close()
	}
	p.idle = nil
	return nil
}
