// Package transport implements the client side of a connection.
//
// The protocol is half-duplex: a connection carries one exchange at a time,
// request then response, so there is no sequence numbering. ClientTransport
// serializes exchanges on one socket; ConnPool keeps idle transports for
// reuse when the client runs in keep-alive mode.
//
//	goroutine-1 ──RoundTrip──┐            ┌── socket A ──→ Server
//	goroutine-2 ──RoundTrip──┼── ConnPool ┤
//	goroutine-3 ──RoundTrip──┘            └── socket B ──→ Server
package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"sdr-rpc/message"
	"sdr-rpc/protocol"
)

// ErrBroken is wrapped by the TransportError returned when a transport that
// already failed is used again.
var ErrBroken = errors.New("connection previously failed")

// ClientTransport owns one connection to the server.
type ClientTransport struct {
	conn     *protocol.Conn
	mu       sync.Mutex  // One exchange at a time
	broken   atomic.Bool // Set after any failed exchange; the stream position is unknown
	lastUsed atomic.Int64
}

// Dial connects to addr within timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration, opt ...protocol.Option) (*ClientTransport, error) {
	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &protocol.TransportError{Op: "dial", Err: err}
	}
	return NewClientTransport(raw, opt...), nil
}

// NewClientTransport wraps an established connection.
func NewClientTransport(raw net.Conn, opt ...protocol.Option) *ClientTransport {
	t := &ClientTransport{conn: protocol.NewConn(raw, opt...)}
	t.lastUsed.Store(time.Now().UnixNano())
	return t
}

// RoundTrip sends req and waits for its response.
//
// Cancelling ctx closes the connection, which aborts a blocked read or
// write. After any error the transport is broken and must be discarded.
func (t *ClientTransport) RoundTrip(ctx context.Context, req *message.Message) (*message.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.broken.Load() {
		return nil, &protocol.TransportError{Op: "call", Err: ErrBroken}
	}
	if err := ctx.Err(); err != nil {
		return nil, &protocol.TransportError{Op: "call", Err: err}
	}

	stop := context.AfterFunc(ctx, func() { t.conn.Close() })
	resp, err := t.exchange(req)
	stop()

	if err != nil {
		t.broken.Store(true)
		t.conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &protocol.TransportError{Op: "call", Err: errors.WithMessage(ctxErr, err.Error())}
		}
		return nil, err
	}
	t.lastUsed.Store(time.Now().UnixNano())
	return resp, nil
}

func (t *ClientTransport) exchange(req *message.Message) (*message.Message, error) {
	if err := t.conn.Send(req); err != nil {
		return nil, err
	}
	return t.conn.Receive()
}

// Broken reports whether a previous exchange failed.
func (t *ClientTransport) Broken() bool { return t.broken.Load() }

// IdleSince returns when the last exchange completed.
func (t *ClientTransport) IdleSince() time.Time {
	return time.Unix(0, t.lastUsed.Load())
}

// RemoteAddr returns the server address.
func (t *ClientTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// Close closes the connection.
func (t *ClientTransport) Close() error {
	t.broken.Store(true)
	return t.conn.Close()
}
