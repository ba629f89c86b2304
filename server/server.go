// Package server exposes one device handle to remote clients.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection, half-duplex)
//	  → Conn.Receive → Middleware Chain → dispatch (registry lookup, coercion, device call) → Conn.Send
//
// The server holds the device and the registry side by side; it does not
// extend the device. Only one client is expected to drive a device at a time.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sdr-rpc/device"
	"sdr-rpc/message"
	"sdr-rpc/middleware"
	"sdr-rpc/protocol"
	"sdr-rpc/registry"
)

// ErrNotListening is returned by Serve when Listen has not been called.
var ErrNotListening = errors.New("server: not listening")

// Server serves whitelisted device operations over TCP.
type Server struct {
	dev   device.Device
	devMu sync.Mutex // One device call at a time, across all connections
	reg   *registry.Registry
	opts  options
	log   *zap.Logger

	mu       sync.Mutex // Guards listener, and orders shutdown against request registration
	listener net.Listener

	middlewares []middleware.Middleware // Applied in the order added
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	wg       sync.WaitGroup // In-flight requests, for graceful shutdown
	connWg   sync.WaitGroup // Live connection goroutines
	conns    sync.Map       // connection ID → *protocol.Conn
	shutdown atomic.Bool    // Set before the listener is closed to silence Accept errors
}

// NewServer creates a server for dev that only allows what reg whitelists.
func NewServer(dev device.Device, reg *registry.Registry, opt ...Option) *Server {
	o := buildOptions(opt)
	return &Server{dev: dev, reg: reg, opts: o, log: o.logger}
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Listen binds the listening socket. Use port 0 to pick a free port and read
// it back with Addr.
func (svr *Server) Listen(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrapf(err, "listen %s %s", network, address)
	}
	svr.mu.Lock()
	svr.listener = l
	svr.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// ListenAndServe is Listen followed by Serve.
func (svr *Server) ListenAndServe(ctx context.Context, network, address string) error {
	if err := svr.Listen(network, address); err != nil {
		return err
	}
	return svr.Serve(ctx)
}

// Serve opens the device, accepts connections until Shutdown or Close, waits
// for the connection goroutines to finish and closes the device.
// It returns nil after an intentional shutdown.
func (svr *Server) Serve(ctx context.Context) error {
	svr.mu.Lock()
	listener := svr.listener
	svr.mu.Unlock()
	if listener == nil {
		return ErrNotListening
	}

	if err := svr.dev.Open(svr.opts.deviceIndex); err != nil {
		listener.Close()
		return errors.Wrapf(err, "open device %d", svr.opts.deviceIndex)
	}
	defer func() {
		if err := svr.dev.Close(); err != nil {
			svr.log.Warn("device close failed", zap.Error(err))
		}
		svr.log.Info("device released", zap.Int("index", svr.opts.deviceIndex))
	}()

	// Built once; recovery sits innermost so a panicking invoker still
	// produces a response for the outer middlewares to see.
	svr.handler = middleware.Chain(svr.middlewares...)(middleware.RecoveryMiddleware(svr.log)(svr.dispatch))

	svr.log.Info("serving",
		zap.Stringer("addr", listener.Addr()),
		zap.Int("device", svr.opts.deviceIndex))

	for {
		raw, err := listener.Accept()
		if err != nil {
			svr.connWg.Wait()
			if svr.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		svr.connWg.Add(1)
		go svr.handleConn(ctx, raw)
	}
}

// handleConn serves requests on one connection until the peer hangs up, a
// transport or protocol error occurs, or the server closes the connection.
func (svr *Server) handleConn(ctx context.Context, raw net.Conn) {
	defer svr.connWg.Done()

	id := uuid.NewString()
	conn := protocol.NewConn(raw, svr.opts.protocolOpts...)
	svr.conns.Store(id, conn)
	defer func() {
		svr.conns.Delete(id)
		conn.Close()
	}()
	if svr.shutdown.Load() {
		return
	}

	log := svr.log.With(zap.String("conn", id), zap.Stringer("remote", raw.RemoteAddr()))
	log.Debug("connection accepted")

	for {
		req, err := conn.Receive()
		if err != nil {
			svr.receiveFailed(log, conn, err)
			return
		}
		if !req.Kind.IsRequest() {
			log.Warn("unexpected message kind", zap.String("kind", string(req.Kind)))
			_ = conn.Send(message.NewNAK(message.CodeProtocolError, "unexpected kind "+string(req.Kind)))
			return
		}
		if !svr.beginRequest() {
			return
		}
		resp := svr.handler(ctx, req)
		err = conn.Send(resp)
		svr.wg.Done()
		if err != nil {
			log.Warn("send response failed", zap.String("name", req.Name), zap.Error(err))
			return
		}
	}
}

// beginRequest registers an in-flight request unless shutdown has begun.
// The flag is checked and the WaitGroup incremented under svr.mu, the same
// lock Shutdown holds while setting the flag, so no Add races its Wait.
func (svr *Server) beginRequest() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

func (svr *Server) receiveFailed(log *zap.Logger, conn *protocol.Conn, err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by peer")
	case svr.shutdown.Load():
		log.Debug("connection closed by shutdown")
	case protocol.IsProtocol(err):
		log.Warn("protocol error", zap.Error(err))
		if !protocol.PeerNotified(err) {
			_ = conn.Send(message.NewNAK(message.CodeProtocolError, err.Error()))
		}
	default:
		log.Debug("connection lost", zap.Error(err))
	}
}

// dispatch resolves a request against the registry and runs it on the device.
// It is the innermost handler of the middleware chain.
func (svr *Server) dispatch(ctx context.Context, req *message.Message) *message.Message {
	switch req.Kind {
	case message.KindMethodCall:
		m, err := svr.reg.Method(req.Name)
		if err != nil {
			return message.NewNAK(message.CodePermissionDenied, err.Error())
		}
		return svr.invoke(m, req.Data)

	case message.KindPropertyGet:
		getter, _, err := svr.reg.ResolveProperty(req.Name)
		if err != nil {
			return message.NewNAK(message.CodePermissionDenied, err.Error())
		}
		return svr.invoke(getter, nil)

	case message.KindPropertySet:
		_, setter, err := svr.reg.ResolveProperty(req.Name)
		if err != nil {
			return message.NewNAK(message.CodePermissionDenied, err.Error())
		}
		resp := svr.invoke(setter, req.Data)
		if resp.Succeeded() {
			return message.NewACK()
		}
		return resp
	}
	return message.NewNAK(message.CodeProtocolError, "unexpected kind "+string(req.Kind))
}

func (svr *Server) invoke(m *registry.Method, raw json.RawMessage) *message.Message {
	arg, err := m.Coerce(raw)
	if err != nil {
		return message.NewNAK(message.CodeInvalidArgument, err.Error())
	}

	svr.devMu.Lock()
	result, err := m.Invoke(svr.dev, arg)
	svr.devMu.Unlock()
	if err != nil {
		resp := message.NewFailure(message.CodeDeviceError, err.Error())
		resp.Transient = device.IsTransient(err)
		return resp
	}

	switch m.Result {
	case registry.ResultNone:
		return message.NewResponse(nil)
	case registry.ResultBulk:
		b, ok := result.([]byte)
		if !ok {
			return message.NewFailure(message.CodeInternal, m.Name+": bulk result is not bytes")
		}
		return message.NewBulkResponse(b)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return message.NewFailure(message.CodeInternal, errors.Wrapf(err, "%s: encode result", m.Name).Error())
	}
	return message.NewResponse(data)
}

// Shutdown performs graceful shutdown:
//  1. Set shutdown flag (so Accept error is recognized as intentional)
//  2. Close the listener (stop accepting new connections)
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining connections, which lets Serve release the device
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	svr.shutdown.Store(true)
	svr.mu.Unlock()
	svr.closeListener()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("timeout waiting for ongoing requests to finish")
	}
	svr.closeConns()
	return err
}

// Close stops the server immediately. Clients with a call in flight see
// their connection drop.
func (svr *Server) Close() error {
	svr.mu.Lock()
	svr.shutdown.Store(true)
	svr.mu.Unlock()
	err := svr.closeListener()
	svr.closeConns()
	return err
}

func (svr *Server) closeListener() error {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	err := svr.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (svr *Server) closeConns() {
	svr.conns.Range(func(key, value any) bool {
		value.(*protocol.Conn).Close()
		return true
	})
}
