// Package client calls a remote sdrserver.
//
// Each call is one half-duplex exchange. By default a fresh connection is
// dialled for every call and closed afterwards; WithKeepAlive pools them.
// Failures to reach the server are protocol.TransportError; failures the
// server reports are *RemoteCallError.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sdr-rpc/device"
	"sdr-rpc/message"
	"sdr-rpc/protocol"
	"sdr-rpc/transport"
)

// Client issues calls against one server.
type Client struct {
	addr string
	opts options
	log  *zap.Logger
	pool *transport.ConnPool // nil unless keep-alive
}

// NewClient returns a client for addr. No connection is made until the first call.
func NewClient(addr string, opt ...Option) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	o := buildOptions(opt)
	c := &Client{addr: addr, opts: o, log: o.logger.With(zap.String("server", addr))}
	if o.keepAlive {
		c.pool = transport.NewConnPool(o.maxIdle, o.idleTimeout, c.dial)
	}
	return c
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// Close releases kept-alive connections.
func (c *Client) Close() error {
	if c.pool != nil {
		return c.pool.Close()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*transport.ClientTransport, error) {
	t, err := transport.Dial(ctx, c.addr, c.opts.dialTimeout, c.opts.protocolOpts...)
	if err != nil {
		return nil, err
	}
	c.log.Debug("connected")
	return t, nil
}

// CallMethod invokes a whitelisted method. arg is JSON-encoded; nil sends no
// argument. reply receives the result: a *[]byte for bulk results, any JSON
// target otherwise, or nil to discard it.
func (c *Client) CallMethod(ctx context.Context, name string, arg any, reply any) error {
	return c.exchange(ctx, message.KindMethodCall, name, arg, reply)
}

// GetProperty reads a whitelisted property into reply.
func (c *Client) GetProperty(ctx context.Context, name string, reply any) error {
	return c.exchange(ctx, message.KindPropertyGet, name, nil, reply)
}

// SetProperty writes a whitelisted property.
func (c *Client) SetProperty(ctx context.Context, name string, value any) error {
	return c.exchange(ctx, message.KindPropertySet, name, value, nil)
}

// ReadBytes reads n raw bytes from the remote tuner.
func (c *Client) ReadBytes(ctx context.Context, n int) ([]byte, error) {
	var b []byte
	if err := c.CallMethod(ctx, "read_bytes", n, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadSamples reads n complex samples. The server sends packed bytes; they
// are converted here.
func (c *Client) ReadSamples(ctx context.Context, n int) ([]complex128, error) {
	var b []byte
	if err := c.CallMethod(ctx, "read_samples", n, &b); err != nil {
		return nil, err
	}
	if len(b) != 2*n {
		return nil, &protocol.ProtocolError{Reason: fmt.Sprintf("read_samples: got %d bytes for %d samples", len(b), n)}
	}
	return device.PackedBytesToIQ(b), nil
}

// ReadBytesAsync is not available over the network.
func (c *Client) ReadBytesAsync(func([]byte), int) error { return ErrUnsupportedOperation }

// ReadSamplesAsync is not available over the network.
func (c *Client) ReadSamplesAsync(func([]complex128), int) error { return ErrUnsupportedOperation }

func (c *Client) exchange(ctx context.Context, kind message.Kind, name string, arg any, reply any) error {
	var data json.RawMessage
	if arg != nil {
		b, err := json.Marshal(arg)
		if err != nil {
			return errors.Wrapf(err, "%s: encode argument", name)
		}
		data = b
	}

	start := time.Now()
	resp, err := c.roundTrip(ctx, message.New(kind, name, data))
	if err != nil {
		c.log.Debug("call failed", zap.String("name", name), zap.Error(err))
		return err
	}
	c.log.Debug("call done",
		zap.String("kind", string(kind)),
		zap.String("name", name),
		zap.Duration("duration", time.Since(start)))

	switch resp.Kind {
	case message.KindResponse, message.KindACK, message.KindNAK:
	default:
		return &protocol.ProtocolError{Reason: fmt.Sprintf("%s: unexpected reply kind %s", name, resp.Kind)}
	}
	if !resp.Succeeded() {
		return newRemoteCallError(name, resp)
	}
	return decodeReply(name, resp, reply)
}

func (c *Client) roundTrip(ctx context.Context, req *message.Message) (*message.Message, error) {
	if c.pool == nil {
		t, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		defer t.Close()
		return t.RoundTrip(ctx, req)
	}

	t, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(t)
	return t.RoundTrip(ctx, req)
}

func decodeReply(name string, resp *message.Message, reply any) error {
	if resp.Bulk != nil {
		switch r := reply.(type) {
		case nil:
			return nil
		case *[]byte:
			*r = resp.Bulk
			return nil
		}
		return errors.Errorf("%s: bulk result needs a *[]byte reply, got %T", name, reply)
	}
	if reply == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, reply); err != nil {
		return &protocol.ProtocolError{Reason: name + ": decode result", Err: err}
	}
	return nil
}
