package client

import (
	"time"

	"go.uber.org/zap"

	"sdr-rpc/protocol"
	"sdr-rpc/transport"
)

// DefaultAddr is where sdrserver listens unless told otherwise.
const DefaultAddr = "127.0.0.1:1235"

type options struct {
	logger       *zap.Logger
	keepAlive    bool
	maxIdle      int
	idleTimeout  time.Duration
	dialTimeout  time.Duration
	protocolOpts []protocol.Option
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the client logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithKeepAlive reuses connections between calls instead of opening one per
// call. Up to maxIdle connections are kept.
func WithKeepAlive(maxIdle int) Option {
	return func(o *options) {
		o.keepAlive = true
		o.maxIdle = maxIdle
	}
}

// WithIdleTimeout drops kept-alive connections idle for longer than d.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithDialTimeout bounds connection setup. The default is 5s.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithReadTimeout bounds how long any single read may wait for the server.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.protocolOpts = append(o.protocolOpts, protocol.ReadTimeoutOption(d)) }
}

// WithProtocolOptions passes options through to every connection.
func WithProtocolOptions(opt ...protocol.Option) Option {
	return func(o *options) { o.protocolOpts = append(o.protocolOpts, opt...) }
}

func buildOptions(opt []Option) options {
	o := options{
		dialTimeout: 5 * time.Second,
		idleTimeout: transport.DefaultIdleTimeout,
	}
	for _, fn := range opt {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
