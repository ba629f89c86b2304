package server

import (
	"go.uber.org/zap"

	"sdr-rpc/protocol"
)

type options struct {
	logger       *zap.Logger
	deviceIndex  int
	protocolOpts []protocol.Option
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the server logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDeviceIndex selects which device Serve opens. The default is 0.
func WithDeviceIndex(index int) Option {
	return func(o *options) { o.deviceIndex = index }
}

// WithProtocolOptions configures every accepted connection.
func WithProtocolOptions(opt ...protocol.Option) Option {
	return func(o *options) { o.protocolOpts = append(o.protocolOpts, opt...) }
}

func buildOptions(opt []Option) options {
	var o options
	for _, fn := range opt {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
