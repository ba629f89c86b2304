package protocol

import (
	"time"

	"sdr-rpc/codec"
)

// Default timeouts. A read that sees no data for ReadTimeout fails; so does a
// single chunk write that cannot complete within WriteTimeout.
const (
	DefaultReadTimeout  = 20 * time.Second
	DefaultWriteTimeout = 500 * time.Millisecond
)

type options struct {
	codec          codec.Codec
	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxFrameSize   int
	maxBulkSize    int
	writeChunkSize int
}

// Option configures a Conn.
type Option func(*options)

// CodecOption sets the header codec. Both peers must use the same one.
func CodecOption(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// ReadTimeoutOption bounds how long a single read may wait for data.
func ReadTimeoutOption(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WriteTimeoutOption bounds how long a single chunk write may block.
func WriteTimeoutOption(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// MaxFrameSizeOption sets the largest frame (prefix + header) sent or accepted.
// Headers that do not fit are sent as multipart.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) { o.maxFrameSize = size }
}

// MaxBulkSizeOption sets the largest bulk payload this side agrees to receive.
// Larger declarations are refused with a NAK.
func MaxBulkSizeOption(size int) Option {
	return func(o *options) { o.maxBulkSize = size }
}

// WriteChunkSizeOption sets how many bytes each write call of a bulk transfer carries.
func WriteChunkSizeOption(size int) Option {
	return func(o *options) { o.writeChunkSize = size }
}

func buildOptions(opt []Option) options {
	var o options
	for _, fn := range opt {
		fn(&o)
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	if o.readTimeout <= 0 {
		o.readTimeout = DefaultReadTimeout
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = DefaultWriteTimeout
	}
	if o.maxFrameSize <= 0 {
		o.maxFrameSize = DefaultMaxFrameSize
	}
	if o.maxFrameSize < minFrameSize {
		o.maxFrameSize = minFrameSize
	}
	if o.maxBulkSize <= 0 {
		o.maxBulkSize = DefaultMaxBulkSize
	}
	if o.writeChunkSize <= 0 {
		o.writeChunkSize = DefaultWriteChunkSize
	}
	return o
}
