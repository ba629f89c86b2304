package stream

import (
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity is how many buffers wait for the consumer before new ones are dropped.
const DefaultCapacity = 20

type options struct {
	capacity    int
	logger      *zap.Logger
	maxBuffers  int64
	maxDuration time.Duration
}

// Option configures a Bridge.
type Option func(*options)

// WithCapacity sets the queue capacity. Values below 1 keep the default.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithLogger sets the bridge logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxBuffers cancels acquisition after n buffers have been produced,
// counting dropped ones. Buffers already queued are still delivered.
func WithMaxBuffers(n int64) Option {
	return func(o *options) { o.maxBuffers = n }
}

// WithMaxDuration cancels acquisition d after Start. Buffers already queued
// are still delivered.
func WithMaxDuration(d time.Duration) Option {
	return func(o *options) { o.maxDuration = d }
}

func buildOptions(opt []Option) options {
	o := options{capacity: DefaultCapacity}
	for _, fn := range opt {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
