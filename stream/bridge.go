// Package stream turns a blocking, callback-driven acquisition loop into a
// sequence a single consumer pulls from at its own pace.
//
//	producer goroutine ──emit──▶ [ bounded queue ] ──Next──▶ consumer
//	                      full? drop, never block
//
// The producer is hardware-paced and must never stall, so a full queue drops
// the newest buffer instead of blocking. Stop discards whatever is still
// queued, so the consumer sees end-of-stream next.
package stream

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyStarted is returned by Start on a bridge that is not idle.
	ErrAlreadyStarted = errors.New("stream: already started")
	// ErrNotRunning is returned by Stop and Next on a bridge that is not running.
	ErrNotRunning = errors.New("stream: not running")
)

// State is the lifecycle position of a Bridge.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// ProduceFunc blocks, calling emit once per buffer, until its stop function
// makes it return. emit never blocks.
type ProduceFunc[T any] func(emit func(T)) error

// item is a queued buffer, or the end-of-stream marker.
type item[T any] struct {
	v   T
	end bool
}

// Bridge runs one acquisition session. It is single-use: once stopped it
// cannot be started again.
type Bridge[T any] struct {
	id       string
	log      *zap.Logger
	capacity int
	produce  ProduceFunc[T]
	stop     func() error
	stopOnce sync.Once
	stopErr  error

	maxBuffers  int64
	maxDuration time.Duration

	mu        sync.Mutex
	state     State
	queue     chan item[T] // capacity+1; one slot is kept for the end marker
	endQueued bool
	limited   bool // a buffer or time limit cancelled acquisition
	emitted   int64
	timer     *time.Timer
	ended     bool // consumer has seen the end marker
	g         errgroup.Group
	stopped   chan struct{}
	err       error

	dropped   atomic.Int64
	discarded atomic.Int64
	delivered atomic.Int64
}

// New returns an idle bridge around produce. stop must make produce return.
func New[T any](produce ProduceFunc[T], stop func() error, opt ...Option) *Bridge[T] {
	o := buildOptions(opt)
	id := uuid.NewString()
	return &Bridge[T]{
		id:       id,
		log:      o.logger.With(zap.String("session", id)),
		capacity:    o.capacity,
		produce:     produce,
		stop:        stop,
		maxBuffers:  o.maxBuffers,
		maxDuration: o.maxDuration,
		stopped:     make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (b *Bridge[T]) ID() string { return b.id }

// State returns the current lifecycle state.
func (b *Bridge[T]) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Dropped returns how many buffers were dropped because the queue was full.
func (b *Bridge[T]) Dropped() int64 { return b.dropped.Load() }

// Discarded returns how many queued buffers Stop threw away.
func (b *Bridge[T]) Discarded() int64 { return b.discarded.Load() }

// Delivered returns how many buffers the consumer received.
func (b *Bridge[T]) Delivered() int64 { return b.delivered.Load() }

// Start runs the producer on its own goroutine.
func (b *Bridge[T]) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateIdle {
		return ErrAlreadyStarted
	}
	b.state = StateStarting
	b.queue = make(chan item[T], b.capacity+1)

	b.g.Go(func() error {
		err := b.produce(b.emit)
		b.producerExited(err)
		return err
	})

	b.state = StateRunning
	if b.maxDuration > 0 {
		b.timer = time.AfterFunc(b.maxDuration, b.durationElapsed)
	}
	b.log.Info("stream started", zap.Int("capacity", b.capacity))
	return nil
}

func (b *Bridge[T]) durationElapsed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateRunning {
		b.limitReached("time limit")
	}
}

// limitReached cancels acquisition without discarding queued buffers; the
// producer's return then queues the end marker behind them. b.mu must be held.
func (b *Bridge[T]) limitReached(reason string) {
	if b.limited {
		return
	}
	b.limited = true
	b.log.Info("stream limit reached", zap.String("limit", reason), zap.Int64("emitted", b.emitted))
	b.g.Go(b.runStop)
}

// runStop calls the stop function at most once per session.
func (b *Bridge[T]) runStop() error {
	b.stopOnce.Do(func() { b.stopErr = b.stop() })
	return b.stopErr
}

// emit is the producer callback. It never blocks.
func (b *Bridge[T]) emit(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateRunning || b.limited {
		return
	}
	b.emitted++
	if b.maxBuffers > 0 && b.emitted >= b.maxBuffers {
		defer b.limitReached("buffer limit")
	}
	if len(b.queue) >= b.capacity {
		n := b.dropped.Add(1)
		b.log.Debug("queue full, buffer dropped", zap.Int64("dropped", n))
		return
	}
	b.queue <- item[T]{v: v}
}

// producerExited ends the stream if the producer returned on its own.
func (b *Bridge[T]) producerExited(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateRunning && err != nil {
		b.log.Warn("producer failed", zap.Error(err))
	}
	b.pushEnd()
}

// pushEnd queues the end marker once. b.mu must be held.
func (b *Bridge[T]) pushEnd() {
	if b.endQueued {
		return
	}
	b.endQueued = true
	b.queue <- item[T]{end: true}
}

// Next blocks until a buffer is available or the stream ends. ok is false at
// end of stream; later calls keep reporting the end. err is set only when ctx
// is done first or the bridge was never started.
func (b *Bridge[T]) Next(ctx context.Context) (v T, ok bool, err error) {
	b.mu.Lock()
	if b.state == StateIdle {
		b.mu.Unlock()
		return v, false, ErrNotRunning
	}
	if b.ended {
		b.mu.Unlock()
		return v, false, nil
	}
	q := b.queue
	b.mu.Unlock()

	select {
	case it := <-q:
		if it.end {
			b.mu.Lock()
			b.ended = true
			b.mu.Unlock()
			return v, false, nil
		}
		b.delivered.Add(1)
		return it.v, true, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// All ranges over the stream until it ends or ctx is done.
func (b *Bridge[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok, err := b.Next(ctx)
			if err != nil || !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Stop ends the session: no more buffers are accepted, queued ones are
// discarded, the end marker is queued and the stop function runs beside the
// producer. Stop returns once both have returned, with the first error
// either reported. If ctx is done first Stop returns ctx.Err() and the
// session finishes in the background.
func (b *Bridge[T]) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return ErrNotRunning
	}
	b.state = StateStopping
	if b.timer != nil {
		b.timer.Stop()
	}
	b.discardQueued()
	b.pushEnd()
	b.g.Go(b.runStop)
	b.mu.Unlock()

	go b.join()

	select {
	case <-b.stopped:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discardQueued empties the queue, keeping the end marker if present.
// b.mu must be held.
func (b *Bridge[T]) discardQueued() {
	for {
		select {
		case it := <-b.queue:
			if it.end {
				b.endQueued = false
				continue
			}
			b.discarded.Add(1)
		default:
			return
		}
	}
}

func (b *Bridge[T]) join() {
	err := b.g.Wait()

	b.mu.Lock()
	b.state = StateStopped
	b.err = err
	b.mu.Unlock()

	b.log.Info("stream stopped",
		zap.Int64("delivered", b.delivered.Load()),
		zap.Int64("dropped", b.dropped.Load()),
		zap.Int64("discarded", b.discarded.Load()),
		zap.Error(err))
	close(b.stopped)
}

// Wait blocks until a stopped session has fully finished and returns its error.
func (b *Bridge[T]) Wait(ctx context.Context) error {
	select {
	case <-b.stopped:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
