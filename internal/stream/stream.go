package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by Forward when the consumer cancelled the stream.
var ErrCancelled = errors.New("stream cancelled")

// Stream is a bounded, ordered channel of events with one producer and one
// consumer. Cancel may be called from any goroutine.
type Stream struct {
	ch        chan Event
	done      chan struct{}
	cancelled atomic.Bool
	cancel    sync.Once
	close     sync.Once
}

func New(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{ch: make(chan Event, buffer), done: make(chan struct{})}
}

// Emit queues ev. It returns false without queueing when the stream is
// cancelled or ctx is done.
func (s *Stream) Emit(ctx context.Context, p Payload) bool {
	if s.cancelled.Load() {
		return false
	}
	select {
	case s.ch <- Event{Data: p}:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Cancel stops delivery. Events emitted afterwards are discarded and events
// still queued are never forwarded.
func (s *Stream) Cancel() {
	s.cancel.Do(func() {
		s.cancelled.Store(true)
		close(s.done)
	})
}

func (s *Stream) Cancelled() bool { return s.cancelled.Load() }

// Done is closed by Cancel.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close ends the stream. Only the producer calls it, after its last Emit.
func (s *Stream) Close() {
	s.close.Do(func() { close(s.ch) })
}

// Events exposes the raw channel for consumers that do their own cancellation
// bookkeeping.
func (s *Stream) Events() <-chan Event { return s.ch }

// Sink receives forwarded events.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(ev Event) error { return f(ev) }

// Forward delivers events to sink in order until the producer closes the
// stream. The cancelled flag is checked before every delivery, so nothing
// reaches sink once Cancel has returned. A sink error or a done ctx cancels
// the stream.
func (s *Stream) Forward(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			return ctx.Err()
		case <-s.done:
			return ErrCancelled
		case ev, ok := <-s.ch:
			if !ok {
				return nil
			}
			if s.cancelled.Load() {
				return ErrCancelled
			}
			if err := sink.Send(ev); err != nil {
				s.Cancel()
				return err
			}
			if ev.Kind().Terminal() {
				s.drain()
				return nil
			}
		}
	}
}

// drain discards whatever the producer still emits after a terminal event.
func (s *Stream) drain() {
	go func() {
		for range s.ch {
		}
	}()
}
