// Package progress aggregates the backend's live event streams: git
// operation progress and document-processing jobs. Each tracker owns its
// state in a single consumer goroutine and exposes snapshots.
package progress

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/errors"
)

// Source opens an event subscription. The channel must close when ctx ends.
type Source[T any] func(ctx context.Context) (<-chan T, error)

var errStreamClosed = stderrors.New("stream closed by backend")

// stream runs one subscription at a time and drops events from subscriptions
// that were torn down.
type stream[T any] struct {
	name   string
	source Source[T]
	apply  func(T)
	log    *logrus.Entry

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	connected bool
	err       error

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

func newStream[T any](name string, source Source[T], apply func(T), log *logrus.Entry) *stream[T] {
	return &stream[T]{
		name:   name,
		source: source,
		apply:  apply,
		log:    log,
		subs:   make(map[chan struct{}]struct{}),
	}
}

func (s *stream[T]) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := s.source(subCtx)
	if err != nil {
		cancel()
		s.connected = false
		s.err = errors.StreamDisconnected(s.name, err)
		s.log.WithError(err).Warn("Failed to subscribe")
		s.changed()
		return s.err
	}

	s.gen++
	s.cancel = cancel
	s.connected = true
	s.err = nil
	s.log.Debug("Subscribed")
	go s.consume(subCtx, s.gen, ch)
	s.changed()
	return nil
}

func (s *stream[T]) consume(ctx context.Context, gen uint64, ch <-chan T) {
	for ev := range ch {
		if !s.deliver(gen, ev) {
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.cancel()
	s.cancel = nil
	s.connected = false
	if ctx.Err() == nil {
		s.err = errors.StreamDisconnected(s.name, errStreamClosed)
		s.log.Warn("Stream closed by backend")
	}
	s.changed()
}

// deliver applies ev unless the subscription that produced it was torn
// down. It reports whether the subscription is still current.
func (s *stream[T]) deliver(gen uint64, ev T) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.apply(ev)
	s.mu.Unlock()
	s.changed()
	return true
}

func (s *stream[T]) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.connected = false
	s.changed()
}

func (s *stream[T]) reconnect(ctx context.Context) error {
	s.stop()
	return s.start(ctx)
}

func (s *stream[T]) status() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.err
}

func (s *stream[T]) subscribe() chan struct{} {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs[ch] = struct{}{}
	return ch
}

func (s *stream[T]) unsubscribe(ch chan struct{}) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// changed wakes subscribers. Notifications coalesce.
func (s *stream[T]) changed() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
