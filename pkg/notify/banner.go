// Package notify holds the single error banner shown for failed operations.
package notify

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/errors"
)

// DefaultTimeout is how long a message stays visible.
const DefaultTimeout = 5 * time.Second

// Message is the content of the banner.
type Message struct {
	Operation string
	Code      errors.ErrorCode
	Text      string
	ShownAt   time.Time
}

// Banner shows the most recent operation failure and clears it after a
// timeout. A newer failure replaces the current one and restarts the timer.
type Banner struct {
	clock   clock.Clock
	timeout time.Duration

	mu      sync.Mutex
	current *Message
	gen     uint64
	timer   clock.Timer
	stop    chan struct{}
	subs    map[chan *Message]struct{}
}

// NewBanner creates a Banner. A zero timeout selects DefaultTimeout.
func NewBanner(c clock.Clock, timeout time.Duration) *Banner {
	if c == nil {
		c = clock.RealClock{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Banner{
		clock:   c,
		timeout: timeout,
		subs:    make(map[chan *Message]struct{}),
	}
}

// Report shows err for operation. A nil err is ignored.
func (b *Banner) Report(operation string, err error) {
	if err == nil {
		return
	}
	msg := &Message{
		Operation: operation,
		Code:      errors.GetCode(err),
		Text:      errors.Message(err),
		ShownAt:   b.clock.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = msg
	b.gen++
	b.stopTimer()
	b.timer = b.clock.NewTimer(b.timeout)
	b.stop = make(chan struct{})
	go b.expire(b.timer, b.stop, b.gen)
	b.broadcast(msg)
}

func (b *Banner) expire(t clock.Timer, stop <-chan struct{}, gen uint64) {
	select {
	case <-t.C():
	case <-stop:
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return
	}
	b.current = nil
	b.timer = nil
	b.stop = nil
	b.broadcast(nil)
}

func (b *Banner) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
}

// Dismiss clears the banner immediately.
func (b *Banner) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return
	}
	b.gen++
	b.stopTimer()
	b.current = nil
	b.broadcast(nil)
}

// Current returns the visible message, or nil.
func (b *Banner) Current() *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	m := *b.current
	return &m
}

// Subscribe returns a channel receiving every change; nil means cleared.
func (b *Banner) Subscribe() chan *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *Message, 10)
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Banner) Unsubscribe(ch chan *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Banner) broadcast(m *Message) {
	for ch := range b.subs {
		select {
		case ch <- m:
		default:
		}
	}
}
