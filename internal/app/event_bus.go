package app

import (
	"sync"
	"time"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

const defaultEventBufferSize = 256

// EventBus is the single ordered channel between operation workers and the
// consumer. Sequence numbers follow delivery order.
type EventBus struct {
	mu        sync.Mutex // serializes sequence assignment and sends
	ch        chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	seq       uint64
	now       func() time.Time
}

// NewEventBus creates a bus buffering up to size events
func NewEventBus(size int) *EventBus {
	if size < 1 {
		size = defaultEventBufferSize
	}
	return &EventBus{
		ch:   make(chan domain.Event, size),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Events returns the receive side of the bus. It is closed by Close.
func (b *EventBus) Events() <-chan domain.Event {
	return b.ch
}

// Publish stamps and delivers ev, blocking while the buffer is full. It
// returns false once the bus is closed.
func (b *EventBus) Publish(ev domain.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return false
	default:
	}

	ev.Seq = b.seq + 1
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}

	select {
	case b.ch <- ev:
		b.seq++
		return true
	case <-b.done:
		return false
	}
}

// Close idempotently ends the bus; pending and future publishes fail
func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		// Wait for an in-flight publisher to bail out before closing
		b.mu.Lock()
		close(b.ch)
		b.mu.Unlock()
	})
}
