package hub

import (
	"errors"
	"sync"
)

var (
	ErrOutboxFull = errors.New("outbound queue is full")
	ErrConnClosed = errors.New("connection closed")
)

const DefaultOutboxSize = 64

// Outbox is a bounded per-connection queue of outbound events. Push never blocks,
// so a slow reader can not stall a broadcast to the rest of the room.
type Outbox struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

func (o *Outbox) Push(ev Event) error {
	select {
	case <-o.done:
		return ErrConnClosed
	default:
	}

	select {
	case o.ch <- ev:
		return nil
	case <-o.done:
		return ErrConnClosed
	default:
		return ErrOutboxFull
	}
}

// C is drained by the connection's writer goroutine.
func (o *Outbox) C() <-chan Event { return o.ch }

func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close reports whether this call was the one that closed the outbox.
// ch stays open: queued events are simply dropped with the outbox.
func (o *Outbox) Close() bool {
	closed := false
	o.once.Do(func() {
		close(o.done)
		closed = true
	})
	return closed
}
