package sink

import (
	"group-cart/domain"
	"group-cart/errors"
	"sync"
)

// Outbox is the per-connection sink fed by the broadcaster.
// The transport writer drains Frames; Send never blocks so that a slow
// peer only loses its own frames.
type Outbox struct {
	id     domain.ConnectionID
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewOutbox(id domain.ConnectionID, bufferSize int) *Outbox {
	return &Outbox{
		id:     id,
		frames: make(chan []byte, max(bufferSize, 1)),
		done:   make(chan struct{}),
	}
}

func (o *Outbox) ID() domain.ConnectionID { return o.id }

// Send enqueues a frame, or drops it when the outbox is full or closed.
func (o *Outbox) Send(frame []byte) error {
	select {
	case <-o.done:
		return errors.ErrOutboxClosed
	default:
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return errors.ErrOutboxFull
	}
}

// Frames is read by the single writer of the connection.
func (o *Outbox) Frames() <-chan []byte { return o.frames }

// Done is closed once the connection is going away.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close stops accepting frames. The frames channel itself is never closed
// so a racing Send cannot panic.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.done) })
}
