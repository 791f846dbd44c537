// Package event carries engine state changes to whoever renders them.
//
// Producers (index, scanner, operation queue) emit into a Sink. The Bus
// queues events without blocking producers and delivers them in the order
// they were emitted.
package event

import "sync"

// Event is a state change. Topic names the kind for logging and routing.
type Event interface {
	Topic() string
}

// Sink receives events. Emit must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Bus is an unbounded FIFO between producers and a single consumer.
type Bus struct {
	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	out    chan Event
	closed bool
	done   chan struct{}
}

// NewBus starts a bus whose events are read from C().
func NewBus() *Bus {
	b := &Bus{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Emit queues e. Events emitted after Close are dropped.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, e)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// C returns the delivery channel. It is closed after Close once the
// remaining queued events have been delivered.
func (b *Bus) C() <-chan Event { return b.out }

// Close stops intake; queued events are still delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}

func (b *Bus) run() {
	defer close(b.out)
	for {
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		closed := b.closed
		b.mu.Unlock()

		for _, e := range batch {
			b.out <- e
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}

		select {
		case <-b.signal:
		case <-b.done:
		}
	}
}
