package kex

import (
	"sync"

	"github.com/modulexcite/cex/internal/signal"
)

// EventKind tags the host-visible events a Machine raises (spec.md §6.2).
type EventKind int

const (
	EventIdentityReceived EventKind = iota
	EventPacketReceived
	EventPacketSent
	EventSessionEstablished
	EventSessionError
)

// Event is the payload passed to a subscriber. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind EventKind

	// EventIdentityReceived
	PeerIdentity Identity
	Cancel       *signal.Signal

	// EventPacketReceived / EventPacketSent
	ExchangeFlag ExchangeFlag
	Length       int

	// EventSessionEstablished
	ForwardFingerprint []byte
	ReturnFingerprint  []byte

	// EventSessionError
	Err      error
	Severity Severity
	Message  string
}

// Handler receives dispatched events. Per spec.md §9's redesign note,
// handlers are registered explicitly rather than accumulated on a `+=`
// list, and MUST NOT block: they run synchronously on the single
// dispatcher goroutine.
type Handler func(Event)

// Dispatcher is a typed per-kind listener registry with a single
// dispatch goroutine, replacing the source's event-multicast pattern
// (spec.md §9).
type Dispatcher struct {
	mu        sync.Mutex
	listeners map[EventKind]map[int]Handler
	nextID    int

	events chan Event
	done   chan struct{}
}

// NewDispatcher starts a Dispatcher with a buffered event queue of
// capacity queueDepth.
func NewDispatcher(queueDepth int) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = 16
	}
	d := &Dispatcher{
		listeners: make(map[EventKind]map[int]Handler),
		events:    make(chan Event, queueDepth),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Subscribe registers handler for kind and returns a token for Unsubscribe.
func (d *Dispatcher) Subscribe(kind EventKind, handler Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listeners[kind] == nil {
		d.listeners[kind] = make(map[int]Handler)
	}
	id := d.nextID
	d.nextID++
	d.listeners[kind][id] = handler
	return id
}

// Unsubscribe removes the handler registered for kind under token.
func (d *Dispatcher) Unsubscribe(kind EventKind, token int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners[kind], token)
}

// Emit enqueues ev for dispatch. Non-blocking callers should not invoke
// this from the dispatcher goroutine itself.
func (d *Dispatcher) Emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

// Close stops the dispatch goroutine; further Emit calls are no-ops.
func (d *Dispatcher) Close() {
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case ev := <-d.events:
			d.mu.Lock()
			handlers := make([]Handler, 0, len(d.listeners[ev.Kind]))
			for _, h := range d.listeners[ev.Kind] {
				handlers = append(handlers, h)
			}
			d.mu.Unlock()
			for _, h := range handlers {
				h(ev)
			}
		case <-d.done:
			return
		}
	}
}
