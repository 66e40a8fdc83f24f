package session

import (
	"sync"

	"github.com/modulexcite/cex/pkg/dtm/wire"
)

// EventKind tags the host-visible events a Session raises (spec.md §6.2,
// the C7 subset of the host event list).
type EventKind int

const (
	EventDataReceived EventKind = iota
	EventFileReceived
	EventPacketReceived
	EventPacketSent
	EventSessionError
	EventRekeyed
)

// Event is the payload passed to a subscriber. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind EventKind

	// EventDataReceived
	Payload []byte

	// EventFileReceived
	Path string

	// EventPacketReceived / EventPacketSent
	PacketType wire.PacketType
	Length     int

	// EventSessionError
	Err      error
	Severity Severity
	Message  string
}

// Severity tags a SessionError event (spec.md §6.2/§7).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// Handler receives dispatched events. Handlers MUST NOT block: they run
// synchronously on the single dispatcher goroutine (spec.md §5).
type Handler func(Event)

// FileRequestFunc is the synchronous host hook backing the FileRequest
// event (spec.md §6.2): given the proposed filename and total size, the
// host returns the path to reassemble into, or cancel=true to refuse the
// transfer. Unlike Handler, this runs on the receive goroutine and its
// return value gates whether the transfer proceeds.
type FileRequestFunc func(proposedName string, totalSize int64) (acceptedPath string, cancel bool)

// Dispatcher is a typed per-kind listener registry with a single dispatch
// goroutine, the same shape as pkg/dtm/kex's Dispatcher (spec.md §9's
// "event multicast with += -> typed listener registry" guidance), kept as
// a separate type here because Session's Event carries a disjoint field
// set from kex.Event.
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

// Emit enqueues ev for dispatch.
func (d *Dispatcher) Emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

// Close stops the dispatch goroutine; further Emit calls are no-ops.
func (d *Dispatcher) Close() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
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
