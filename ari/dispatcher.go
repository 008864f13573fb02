package ari

import (
	log15 "github.com/inconshreveable/log15"
)

// dispatcher drains a single buffered channel of parsed events and
// delivers them in arrival order (spec §4.E, §5): one goroutine, so
// class and per-entity callbacks for a given event type are always
// invoked in the order their events arrived over the WebSocket, and no
// two callbacks ever run concurrently with each other.
type dispatcher struct {
	events   chan Event
	registry *entityRegistry
	cb       *callbackRegistry
	log      log15.Logger
	done     chan struct{}
}

func newDispatcher(registry *entityRegistry, cb *callbackRegistry, log log15.Logger) *dispatcher {
	return &dispatcher{
		events:   make(chan Event, 256),
		registry: registry,
		cb:       cb,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (d *dispatcher) submit(e Event) {
	d.events <- e
}

func (d *dispatcher) close() {
	close(d.events)
}

func (d *dispatcher) run(client *Client) {
	defer close(d.done)
	for e := range d.events {
		d.deliver(client, e)
	}
}

func (d *dispatcher) wait() {
	<-d.done
}

func (d *dispatcher) deliver(client *Client, e Event) {
	for _, entry := range d.cb.snapshotClass(e.Type()) {
		d.invokeClass(client, e, entry)
	}

	for _, entry := range d.cb.snapshotAny() {
		d.invokeClass(client, e, entry)
	}

	for _, ref := range e.Related() {
		for _, entry := range d.cb.snapshotEntity(e.Type(), ref.id) {
			d.invokeEntity(client, e, ref.id, entry)
		}
	}

	for _, ref := range e.Finish() {
		d.registry.remove(ref.kind, ref.id, d.cb)
	}
}

// invokeClass and invokeEntity recover from callback panics so that one
// misbehaving handler cannot stop delivery to the rest, or unwind the
// dispatcher goroutine itself.
func (d *dispatcher) invokeClass(client *Client, e Event, entry classCallbackEntry) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("class callback panicked", "event", e.Type(), "id", entry.id, "panic", r)
		}
	}()
	entry.fn(client, e)
}

func (d *dispatcher) invokeEntity(client *Client, e Event, entityID string, entry entityCallbackEntry) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("entity callback panicked", "event", e.Type(), "entity", entityID, "id", entry.id, "panic", r)
		}
	}()
	entry.fn(client, e, entityID)
}
