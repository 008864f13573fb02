package ari

import "sync"

// ClassCallback is invoked for every dispatched event of the registered
// type, regardless of which entity (if any) it references.
type ClassCallback func(c *Client, e Event)

// EntityCallback is invoked for a specific entity id when an event of the
// registered type references that entity.
type EntityCallback func(c *Client, e Event, entityID string)

type classCallbackEntry struct {
	id string
	fn ClassCallback
}

type entityCallbackEntry struct {
	id string
	fn EntityCallback
}

// callbackRegistry holds the two callback maps described in spec §4.F
// behind a single mutex. Registration is keyed by a caller-supplied token
// (Go closures have no identity to compare by, unlike Python bound
// methods, so callers pass a string id of their choosing to dedupe on —
// see DESIGN.md "callback identity").
type callbackRegistry struct {
	mu       sync.Mutex
	classCB  map[string][]classCallbackEntry
	entityCB map[string]map[string][]entityCallbackEntry
	anyCB    []classCallbackEntry

	allowed map[string]bool
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{
		classCB:  make(map[string][]classCallbackEntry),
		entityCB: make(map[string]map[string][]entityCallbackEntry),
		allowed:  defaultAllowedEvents(),
	}
}

func (r *callbackRegistry) addFilter(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[eventType] = true
}

func (r *callbackRegistry) allowedSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.allowed))
	for t := range r.allowed {
		out = append(out, t)
	}
	return out
}

func (r *callbackRegistry) isAllowed(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allowed[eventType]
}

// OnEvent registers a class-level callback for eventType. id dedupes
// repeat registrations: registering the same id for the same event type
// again is a no-op.
func (r *callbackRegistry) OnEvent(eventType, id string, fn ClassCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[eventType] = true
	for _, e := range r.classCB[eventType] {
		if e.id == id {
			return
		}
	}
	r.classCB[eventType] = append(r.classCB[eventType], classCallbackEntry{id: id, fn: fn})
}

// RemoveEvent removes a previously registered class-level callback.
func (r *callbackRegistry) RemoveEvent(eventType, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.classCB[eventType]
	for i, e := range list {
		if e.id == id {
			r.classCB[eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// OnAnyEvent registers fn to run for every dispatched event regardless of
// type, after that event's own class-level callbacks (spec §6 telemetry
// fan-out: "a copy of every dispatched event"). id dedupes repeat
// registrations.
func (r *callbackRegistry) OnAnyEvent(id string, fn ClassCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.anyCB {
		if e.id == id {
			return
		}
	}
	r.anyCB = append(r.anyCB, classCallbackEntry{id: id, fn: fn})
}

// OnEntityEvent registers a per-entity callback for eventType on
// entityID. Only invoked while the entity is live.
func (r *callbackRegistry) OnEntityEvent(eventType, entityID, id string, fn EntityCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[eventType] = true
	byEntity, ok := r.entityCB[eventType]
	if !ok {
		byEntity = make(map[string][]entityCallbackEntry)
		r.entityCB[eventType] = byEntity
	}
	for _, e := range byEntity[entityID] {
		if e.id == id {
			return
		}
	}
	byEntity[entityID] = append(byEntity[entityID], entityCallbackEntry{id: id, fn: fn})
}

// RemoveEntityEvent removes a previously registered per-entity callback.
func (r *callbackRegistry) RemoveEntityEvent(eventType, entityID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byEntity, ok := r.entityCB[eventType]
	if !ok {
		return
	}
	list := byEntity[entityID]
	for i, e := range list {
		if e.id == id {
			byEntity[entityID] = append(list[:i], list[i+1:]...)
			if len(byEntity[entityID]) == 0 {
				delete(byEntity, entityID)
			}
			return
		}
	}
}

// snapshotClass returns a copy of the class callback list for eventType,
// so that registrations made from within a callback never affect the
// event currently being dispatched (spec §4.E/§9).
func (r *callbackRegistry) snapshotClass(eventType string) []classCallbackEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.classCB[eventType]
	out := make([]classCallbackEntry, len(src))
	copy(out, src)
	return out
}

// snapshotAny returns a copy of the any-event callback list, for the same
// iteration-safety reason as snapshotClass.
func (r *callbackRegistry) snapshotAny() []classCallbackEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]classCallbackEntry, len(r.anyCB))
	copy(out, r.anyCB)
	return out
}

func (r *callbackRegistry) snapshotEntity(eventType, entityID string) []entityCallbackEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	byEntity, ok := r.entityCB[eventType]
	if !ok {
		return nil
	}
	src := byEntity[entityID]
	out := make([]entityCallbackEntry, len(src))
	copy(out, src)
	return out
}

// evictEntity removes every per-entity callback keyed by entityID, across
// all event types, once that entity has finished (spec §4.C, §8 "finish
// eviction completeness").
func (r *callbackRegistry) evictEntity(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for eventType, byEntity := range r.entityCB {
		delete(byEntity, entityID)
		if len(byEntity) == 0 {
			delete(r.entityCB, eventType)
		}
	}
}
