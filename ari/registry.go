package ari

import "sync"

// registry is the process-wide index of one entity kind: {id -> entity}.
// getOrCreate serializes constructor bodies under mu so two goroutines
// racing to canonicalize the same id never produce two instances.
type registry[T entity] struct {
	mu      sync.Mutex
	items   map[string]T
	closed  bool
	build   func(raw map[string]any) T
}

func newRegistry[T entity](build func(raw map[string]any) T) *registry[T] {
	return &registry[T]{
		items: make(map[string]T),
		build: build,
	}
}

func (r *registry[T]) get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	return v, ok
}

// getOrCreate returns the canonical entity for raw["id"], refreshing its
// raw payload if it already exists, constructing it otherwise.
func (r *registry[T]) getOrCreate(raw map[string]any) T {
	id := stringField(raw, "id")
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.items[id]; ok {
		v.update(raw)
		return v
	}
	v := r.build(raw)
	if !r.closed {
		r.items[id] = v
	}
	return v
}

// put inserts an already-constructed entity. No-op once the registry is
// closed, and idempotent: an existing entry with the same id wins.
func (r *registry[T]) put(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.items[v.ID()]; ok {
		return
	}
	r.items[v.ID()] = v
}

func (r *registry[T]) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *registry[T]) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.items = make(map[string]T)
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// entityRegistry bundles the three per-kind registries and is the single
// source of truth for entity canonicalization (spec §4.C).
type entityRegistry struct {
	channels  *registry[*Channel]
	bridges   *registry[*Bridge]
	playbacks *registry[*Playback]
}

func newEntityRegistry() *entityRegistry {
	return &entityRegistry{
		channels:  newRegistry(newChannel),
		bridges:   newRegistry(newBridge),
		playbacks: newRegistry(newPlayback),
	}
}

func (r *entityRegistry) close() {
	r.channels.close()
	r.bridges.close()
	r.playbacks.close()
}

// remove evicts the entity of the given kind/id, and the per-entity
// callbacks keyed by it, via cb.evictEntity. Called by the dispatcher
// after a finish event.
func (r *entityRegistry) remove(kind Kind, id string, cb *callbackRegistry) {
	switch kind {
	case KindChannel:
		r.channels.remove(id)
	case KindBridge:
		r.bridges.remove(id)
	case KindPlayback:
		r.playbacks.remove(id)
	}
	cb.evictEntity(id)
}
