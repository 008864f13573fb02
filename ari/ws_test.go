package ari

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventPumpWSURL(t *testing.T) {
	p := newEventPump(nil, "127.0.0.1", "8088", "user", "pass", "loadgen", false, discardLogger())
	url := p.wsURL()
	assert.Contains(t, url, "ws://127.0.0.1:8088/ari/events?")
	assert.Contains(t, url, "app=loadgen")
}

func TestEventPumpTLSScheme(t *testing.T) {
	p := newEventPump(nil, "h", "1", "u", "p", "a", true, discardLogger())
	assert.Contains(t, p.wsURL(), "wss://")
}

func TestEventPumpCloseIsIdempotentAndObservable(t *testing.T) {
	p := newEventPump(nil, "h", "1", "u", "p", "a", false, discardLogger())
	assert.False(t, p.isClosed())
	p.close()
	assert.True(t, p.isClosed())
	assert.NotPanics(t, func() { p.close() })
}

func TestHandleFrameDropsUnknownEventType(t *testing.T) {
	registry := newEntityRegistry()
	cb := newCallbackRegistry()
	d := newDispatcher(registry, cb, discardLogger())
	client := &Client{app: "a", registry: registry, cb: cb, dispatcher: d}
	p := newEventPump(client, "h", "1", "u", "p", "a", false, discardLogger())

	p.handleFrame([]byte(`{"type":"SomeBrandNewEventType"}`))

	select {
	case <-d.events:
		t.Fatal("unexpected event submitted to dispatcher")
	default:
	}
}

func TestHandleFrameDropsDisallowedEventType(t *testing.T) {
	registry := newEntityRegistry()
	cb := newCallbackRegistry()
	// Never call addFilter/OnEvent for DeviceStateChanged beyond the
	// default set's explicit omission check below.
	cb.mu.Lock()
	delete(cb.allowed, "DeviceStateChanged")
	cb.mu.Unlock()

	d := newDispatcher(registry, cb, discardLogger())
	client := &Client{app: "a", registry: registry, cb: cb, dispatcher: d}
	p := newEventPump(client, "h", "1", "u", "p", "a", false, discardLogger())

	p.handleFrame([]byte(`{"type":"DeviceStateChanged","device_state":"NOT_INUSE"}`))

	select {
	case <-d.events:
		t.Fatal("disallowed event should have been dropped")
	default:
	}
}
