// Package ari implements a native Go client for the Asterisk REST
// Interface: entity canonicalization, event dispatch with class and
// per-entity callbacks, and the REST surface needed to drive calls.
package ari

import (
	"context"
	"sync"

	log15 "github.com/inconshreveable/log15"
)

// Config carries the connection parameters for one ARI application.
type Config struct {
	Host     string
	Port     string
	Username string
	Secret   string
	App      string
	TLS      bool
}

// Client is the single entry point into the ari package: it owns the
// REST connection, the events WebSocket, the entity registry and the
// callback registry, and the dispatcher goroutine that ties them
// together (spec §4, "Data flow").
type Client struct {
	app string
	log log15.Logger

	rest       *restClient
	registry   *entityRegistry
	cb         *callbackRegistry
	dispatcher *dispatcher
	pump       *eventPump

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// NewClient constructs a Client but starts neither its dispatcher
// goroutine nor the events socket; call Run to do both.
func NewClient(cfg Config, log log15.Logger) *Client {
	if log == nil {
		log = log15.Root()
	}

	c := &Client{
		app:      cfg.App,
		log:      log,
		registry: newEntityRegistry(),
	}
	c.cb = newCallbackRegistry()
	c.rest = newRESTClient(cfg.Host, cfg.Port, cfg.Username, cfg.Secret, log)
	c.dispatcher = newDispatcher(c.registry, c.cb, log)
	c.pump = newEventPump(c, cfg.Host, cfg.Port, cfg.Username, cfg.Secret, cfg.App, cfg.TLS, log)
	return c
}

// Run connects the events WebSocket and blocks, redialing on failure,
// until ctx is canceled or Close is called. The dispatcher goroutine
// runs for the lifetime of Run.
func (c *Client) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.dispatcher.run(c)

	c.pump.run(runCtx)

	c.dispatcher.close()
	c.dispatcher.wait()
}

// Close stops the event pump (Run then stops the dispatcher) and empties
// the entity registry. Registered callbacks are left in place. Safe to
// call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	c.pump.close()
	if cancel != nil {
		cancel()
	}
	c.registry.close()
}

// OnEvent registers a class-level callback, invoked once per dispatched
// event of the given type. id dedupes repeat registrations.
func (c *Client) OnEvent(eventType, id string, fn ClassCallback) {
	c.cb.OnEvent(eventType, id, fn)
}

// RemoveEvent unregisters a previously registered class-level callback.
func (c *Client) RemoveEvent(eventType, id string) {
	c.cb.RemoveEvent(eventType, id)
}

// OnAnyEvent registers a callback invoked for every dispatched event,
// regardless of type — the hook telemetry fan-out uses to publish a copy
// of every event the application receives.
func (c *Client) OnAnyEvent(id string, fn ClassCallback) {
	c.cb.OnAnyEvent(id, fn)
}

// OnEntityEvent registers a callback scoped to a single entity id; it is
// evicted automatically once that entity finishes (spec §4.C/§4.F).
func (c *Client) OnEntityEvent(eventType, entityID, id string, fn EntityCallback) {
	c.cb.OnEntityEvent(eventType, entityID, id, fn)
}

// RemoveEntityEvent unregisters a previously registered per-entity
// callback before its entity ever finishes (e.g. origination failure).
func (c *Client) RemoveEntityEvent(eventType, entityID, id string) {
	c.cb.RemoveEntityEvent(eventType, entityID, id)
}

// Channels lists live channels known to Asterisk.
func (c *Client) Channels() (map[string]any, error) { return c.channels() }

// CreateChannel originates a new channel toward endpoint, entering the
// client's Stasis application.
func (c *Client) CreateChannel(channelID, endpoint, callerID string, variables map[string]any, timeoutSeconds int) (*Channel, error) {
	return c.createChannel(channelID, endpoint, callerID, variables, timeoutSeconds)
}

// RecordChannel starts a recording on a channel.
func (c *Client) RecordChannel(channelID, recordName, format string) error {
	return c.recordChannel(channelID, recordName, format)
}

// PlayChannel starts media playback directly on a channel.
func (c *Client) PlayChannel(channelID, media string) (*Playback, error) {
	return c.playChannel(channelID, media)
}

// RingChannel indicates ringing toward a channel.
func (c *Client) RingChannel(channelID string) error { return c.ringChannel(channelID) }

// StopRingChannel stops ringing indication.
func (c *Client) StopRingChannel(channelID string) error { return c.stopRingChannel(channelID) }

// CloseChannel hangs up a channel.
func (c *Client) CloseChannel(channelID string) error { return c.closeChannel(channelID) }

// ExternalMedia creates a channel that streams external media to
// host:port, optionally under a caller-chosen channelID.
func (c *Client) ExternalMedia(host string, port int, format, channelID string) (*Channel, error) {
	return c.externalMedia(host, port, format, channelID)
}

// StartSnoop creates a channel that listens in on channelID.
func (c *Client) StartSnoop(channelID string) (*Channel, error) { return c.startSnoop(channelID) }

// Answer answers a ringing channel.
func (c *Client) Answer(channelID string) error { return c.answer(channelID) }

// Bridges lists live bridges known to Asterisk.
func (c *Client) Bridges() (map[string]any, error) { return c.bridges() }

// CreateBridge creates a new mixing bridge.
func (c *Client) CreateBridge() (*Bridge, error) { return c.createBridge() }

// CloseBridge destroys a bridge.
func (c *Client) CloseBridge(bridgeID string) error { return c.closeBridge(bridgeID) }

// MohBridge starts music-on-hold on a bridge.
func (c *Client) MohBridge(bridgeID, mohClass string) error { return c.mohBridge(bridgeID, mohClass) }

// StopMohBridge stops music-on-hold on a bridge.
func (c *Client) StopMohBridge(bridgeID string) error { return c.stopMohBridge(bridgeID) }

// AddToBridge adds channels to a bridge.
func (c *Client) AddToBridge(bridgeID string, channelIDs []string) error {
	return c.addToBridge(bridgeID, channelIDs)
}

// RemoveFromBridge removes channels from a bridge.
func (c *Client) RemoveFromBridge(bridgeID string, channelIDs []string) error {
	return c.removeFromBridge(bridgeID, channelIDs)
}

// RecordBridge starts a recording on a bridge.
func (c *Client) RecordBridge(bridgeID, recordName, format string) error {
	return c.recordBridge(bridgeID, recordName, format)
}

// PlayBridge starts media playback on a bridge.
func (c *Client) PlayBridge(bridgeID, media string) (*Playback, error) {
	return c.playBridge(bridgeID, media)
}

// PlaySilence plays seconds of silence on a bridge.
func (c *Client) PlaySilence(bridgeID string, seconds int) (*Playback, error) {
	return c.playSilence(bridgeID, seconds)
}

// ClosePlayback stops a playback operation.
func (c *Client) ClosePlayback(playbackID string) error { return c.closePlayback(playbackID) }

// ControlPlayback applies a control operation (pause, resume, ...) to a
// playback operation.
func (c *Client) ControlPlayback(playbackID, operation string) error {
	return c.controlPlayback(playbackID, operation)
}

// FilterEvents negotiates the set of event types the application wants
// delivered. Called automatically on each WebSocket (re)connect.
func (c *Client) FilterEvents(eventTypes []string) error { return c.filterEvents(eventTypes) }

// ListApps lists registered Stasis applications.
func (c *Client) ListApps() (map[string]any, error) { return c.listApps() }
