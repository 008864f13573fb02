// Package calldriver implements the admission-controlled call
// origination loop and per-call state machine that exercise an ari.Client
// to generate PBX load.
package calldriver

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	log15 "github.com/inconshreveable/log15"

	"github.com/twobarrels/ari-loadgen/ari"
	"github.com/twobarrels/ari-loadgen/internal/telemetry"
)

// Config mirrors the [calls] INI section.
type Config struct {
	Count    int
	Driver   string
	Trunk    string
	Phone    string
	CallerID string
}

// Driver runs the origination loop and owns the shared Stats block.
//
// Its StasisStart/ChannelDestroyed handlers are registered once, at
// construction, as class-level callbacks rather than per-entity ones:
// StasisEnd is also a finish event for Channel (spec §9), and the
// registry evicts every per-entity callback for an id, across all event
// types, the moment any finish event fires for it. A per-entity
// ChannelDestroyed callback registered at origination time would
// therefore already be gone by the time ChannelDestroyed itself arrives,
// and the admission permit would never be released. Class-level
// callbacks aren't touched by entity eviction, so the driver tracks
// per-channel state itself in pendingStart/pendingPermit instead.
type Driver struct {
	cfg    Config
	client *ari.Client
	log    log15.Logger
	pub    telemetry.Publisher

	stats   Stats
	permits chan struct{}
	nextID  atomic.Int64

	mu            sync.Mutex
	pendingStart  map[string]*call
	pendingPermit map[string]struct{}

	wg sync.WaitGroup
}

// New constructs a Driver and wires its class-level StasisStart and
// ChannelDestroyed handlers. pub may be a no-op Publisher.
func New(cfg Config, client *ari.Client, pub telemetry.Publisher, log log15.Logger) *Driver {
	d := &Driver{
		cfg:           cfg,
		client:        client,
		log:           log,
		pub:           pub,
		permits:       make(chan struct{}, cfg.Count),
		pendingStart:  make(map[string]*call),
		pendingPermit: make(map[string]struct{}),
	}
	client.OnEvent("StasisStart", "calldriver-dispatch", d.handleStasisStart)
	client.OnEvent("ChannelDestroyed", "calldriver-permit", d.handleChannelDestroyed)
	return d
}

// Stats returns the driver's live statistics block.
func (d *Driver) Stats() *Stats { return &d.stats }

// dialString computes the endpoint dial string exactly as spec.md §4.G
// describes: PJSIP gets its own URI shape, every other driver name uses
// the generic "{driver}/{trunk}/{phone}" form.
func dialString(driver, trunk, phone string) string {
	if driver == "PJSIP" {
		return fmt.Sprintf("PJSIP/%s@%s", phone, trunk)
	}
	return fmt.Sprintf("%s/%s/%s", driver, trunk, phone)
}

// Run originates calls until ctx is canceled, then waits for every
// in-flight origination attempt to finish before returning. Admission
// control itself is released asynchronously by handleChannelDestroyed,
// not by this loop.
func (d *Driver) Run(ctx context.Context) {
	defer d.wg.Wait()

	for {
		select {
		case d.permits <- struct{}{}:
		case <-ctx.Done():
			return
		}

		select {
		case <-ctx.Done():
			<-d.permits
			return
		default:
		}

		channelID := strconv.FormatInt(d.nextID.Add(1), 10)
		d.wg.Add(1)
		go d.originate(channelID)
	}
}

func (d *Driver) originate(channelID string) {
	defer d.wg.Done()

	dial := dialString(d.cfg.Driver, d.cfg.Trunk, d.cfg.Phone)

	d.mu.Lock()
	d.pendingStart[channelID] = newCall(d.client, &d.stats, d.pub, d.log)
	d.pendingPermit[channelID] = struct{}{}
	d.mu.Unlock()

	_, err := d.client.CreateChannel(channelID, dial, d.cfg.CallerID, nil, 30)
	if err != nil {
		d.log.Error("failed to originate channel", "channel", channelID, "dial", dial, "err", err)
		d.mu.Lock()
		delete(d.pendingStart, channelID)
		delete(d.pendingPermit, channelID)
		d.mu.Unlock()
		<-d.permits
		return
	}
	d.stats.incSentCalls()
}

// handleStasisStart dispatches to the call state machine for channels
// this driver originated, gated on protocol (spec.md's "protocol gate").
// It is registered once, before origination begins, so there is no race
// between CreateChannel returning and the handler being in place to
// catch a fast StasisStart.
func (d *Driver) handleStasisStart(c *ari.Client, e ari.Event) {
	start, ok := e.(ari.StasisStart)
	if !ok || start.Channel == nil {
		return
	}
	channelID := start.Channel.ID()

	d.mu.Lock()
	cl, ok := d.pendingStart[channelID]
	if ok {
		delete(d.pendingStart, channelID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	switch start.Channel.Protocol() {
	case "PJSIP", "SIP":
	default:
		return
	}
	cl.run(channelID)
}

// handleChannelDestroyed releases the admission permit for a channel this
// driver originated, once Asterisk reports it destroyed. Runs regardless
// of whether the channel ever reached handleStasisStart.
func (d *Driver) handleChannelDestroyed(c *ari.Client, e ari.Event) {
	destroyed, ok := e.(ari.ChannelDestroyed)
	if !ok || destroyed.Channel == nil {
		return
	}
	channelID := destroyed.Channel.ID()

	d.mu.Lock()
	_, hadPermit := d.pendingPermit[channelID]
	if hadPermit {
		delete(d.pendingPermit, channelID)
	}
	delete(d.pendingStart, channelID)
	d.mu.Unlock()

	if hadPermit {
		<-d.permits
	}
}
