package ari

// entityRef names one entity referenced by an event, for dispatch and
// finish-eviction purposes.
type entityRef struct {
	kind Kind
	id   string
}

// Event is implemented by every parsed ARI event. Related returns the
// entities that should receive per-entity callbacks for this event;
// Finish returns the entities that should be evicted after dispatch.
// This is the Go encoding of spec §3's related_events/finish_events
// association tables: rather than looking up field names in a map at
// dispatch time, each concrete event type declares its own entities
// through typed struct fields, and Related/Finish simply read them.
type Event interface {
	Type() string
	Application() string
	Timestamp() string
	AsteriskID() string
	Related() []entityRef
	Finish() []entityRef
}

// base is embedded by every Event implementation.
type base struct {
	typ        string
	application string
	timestamp  string
	asteriskID string
}

func newBase(raw map[string]any) base {
	return base{
		typ:         stringField(raw, "type"),
		application: stringField(raw, "application"),
		timestamp:   stringField(raw, "timestamp"),
		asteriskID:  stringField(raw, "asterisk_id"),
	}
}

func (b base) Type() string        { return b.typ }
func (b base) Application() string { return b.application }
func (b base) Timestamp() string   { return b.timestamp }
func (b base) AsteriskID() string  { return b.asteriskID }
func (b base) Related() []entityRef { return nil }
func (b base) Finish() []entityRef  { return nil }

// MissingParams is sent when a request was missing required parameters;
// it references no entity.
type MissingParams struct {
	base
	Params []string
}

// DeviceStateChanged notifies of a device state change; no entity.
type DeviceStateChanged struct {
	base
	DeviceState string
}

// ContactStatusChange notifies of an endpoint contact status change.
type ContactStatusChange struct {
	base
	Endpoint    map[string]any
	ContactInfo map[string]any
}

// PeerStatusChange notifies of an endpoint peer status change.
type PeerStatusChange struct {
	base
	Endpoint map[string]any
	Peer     map[string]any
}

// EndpointStateChange notifies of an endpoint state change.
type EndpointStateChange struct {
	base
	Endpoint map[string]any
}

// RecordingStarted/Finished/Failed carry the raw recording payload; the
// spec does not model a Recording entity kind, so it is left untyped.
type RecordingStarted struct {
	base
	Recording map[string]any
}

type RecordingFinished struct {
	base
	Recording map[string]any
}

type RecordingFailed struct {
	base
	Recording map[string]any
}

// PlaybackStarted/Continuing/Finished reference a Playback.
type PlaybackStarted struct {
	base
	Playback *Playback
}

func (e PlaybackStarted) Related() []entityRef { return refs(playbackRef(e.Playback)) }

type PlaybackContinuing struct {
	base
	Playback *Playback
}

func (e PlaybackContinuing) Related() []entityRef { return refs(playbackRef(e.Playback)) }

type PlaybackFinished struct {
	base
	Playback *Playback
}

func (e PlaybackFinished) Related() []entityRef { return refs(playbackRef(e.Playback)) }
func (e PlaybackFinished) Finish() []entityRef  { return refs(playbackRef(e.Playback)) }

// BridgeCreated/Destroyed/Merged reference a Bridge.
type BridgeCreated struct {
	base
	Bridge *Bridge
}

func (e BridgeCreated) Related() []entityRef { return refs(bridgeRef(e.Bridge)) }

type BridgeDestroyed struct {
	base
	Bridge *Bridge
}

func (e BridgeDestroyed) Related() []entityRef { return refs(bridgeRef(e.Bridge)) }
func (e BridgeDestroyed) Finish() []entityRef  { return refs(bridgeRef(e.Bridge)) }

type BridgeMerged struct {
	base
	Bridge     *Bridge
	BridgeFrom *Bridge
}

func (e BridgeMerged) Related() []entityRef { return refs(bridgeRef(e.Bridge)) }

// ChannelUserevent optionally references a Channel and/or a Bridge; only
// the Bridge receives per-entity callbacks.
type ChannelUserevent struct {
	base
	EventName string
	Userevent map[string]any
	Endpoint  map[string]any
	Channel   *Channel
	Bridge    *Bridge
}

func (e ChannelUserevent) Related() []entityRef {
	return refs(bridgeRef(e.Bridge))
}

// Channel-referencing events.
type ChannelCreated struct {
	base
	Channel *Channel
}

func (e ChannelCreated) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelDestroyed struct {
	base
	Cause    int
	CauseTxt string
	Channel  *Channel
}

func (e ChannelDestroyed) Related() []entityRef { return refs(channelRef(e.Channel)) }
func (e ChannelDestroyed) Finish() []entityRef  { return refs(channelRef(e.Channel)) }

type ChannelEnteredBridge struct {
	base
	Channel *Channel
	Bridge  *Bridge
}

func (e ChannelEnteredBridge) Related() []entityRef {
	return refs(channelRef(e.Channel), bridgeRef(e.Bridge))
}

type ChannelLeftBridge struct {
	base
	Channel *Channel
	Bridge  *Bridge
}

func (e ChannelLeftBridge) Related() []entityRef {
	return refs(channelRef(e.Channel), bridgeRef(e.Bridge))
}

type ChannelStateChange struct {
	base
	Channel *Channel
}

func (e ChannelStateChange) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelDtmfReceived struct {
	base
	Digit      string
	DurationMs int
	Channel    *Channel
}

func (e ChannelDtmfReceived) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelDialplan struct {
	base
	DialplanApp     string
	DialplanAppData string
	Channel         *Channel
}

func (e ChannelDialplan) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelCallerId struct {
	base
	CallerPresentation    int
	CallerPresentationTxt string
	Channel               *Channel
}

func (e ChannelCallerId) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelHangupRequest struct {
	base
	Cause   int
	Soft    bool
	Channel *Channel
}

func (e ChannelHangupRequest) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelVarset struct {
	base
	Variable string
	Value    string
	Channel  *Channel
}

func (e ChannelVarset) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelHold struct {
	base
	Musicclass string
	Channel    *Channel
}

func (e ChannelHold) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelUnhold struct {
	base
	Channel *Channel
}

func (e ChannelUnhold) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelTalkingStarted struct {
	base
	Channel *Channel
}

func (e ChannelTalkingStarted) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelTalkingFinished struct {
	base
	Duration int
	Channel  *Channel
}

func (e ChannelTalkingFinished) Related() []entityRef { return refs(channelRef(e.Channel)) }

type ChannelConnectedLine struct {
	base
	Channel *Channel
}

func (e ChannelConnectedLine) Related() []entityRef { return refs(channelRef(e.Channel)) }

// Dial references up to three channels.
type Dial struct {
	base
	Dialstring string
	Dialstatus string
	Caller     *Channel
	Peer       *Channel
	Forwarded  *Channel
}

func (e Dial) Related() []entityRef {
	return refs(channelRef(e.Caller), channelRef(e.Peer), channelRef(e.Forwarded))
}

// StasisStart/StasisEnd bracket the Stasis control window for a channel.
type StasisStart struct {
	base
	Args           []string
	Channel        *Channel
	ReplaceChannel *Channel
}

func (e StasisStart) Related() []entityRef {
	return refs(channelRef(e.Channel), channelRef(e.ReplaceChannel))
}

type StasisEnd struct {
	base
	Channel *Channel
}

func (e StasisEnd) Related() []entityRef { return refs(channelRef(e.Channel)) }
func (e StasisEnd) Finish() []entityRef  { return refs(channelRef(e.Channel)) }

// refPair is an entityRef that may be absent (nil entity pointer).
type refPair struct {
	ref entityRef
	ok  bool
}

func channelRef(c *Channel) refPair {
	if c == nil {
		return refPair{}
	}
	return refPair{ref: entityRef{kind: KindChannel, id: c.ID()}, ok: true}
}

func bridgeRef(b *Bridge) refPair {
	if b == nil {
		return refPair{}
	}
	return refPair{ref: entityRef{kind: KindBridge, id: b.ID()}, ok: true}
}

func playbackRef(p *Playback) refPair {
	if p == nil {
		return refPair{}
	}
	return refPair{ref: entityRef{kind: KindPlayback, id: p.ID()}, ok: true}
}

// refs filters out absent references, preserving declaration order.
func refs(pairs ...refPair) []entityRef {
	out := make([]entityRef, 0, len(pairs))
	for _, p := range pairs {
		if p.ok {
			out = append(out, p.ref)
		}
	}
	return out
}
