package ari

import (
	"encoding/json"
	"strings"
	"sync"
)

// Kind identifies one of the three entity kinds the registry tracks.
type Kind int

const (
	KindChannel Kind = iota
	KindBridge
	KindPlayback
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "Channel"
	case KindBridge:
		return "Bridge"
	case KindPlayback:
		return "Playback"
	default:
		return "Unknown"
	}
}

// CallerID is an immutable name/number pair.
type CallerID struct {
	Name   string
	Number string
}

func callerIDFromMap(m map[string]any) CallerID {
	return CallerID{
		Name:   stringField(m, "name"),
		Number: stringField(m, "number"),
	}
}

// entity is implemented by Channel, Bridge and Playback. update refreshes
// the entity's last-seen payload in place; it runs under the registry's
// per-kind construction mutex so two goroutines never race on the same id.
type entity interface {
	ID() string
	update(raw map[string]any)
}

// Channel is a live call leg inside Asterisk.
type Channel struct {
	mu sync.Mutex

	id            string
	raw           json.RawMessage
	name          string
	state         string
	caller        CallerID
	connected     CallerID
	creationtime  string
	language      string
	dialplan      map[string]any
	accountcode   string
	channelvars   map[string]any
	protocol      string
	snoopChildren []string
}

func newChannel(raw map[string]any) *Channel {
	c := &Channel{id: stringField(raw, "id")}
	c.applyCreate(raw)
	return c
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) applyCreate(raw map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = toRaw(raw)
	c.name = stringField(raw, "name")
	c.state = stringField(raw, "state")
	c.caller = callerIDFromMap(mapField(raw, "caller"))
	c.connected = callerIDFromMap(mapField(raw, "connected"))
	c.creationtime = stringField(raw, "creationtime")
	c.language = stringField(raw, "language")
	if d, ok := raw["dialplan"].(map[string]any); ok {
		c.dialplan = d
	}
	c.accountcode = stringField(raw, "accountcode")
	if v, ok := raw["channelvars"].(map[string]any); ok {
		c.channelvars = v
	}
	if idx := strings.IndexByte(c.name, '/'); idx >= 0 {
		c.protocol = c.name[:idx]
	} else {
		c.protocol = c.name
	}
}

// update implements entity: a later event/REST payload refreshes mutable
// fields. Identity-defining fields (name, protocol) never change.
func (c *Channel) update(raw map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = toRaw(raw)
	if s := stringField(raw, "state"); s != "" {
		c.state = s
	}
	c.connected = callerIDFromMap(mapField(raw, "connected"))
	if d, ok := raw["dialplan"].(map[string]any); ok {
		c.dialplan = d
	}
	c.accountcode = stringField(raw, "accountcode")
	if v, ok := raw["channelvars"].(map[string]any); ok {
		c.channelvars = v
	}
}

// Protocol is the prefix of the channel name before the first '/'.
func (c *Channel) Protocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol
}

// Name returns the channel's ARI name (e.g. "PJSIP/100-0000001a").
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Channel) addSnoopChild(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snoopChildren = append(c.snoopChildren, id)
}

// SnoopChildren returns the ids of snoop channels spawned from this
// channel, in the order they were created.
func (c *Channel) SnoopChildren() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.snoopChildren))
	copy(out, c.snoopChildren)
	return out
}

// Bridge mixes the media of multiple channels.
type Bridge struct {
	mu sync.Mutex

	id           string
	raw          json.RawMessage
	technology   string
	bridgeType   string
	bridgeClass  string
	creator      string
	name         string
	channelIDs   []string
	creationtime string
}

func newBridge(raw map[string]any) *Bridge {
	b := &Bridge{id: stringField(raw, "id")}
	b.applyCreate(raw)
	return b
}

func (b *Bridge) ID() string { return b.id }

func (b *Bridge) applyCreate(raw map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = toRaw(raw)
	b.technology = stringField(raw, "technology")
	b.bridgeType = stringField(raw, "bridge_type")
	b.bridgeClass = stringField(raw, "bridge_class")
	b.creator = stringField(raw, "creator")
	b.name = stringField(raw, "name")
	b.channelIDs = stringSliceField(raw, "channels")
	b.creationtime = stringField(raw, "creationtime")
}

func (b *Bridge) update(raw map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = toRaw(raw)
	b.channelIDs = stringSliceField(raw, "channels")
}

// Playback is a controllable, addressable media-playing operation.
type Playback struct {
	mu sync.Mutex

	id        string
	raw       json.RawMessage
	mediaURI  string
	targetURI string
	language  string
	state     string
}

func newPlayback(raw map[string]any) *Playback {
	p := &Playback{id: stringField(raw, "id")}
	p.applyCreate(raw)
	return p
}

func (p *Playback) ID() string { return p.id }

func (p *Playback) applyCreate(raw map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw = toRaw(raw)
	p.mediaURI = stringField(raw, "media_uri")
	p.targetURI = stringField(raw, "target_uri")
	p.language = stringField(raw, "language")
	p.state = stringField(raw, "state")
}

func (p *Playback) update(raw map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw = toRaw(raw)
	p.mediaURI = stringField(raw, "media_uri")
	p.targetURI = stringField(raw, "target_uri")
	p.language = stringField(raw, "language")
	p.state = stringField(raw, "state")
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toRaw(m map[string]any) json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
