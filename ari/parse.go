package ari

import (
	"github.com/rotisserie/eris"
)

// relatedEvents and finishEvents are the canonical association tables from
// spec §3, keyed by entity kind then event type. They are used to compute
// the client's default allowed-event set (spec §4.D/§4.F): any event type
// that appears in either table, for any kind, is allowed by default.
// Per-event dispatch itself is done through each Event's Related/Finish
// methods (see event.go) rather than by re-deriving field names from
// these tables at runtime.
var relatedEvents = map[Kind]map[string]bool{
	KindChannel: {
		"ChannelCreated": true, "ChannelDestroyed": true, "ChannelEnteredBridge": true,
		"ChannelLeftBridge": true, "ChannelStateChange": true, "ChannelDtmfReceived": true,
		"ChannelDialplan": true, "ChannelCallerId": true, "ChannelHangupRequest": true,
		"ChannelVarset": true, "ChannelHold": true, "ChannelUnhold": true,
		"ChannelTalkingStarted": true, "ChannelTalkingFinished": true, "Dial": true,
		"StasisStart": true, "StasisEnd": true, "ChannelConnectedLine": true,
	},
	KindBridge: {
		"BridgeCreated": true, "BridgeDestroyed": true, "BridgeMerged": true,
		"ChannelEnteredBridge": true, "ChannelLeftBridge": true, "ChannelUserevent": true,
	},
	KindPlayback: {
		"PlaybackStarted": true, "PlaybackContinuing": true, "PlaybackFinished": true,
	},
}

var finishEvents = map[Kind]map[string]bool{
	KindChannel:  {"ChannelDestroyed": true, "StasisEnd": true},
	KindBridge:   {"BridgeDestroyed": true},
	KindPlayback: {"PlaybackFinished": true},
}

// defaultAllowedEvents is the union of every event type named by the
// association tables plus the always-recognized base set from spec §6.
func defaultAllowedEvents() map[string]bool {
	allowed := map[string]bool{
		"StasisStart": true, "StasisEnd": true, "Dial": true,
		"ChannelCreated": true, "ChannelDestroyed": true,
		"PlaybackStarted": true, "PlaybackFinished": true,
		"ChannelDtmfReceived": true,
	}
	for _, byType := range relatedEvents {
		for t := range byType {
			allowed[t] = true
		}
	}
	for _, byType := range finishEvents {
		for t := range byType {
			allowed[t] = true
		}
	}
	return allowed
}

// parsers maps an event type string to its constructor. Unknown types are
// dropped at the parse boundary (spec §4.A, §7.2).
var parsers map[string]func(c *Client, raw map[string]any) (Event, error)

func init() {
	parsers = map[string]func(c *Client, raw map[string]any) (Event, error){
		"MissingParams": func(c *Client, raw map[string]any) (Event, error) {
			return MissingParams{base: newBase(raw), Params: stringSliceField(raw, "params")}, nil
		},
		"DeviceStateChanged": func(c *Client, raw map[string]any) (Event, error) {
			return DeviceStateChanged{base: newBase(raw), DeviceState: stringField(raw, "device_state")}, nil
		},
		"ContactStatusChange": func(c *Client, raw map[string]any) (Event, error) {
			return ContactStatusChange{
				base:        newBase(raw),
				Endpoint:    mapField(raw, "endpoint"),
				ContactInfo: mapField(raw, "contact_info"),
			}, nil
		},
		"PeerStatusChange": func(c *Client, raw map[string]any) (Event, error) {
			return PeerStatusChange{base: newBase(raw), Endpoint: mapField(raw, "endpoint"), Peer: mapField(raw, "peer")}, nil
		},
		"EndpointStateChange": func(c *Client, raw map[string]any) (Event, error) {
			return EndpointStateChange{base: newBase(raw), Endpoint: mapField(raw, "endpoint")}, nil
		},
		"RecordingStarted": func(c *Client, raw map[string]any) (Event, error) {
			return RecordingStarted{base: newBase(raw), Recording: mapField(raw, "recording")}, nil
		},
		"RecordingFinished": func(c *Client, raw map[string]any) (Event, error) {
			return RecordingFinished{base: newBase(raw), Recording: mapField(raw, "recording")}, nil
		},
		"RecordingFailed": func(c *Client, raw map[string]any) (Event, error) {
			return RecordingFailed{base: newBase(raw), Recording: mapField(raw, "recording")}, nil
		},
		"PlaybackStarted": func(c *Client, raw map[string]any) (Event, error) {
			p, err := requirePlayback(c, raw, "playback")
			if err != nil {
				return nil, err
			}
			return PlaybackStarted{base: newBase(raw), Playback: p}, nil
		},
		"PlaybackContinuing": func(c *Client, raw map[string]any) (Event, error) {
			p, err := requirePlayback(c, raw, "playback")
			if err != nil {
				return nil, err
			}
			return PlaybackContinuing{base: newBase(raw), Playback: p}, nil
		},
		"PlaybackFinished": func(c *Client, raw map[string]any) (Event, error) {
			p, err := requirePlayback(c, raw, "playback")
			if err != nil {
				return nil, err
			}
			return PlaybackFinished{base: newBase(raw), Playback: p}, nil
		},
		"BridgeCreated": func(c *Client, raw map[string]any) (Event, error) {
			b, err := requireBridge(c, raw, "bridge")
			if err != nil {
				return nil, err
			}
			return BridgeCreated{base: newBase(raw), Bridge: b}, nil
		},
		"BridgeDestroyed": func(c *Client, raw map[string]any) (Event, error) {
			b, err := requireBridge(c, raw, "bridge")
			if err != nil {
				return nil, err
			}
			return BridgeDestroyed{base: newBase(raw), Bridge: b}, nil
		},
		"BridgeMerged": func(c *Client, raw map[string]any) (Event, error) {
			b, err := requireBridge(c, raw, "bridge")
			if err != nil {
				return nil, err
			}
			bf, err := requireBridge(c, raw, "bridge_from")
			if err != nil {
				return nil, err
			}
			return BridgeMerged{base: newBase(raw), Bridge: b, BridgeFrom: bf}, nil
		},
		"ChannelUserevent": func(c *Client, raw map[string]any) (Event, error) {
			return ChannelUserevent{
				base:      newBase(raw),
				EventName: stringField(raw, "eventname"),
				Userevent: mapField(raw, "userevent"),
				Endpoint:  mapField(raw, "endpoint"),
				Channel:   optionalChannel(c, raw, "channel"),
				Bridge:    optionalBridge(c, raw, "bridge"),
			}, nil
		},
		"ChannelCreated": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelCreated{base: newBase(raw), Channel: ch}, nil
		},
		"ChannelDestroyed": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelDestroyed{
				base: newBase(raw), Cause: intField(raw, "cause"),
				CauseTxt: stringField(raw, "cause_txt"), Channel: ch,
			}, nil
		},
		"ChannelEnteredBridge": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			b, err := requireBridge(c, raw, "bridge")
			if err != nil {
				return nil, err
			}
			return ChannelEnteredBridge{base: newBase(raw), Channel: ch, Bridge: b}, nil
		},
		"ChannelLeftBridge": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			b, err := requireBridge(c, raw, "bridge")
			if err != nil {
				return nil, err
			}
			return ChannelLeftBridge{base: newBase(raw), Channel: ch, Bridge: b}, nil
		},
		"ChannelStateChange": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelStateChange{base: newBase(raw), Channel: ch}, nil
		},
		"ChannelDtmfReceived": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelDtmfReceived{
				base: newBase(raw), Digit: stringField(raw, "digit"),
				DurationMs: intField(raw, "duration_ms"), Channel: ch,
			}, nil
		},
		"ChannelDialplan": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelDialplan{
				base: newBase(raw), DialplanApp: stringField(raw, "dialplan_app"),
				DialplanAppData: stringField(raw, "dialplan_app_data"), Channel: ch,
			}, nil
		},
		"ChannelCallerId": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelCallerId{
				base: newBase(raw), CallerPresentation: intField(raw, "caller_presentation"),
				CallerPresentationTxt: stringField(raw, "caller_presentation_txt"), Channel: ch,
			}, nil
		},
		"ChannelHangupRequest": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelHangupRequest{
				base: newBase(raw), Cause: intField(raw, "cause"),
				Soft: boolField(raw, "soft"), Channel: ch,
			}, nil
		},
		"ChannelVarset": func(c *Client, raw map[string]any) (Event, error) {
			return ChannelVarset{
				base: newBase(raw), Variable: stringField(raw, "variable"),
				Value: stringField(raw, "value"), Channel: optionalChannel(c, raw, "channel"),
			}, nil
		},
		"ChannelHold": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelHold{base: newBase(raw), Musicclass: stringField(raw, "musicclass"), Channel: ch}, nil
		},
		"ChannelUnhold": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelUnhold{base: newBase(raw), Channel: ch}, nil
		},
		"ChannelTalkingStarted": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelTalkingStarted{base: newBase(raw), Channel: ch}, nil
		},
		"ChannelTalkingFinished": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelTalkingFinished{base: newBase(raw), Duration: intField(raw, "duration"), Channel: ch}, nil
		},
		"ChannelConnectedLine": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return ChannelConnectedLine{base: newBase(raw), Channel: ch}, nil
		},
		"Dial": func(c *Client, raw map[string]any) (Event, error) {
			peer, err := requireChannel(c, raw, "peer")
			if err != nil {
				return nil, err
			}
			return Dial{
				base: newBase(raw), Dialstring: stringField(raw, "dialstring"),
				Dialstatus: stringField(raw, "dialstatus"),
				Caller:     optionalChannel(c, raw, "caller"),
				Peer:       peer,
				Forwarded:  optionalChannel(c, raw, "forwarded"),
			}, nil
		},
		"StasisStart": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return StasisStart{
				base: newBase(raw), Args: stringSliceField(raw, "args"),
				Channel: ch, ReplaceChannel: optionalChannel(c, raw, "replace_channel"),
			}, nil
		},
		"StasisEnd": func(c *Client, raw map[string]any) (Event, error) {
			ch, err := requireChannel(c, raw, "channel")
			if err != nil {
				return nil, err
			}
			return StasisEnd{base: newBase(raw), Channel: ch}, nil
		},
	}
}

func requireChannel(c *Client, raw map[string]any, field string) (*Channel, error) {
	m := mapField(raw, field)
	if m == nil {
		return nil, eris.Errorf("event missing required channel field %q", field)
	}
	return c.registry.channels.getOrCreate(m), nil
}

func optionalChannel(c *Client, raw map[string]any, field string) *Channel {
	m := mapField(raw, field)
	if m == nil {
		return nil
	}
	return c.registry.channels.getOrCreate(m)
}

func requireBridge(c *Client, raw map[string]any, field string) (*Bridge, error) {
	m := mapField(raw, field)
	if m == nil {
		return nil, eris.Errorf("event missing required bridge field %q", field)
	}
	return c.registry.bridges.getOrCreate(m), nil
}

func optionalBridge(c *Client, raw map[string]any, field string) *Bridge {
	m := mapField(raw, field)
	if m == nil {
		return nil
	}
	return c.registry.bridges.getOrCreate(m)
}

func requirePlayback(c *Client, raw map[string]any, field string) (*Playback, error) {
	m := mapField(raw, field)
	if m == nil {
		return nil, eris.Errorf("event missing required playback field %q", field)
	}
	return c.registry.playbacks.getOrCreate(m), nil
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
