package ari

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return &Client{app: "test-app", registry: newEntityRegistry(), cb: newCallbackRegistry()}
}

func TestParseStasisStart(t *testing.T) {
	c := testClient()
	raw := map[string]any{
		"type":      "StasisStart",
		"timestamp": "2026-01-01T00:00:00.000Z",
		"args":      []any{"a", "b"},
		"channel":   map[string]any{"id": "ch1", "name": "PJSIP/100-1"},
	}

	build, ok := parsers["StasisStart"]
	require.True(t, ok)

	event, err := build(c, raw)
	require.NoError(t, err)

	start, ok := event.(StasisStart)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, start.Args)
	require.NotNil(t, start.Channel)
	assert.Equal(t, "ch1", start.Channel.ID())
	assert.Equal(t, "PJSIP", start.Channel.Protocol())
}

func TestParseChannelDestroyedMissingChannelErrors(t *testing.T) {
	c := testClient()
	raw := map[string]any{"type": "ChannelDestroyed"}

	build, ok := parsers["ChannelDestroyed"]
	require.True(t, ok)

	_, err := build(c, raw)
	assert.Error(t, err)
}

func TestParseReusesCanonicalChannel(t *testing.T) {
	c := testClient()
	existing := c.registry.channels.getOrCreate(map[string]any{"id": "ch1", "name": "PJSIP/100-1"})

	build := parsers["ChannelStateChange"]
	event, err := build(c, map[string]any{
		"type":    "ChannelStateChange",
		"channel": map[string]any{"id": "ch1", "state": "Up"},
	})
	require.NoError(t, err)

	change := event.(ChannelStateChange)
	assert.Same(t, existing, change.Channel)
	assert.Equal(t, "Up", change.Channel.state)
}

func TestDefaultAllowedEventsCoversAssociationTables(t *testing.T) {
	allowed := defaultAllowedEvents()
	for _, byType := range relatedEvents {
		for eventType := range byType {
			assert.True(t, allowed[eventType], "expected %s to be allowed by default", eventType)
		}
	}
	for _, byType := range finishEvents {
		for eventType := range byType {
			assert.True(t, allowed[eventType], "expected %s to be allowed by default", eventType)
		}
	}
}
