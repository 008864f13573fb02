package calldriver

import (
	"context"
	"testing"
	"time"

	log15 "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twobarrels/ari-loadgen/ari"
)

func discardLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

// TestCallRunSingleHappyPath is spec.md §8 end-to-end scenario 1: a
// single PJSIP channel runs the full answer -> bridge -> record -> snoop
// -> external-media -> play -> teardown state machine against a mock ARI
// server, and every REST call and final counter is checked against the
// scenario's expectations.
func TestCallRunSingleHappyPath(t *testing.T) {
	mock := newMockARI(t)
	host, port := mock.hostPort()

	client := ari.NewClient(ari.Config{
		Host: host, Port: port, Username: "u", Secret: "p", App: "loadgen",
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	var stats Stats
	cl := newCall(client, &stats, nil, discardLogger())

	const channelID = "ch1"
	client.OnEntityEvent("StasisStart", channelID, "test-start", func(c *ari.Client, e ari.Event, entityID string) {
		c.RemoveEntityEvent("StasisStart", entityID, "test-start")
		start, ok := e.(ari.StasisStart)
		if !ok || start.Channel == nil || start.Channel.Protocol() != "PJSIP" {
			return
		}
		cl.run(entityID)
	})

	_, err := client.CreateChannel(channelID, "PJSIP/100@t", "c", nil, 30)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return stats.Snapshot()["finished"] == 1
	}, 2*time.Second, 10*time.Millisecond, "call never reached teardown")

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(1), snapshot["answered"])
	assert.Equal(t, int64(1), snapshot["bridge_created"], "bridge_created must count only the sound bridge, not the media bridge too")
	assert.Equal(t, int64(1), snapshot["channel_added"])
	assert.Equal(t, int64(1), snapshot["playback_started"])
	assert.Equal(t, int64(1), snapshot["playback_finished"])
	assert.Equal(t, int64(1), snapshot["finished"])

	assert.Equal(t, 1, mock.requestCount("POST /channels/ch1?"))
	assert.Equal(t, 1, mock.requestCount("POST /channels/ch1/answer"))
	assert.Equal(t, 2, mock.requestCount("POST /bridges?"))
	assert.Equal(t, 1, mock.requestCount("/bridges/bridge-1/addChannel"))
	assert.Equal(t, 1, mock.requestCount("/bridges/bridge-1/record"))
	assert.Equal(t, 1, mock.requestCount("POST /channels/ch1/snoop"))
	assert.Equal(t, 1, mock.requestCount("POST /channels/externalMedia"))
	assert.Equal(t, 1, mock.requestCount("/bridges/bridge-1/play"))
	assert.Equal(t, 1, mock.requestCount("DELETE /channels/ch1?"))
	assert.Equal(t, 1, mock.requestCount("DELETE /channels/snoop-ch1"))
	assert.Equal(t, 1, mock.requestCount("DELETE /channels/robot_"+cl.id))
	assert.Equal(t, 2, mock.requestCount("DELETE /bridges/bridge-"))
}

// TestCallRunIgnoresNonPjsipSipProtocol is spec.md §8's "Protocol gate"
// property, checked through a test-local StasisStart handler that applies
// the same PJSIP/SIP switch as Driver.handleStasisStart: a StasisStart
// whose channel name doesn't start with PJSIP/ or SIP/ must never enter
// the call state machine.
func TestCallRunIgnoresNonPjsipSipProtocol(t *testing.T) {
	mock := newMockARI(t)
	host, port := mock.hostPort()

	client := ari.NewClient(ari.Config{
		Host: host, Port: port, Username: "u", Secret: "p", App: "loadgen",
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	var stats Stats
	cl := newCall(client, &stats, nil, discardLogger())

	const channelID = "ch-local"
	ran := make(chan struct{}, 1)
	client.OnEntityEvent("StasisStart", channelID, "test-start", func(c *ari.Client, e ari.Event, entityID string) {
		c.RemoveEntityEvent("StasisStart", entityID, "test-start")
		start, ok := e.(ari.StasisStart)
		if !ok || start.Channel == nil {
			return
		}
		switch start.Channel.Protocol() {
		case "PJSIP", "SIP":
		default:
			return
		}
		cl.run(entityID)
		ran <- struct{}{}
	})

	_, err := client.CreateChannel(channelID, "Local/100@t", "c", nil, 30)
	require.NoError(t, err)

	select {
	case <-ran:
		t.Fatal("call state machine ran for a non-PJSIP/SIP channel")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int64(0), stats.Snapshot()["answered"])
}
