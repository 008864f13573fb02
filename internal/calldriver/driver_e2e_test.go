package calldriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twobarrels/ari-loadgen/ari"
	"github.com/twobarrels/ari-loadgen/internal/telemetry"
)

// TestAdmissionCapBlocksThirdOriginationUntilPermitReleased is spec.md §8
// end-to-end scenario 2: with count=2, a third origination must not even
// issue its create-channel REST call until a ChannelDestroyed frees a
// permit. This is also the direct regression test for the permit-leak
// bug: admission permits used to be released by a per-entity
// ChannelDestroyed callback, which StasisEnd (also a finish event for
// Channel) evicts before ChannelDestroyed ever arrives — so the loop
// wedged forever after exactly `count` originations.
func TestAdmissionCapBlocksThirdOriginationUntilPermitReleased(t *testing.T) {
	mock := newMockARI(t)
	mock.autoFinishPlayback = false
	mock.autoDestroyOnClose = false
	host, port := mock.hostPort()

	client := ari.NewClient(ari.Config{
		Host: host, Port: port, Username: "u", Secret: "p", App: "loadgen",
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	pub, err := telemetry.New("", discardLogger())
	require.NoError(t, err)

	driver := New(Config{
		Count: 2, Driver: "PJSIP", Trunk: "t", Phone: "100", CallerID: "c",
	}, client, pub, discardLogger())

	go driver.Run(ctx)

	require.Eventually(t, func() bool {
		return mock.requestCount("POST /channels/1?") == 1 && mock.requestCount("POST /channels/2?") == 1
	}, time.Second, 5*time.Millisecond, "expected exactly two originations to proceed under the admission cap")

	// Generous window for a would-be third origination to (wrongly) slip through.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, mock.requestCount("POST /channels/3?"), "a third origination must not proceed while both permits are held")

	mock.pushEvent("ChannelDestroyed", map[string]any{
		"channel":   map[string]any{"id": "1", "name": "PJSIP/1", "state": "Down"},
		"cause":     16,
		"cause_txt": "Normal Clearing",
	})

	require.Eventually(t, func() bool {
		return mock.requestCount("POST /channels/3?") == 1
	}, time.Second, 5*time.Millisecond, "releasing one permit must let the third origination proceed")
}

// TestAdmissionBoundDoesNotWedgeAfterCountOriginations drives many calls
// to completion under a small admission cap and asserts the total number
// originated exceeds the cap — the exact scenario the permit-leak bug
// broke, where the generator would originate exactly `count` calls and
// then block forever.
func TestAdmissionBoundDoesNotWedgeAfterCountOriginations(t *testing.T) {
	mock := newMockARI(t)
	host, port := mock.hostPort()

	client := ari.NewClient(ari.Config{
		Host: host, Port: port, Username: "u", Secret: "p", App: "loadgen",
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	defer client.Close()

	pub, err := telemetry.New("", discardLogger())
	require.NoError(t, err)

	driver := New(Config{
		Count: 3, Driver: "PJSIP", Trunk: "t", Phone: "100", CallerID: "c",
	}, client, pub, discardLogger())

	go driver.Run(ctx)

	require.Eventually(t, func() bool {
		return driver.Stats().Snapshot()["sent_calls"] >= 6
	}, 5*time.Second, 20*time.Millisecond, "driver wedged after the first `count` originations — admission permits were never released")
}
