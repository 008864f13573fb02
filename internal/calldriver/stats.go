package calldriver

import (
	"fmt"
	"io"
	"sync/atomic"
)

// counterNames fixes the emission order for Stats.Print, matching the
// one-line-per-counter shutdown report.
var counterNames = []string{
	"playback_started", "playback_finished", "answered",
	"bridge_created", "channel_added", "finished",
}

// Stats aggregates per-call lifecycle counters across the whole run.
// sent_calls is updated from the origination goroutines and every other
// counter from the dispatcher goroutine, where the call state machine and
// its PlaybackFinished callback run. The counters are atomics, so
// Snapshot and Print may be called while calls are still in flight.
type Stats struct {
	sentCalls atomic.Int64

	playbackStarted  atomic.Int64
	playbackFinished atomic.Int64
	answered         atomic.Int64
	bridgeCreated    atomic.Int64
	channelAdded     atomic.Int64
	finished         atomic.Int64
}

func (s *Stats) incSentCalls()        { s.sentCalls.Add(1) }
func (s *Stats) incPlaybackStarted()  { s.playbackStarted.Add(1) }
func (s *Stats) incPlaybackFinished() { s.playbackFinished.Add(1) }
func (s *Stats) incAnswered()         { s.answered.Add(1) }
func (s *Stats) incBridgeCreated()    { s.bridgeCreated.Add(1) }
func (s *Stats) incChannelAdded()     { s.channelAdded.Add(1) }
func (s *Stats) incFinished()         { s.finished.Add(1) }

// Snapshot returns the current counters as a plain map, for telemetry
// publication and testing.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"sent_calls":        s.sentCalls.Load(),
		"playback_started":  s.playbackStarted.Load(),
		"playback_finished": s.playbackFinished.Load(),
		"answered":          s.answered.Load(),
		"bridge_created":    s.bridgeCreated.Load(),
		"channel_added":     s.channelAdded.Load(),
		"finished":          s.finished.Load(),
	}
}

// Print writes the final statistics block: "sent_calls:\t<n>" followed
// by each counter on its own line, in counterNames order.
func (s *Stats) Print(w io.Writer) {
	snapshot := s.Snapshot()
	fmt.Fprintf(w, "sent_calls:\t%d\n", snapshot["sent_calls"])
	for _, name := range counterNames {
		fmt.Fprintf(w, "%s:\t%d\n", name, snapshot[name])
	}
}
