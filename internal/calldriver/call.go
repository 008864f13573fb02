package calldriver

import (
	"fmt"

	log15 "github.com/inconshreveable/log15"

	"github.com/twobarrels/ari-loadgen/ari"
	"github.com/twobarrels/ari-loadgen/internal/telemetry"
)

const (
	externalMediaHost = "127.0.0.1"
	externalMediaPort = 55444
	soundsPath        = "sounds"
)

// call runs one channel through the answer -> bridge -> record -> snoop
// -> external-media -> play -> teardown state machine of spec.md §4.G.
// Its id namespaces every resource the call creates.
type call struct {
	id     string
	client *ari.Client
	stats  *Stats
	pub    telemetry.Publisher
	log    log15.Logger

	soundBridge *ari.Bridge
	mediaBridge *ari.Bridge
	snoopID     string
	robotID     string
}

func newCall(client *ari.Client, stats *Stats, pub telemetry.Publisher, log log15.Logger) *call {
	return &call{id: newCallID(), client: client, stats: stats, pub: pub, log: log}
}

// run drives the answer -> bridge -> record -> snoop -> external-media ->
// play -> teardown state machine of spec.md §4.G for channelID. Called
// from the driver's class-level StasisStart handler once the protocol
// gate has already let the channel through.
func (cl *call) run(channelID string) {
	if err := cl.client.Answer(channelID); err != nil {
		cl.log.Error("answer failed", "call", cl.id, "channel", channelID, "err", err)
		return
	}
	cl.stats.incAnswered()

	soundBridge, err := cl.client.CreateBridge()
	if err != nil {
		cl.log.Error("sound bridge create failed", "call", cl.id, "err", err)
		return
	}
	cl.soundBridge = soundBridge
	cl.stats.incBridgeCreated()

	if err := cl.client.AddToBridge(soundBridge.ID(), []string{channelID}); err != nil {
		cl.log.Error("add to sound bridge failed", "call", cl.id, "err", err)
		return
	}
	cl.stats.incChannelAdded()

	go func() {
		if err := cl.client.RecordBridge(soundBridge.ID(), "test_"+cl.id, "wav"); err != nil {
			cl.log.Debug("bridge record failed", "call", cl.id, "err", err)
		}
	}()

	mediaBridge, err := cl.client.CreateBridge()
	if err != nil {
		cl.log.Error("media bridge create failed", "call", cl.id, "err", err)
		return
	}
	cl.mediaBridge = mediaBridge

	snoopChannel, err := cl.client.StartSnoop(channelID)
	if err != nil {
		cl.log.Error("snoop failed", "call", cl.id, "err", err)
		return
	}
	cl.snoopID = snoopChannel.ID()

	cl.robotID = "robot_" + cl.id
	cl.client.OnEntityEvent("StasisStart", cl.robotID, "call-robot-start", func(c *ari.Client, e ari.Event, entityID string) {
		c.RemoveEntityEvent("StasisStart", entityID, "call-robot-start")
		if err := c.AddToBridge(cl.mediaBridge.ID(), []string{cl.snoopID, cl.robotID}); err != nil {
			cl.log.Error("add robot/snoop to media bridge failed", "call", cl.id, "err", err)
		}
	})

	if _, err := cl.client.ExternalMedia(externalMediaHost, externalMediaPort, "", cl.robotID); err != nil {
		cl.log.Error("external media failed", "call", cl.id, "err", err)
		return
	}

	media := fmt.Sprintf("sound:%s/mid_sound", soundsPath)
	playback, err := cl.client.PlayBridge(soundBridge.ID(), media)
	if err != nil {
		cl.log.Error("play failed", "call", cl.id, "err", err)
		return
	}
	cl.stats.incPlaybackStarted()
	cl.publish("playback_started")

	cl.client.OnEntityEvent("PlaybackFinished", playback.ID(), "call-playback-finished", func(c *ari.Client, e ari.Event, entityID string) {
		cl.teardown(channelID)
	})
}

func (cl *call) teardown(channelID string) {
	cl.stats.incPlaybackFinished()
	cl.publish("playback_finished")

	if err := cl.client.CloseChannel(channelID); err != nil {
		cl.log.Debug("close incoming channel failed", "call", cl.id, "err", err)
	}
	if cl.snoopID != "" {
		if err := cl.client.CloseChannel(cl.snoopID); err != nil {
			cl.log.Debug("close snoop channel failed", "call", cl.id, "err", err)
		}
	}
	if cl.robotID != "" {
		if err := cl.client.CloseChannel(cl.robotID); err != nil {
			cl.log.Debug("close robot channel failed", "call", cl.id, "err", err)
		}
	}
	if cl.soundBridge != nil {
		if err := cl.client.CloseBridge(cl.soundBridge.ID()); err != nil {
			cl.log.Debug("close sound bridge failed", "call", cl.id, "err", err)
		}
	}
	if cl.mediaBridge != nil {
		if err := cl.client.CloseBridge(cl.mediaBridge.ID()); err != nil {
			cl.log.Debug("close media bridge failed", "call", cl.id, "err", err)
		}
	}

	cl.stats.incFinished()
	cl.publish("finished")
}

func (cl *call) publish(stage string) {
	if cl.pub == nil {
		return
	}
	cl.pub.PublishEvent(stage, map[string]string{"call_id": cl.id})
}
