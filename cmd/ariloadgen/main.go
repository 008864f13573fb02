// Command ariloadgen originates and drives load-testing calls against
// an Asterisk PBX over ARI, reporting final statistics on exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log15 "github.com/inconshreveable/log15"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/twobarrels/ari-loadgen/ari"
	"github.com/twobarrels/ari-loadgen/internal/calldriver"
	"github.com/twobarrels/ari-loadgen/internal/config"
	"github.com/twobarrels/ari-loadgen/internal/telemetry"
	"github.com/twobarrels/ari-loadgen/internal/udpsink"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var asteriskPath, callsPath string

	root := &cobra.Command{
		Use:   "ariloadgen",
		Short: "Originate and drive load-testing calls against an Asterisk PBX over ARI",
	}
	root.PersistentFlags().StringVar(&asteriskPath, "asterisk-config", "configs/asterisk.ini", "path to asterisk.ini")
	root.PersistentFlags().StringVar(&callsPath, "calls-config", "configs/calls.ini", "path to calls.ini")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the load generator until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadgen(asteriskPath, callsPath)
		},
	}
	root.AddCommand(run)
	return root
}

func runLoadgen(asteriskPath, callsPath string) error {
	log := log15.New()
	log.SetHandler(log15.StreamHandler(os.Stderr, log15.LogfmtFormat()))

	cfg, err := config.Load(asteriskPath, callsPath)
	if err != nil {
		return eris.Wrap(err, "load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := ari.NewClient(ari.Config{
		Host:     cfg.ARI.Host,
		Port:     cfg.ARI.Port,
		Username: cfg.ARI.Username,
		Secret:   cfg.ARI.Secret,
		App:      cfg.ARI.App,
	}, log.New("component", "ari"))

	sink, err := udpsink.Start(log.New("component", "udpsink"))
	if err != nil {
		return eris.Wrap(err, "start external media sink")
	}
	defer sink.Close()

	pub, err := telemetry.New(cfg.Telemetry.BusURL, log.New("component", "telemetry"))
	if err != nil {
		return eris.Wrap(err, "configure telemetry")
	}
	if err := pub.Connect(); err != nil {
		return eris.Wrap(err, "connect telemetry bus")
	}
	defer pub.Close()

	client.OnAnyEvent("telemetry-fanout", func(c *ari.Client, e ari.Event) {
		pub.PublishEvent(e.Type(), map[string]string{
			"application": e.Application(),
			"timestamp":   e.Timestamp(),
			"asterisk_id": e.AsteriskID(),
		})
	})

	driver := calldriver.New(calldriver.Config{
		Count:    cfg.Calls.Count,
		Driver:   cfg.Calls.Driver,
		Trunk:    cfg.Calls.Trunk,
		Phone:    cfg.Calls.Phone,
		CallerID: cfg.Calls.CallerID,
	}, client, pub, log.New("component", "calldriver"))

	go client.Run(ctx)
	driver.Run(ctx)

	<-ctx.Done()
	client.Close()

	pub.PublishStats(driver.Stats().Snapshot())
	driver.Stats().Print(os.Stdout)
	fmt.Fprintln(os.Stdout, "external media packets received:", sink.Packets())

	return nil
}
