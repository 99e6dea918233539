// Package main wires together a fixture audio source, the realtime
// analysis engine, and a UDP OSC transport, and runs them until the
// process receives a shutdown signal.
//
// Usage:
//
//	sound2osc -fixture silence|click|FILE.wav -osc-addr host:port -tick-hz 44
//
// File-backed configuration and preset directory management are out of
// scope for the engine itself (spec.md §1), so this command has no
// -config flag: it only selects a fixture source (a built-in generator or
// a WAV file path), the OSC destination to dial, and the tick rate.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/sound2osc/engine/internal/audiosource"
	"github.com/sound2osc/engine/internal/diagnostics"
	"github.com/sound2osc/engine/internal/engine"
	"github.com/sound2osc/engine/internal/osc"
	"github.com/sound2osc/engine/internal/util"
)

const sampleRate = 44100.0

func main() {
	fixture := flag.String("fixture", "silence", "Fixture audio source: silence, click, or a path to a .wav file")
	oscAddr := flag.String("osc-addr", "127.0.0.1:9000", "UDP host:port to send OSC messages to")
	tickHz := flag.Float64("tick-hz", 44.0, "Analysis tick rate in Hz")
	flag.Parse()

	sink := diagnostics.NewLogSink(nil)

	transport, err := osc.NewUDPTransport(*oscAddr, sink)
	if err != nil {
		slog.Error("failed to open OSC transport", "error", err)
		os.Exit(1)
	}

	eng := engine.New(engine.Config{
		SampleRate: sampleRate,
		TickHz:     *tickHz,
		Protocol:   osc.Protocol10,
	}, sink, transport)

	src, err := sourceFromFixture(*fixture)
	if err != nil {
		slog.Error("failed to build fixture source", "error", err)
		os.Exit(1)
	}
	eng.AttachSource(src)

	slog.Info("starting engine", "fixture", *fixture, "osc_addr", *oscAddr, "tick_hz", *tickHz)
	if err := eng.Start(); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")
	if err := eng.Stop(); err != nil {
		slog.Error("error stopping engine", "error", err)
	}
	slog.Info("shutdown complete")
}

func sourceFromFixture(name string) (audiosource.Source, error) {
	switch name {
	case "silence":
		return audiosource.NewSilenceSource(sampleRate), nil
	case "click":
		return audiosource.NewClickTrainSource(0.5, 256, sampleRate), nil
	case "":
		return nil, fmt.Errorf("fixture name is required")
	default:
		return audiosource.NewWAVFileSource(name), nil
	}
}
