package tempo

import (
	"math"
	"testing"

	"github.com/sound2osc/engine/internal/trigger"
)

var dummyTemplate = trigger.OscTemplate{Address: "/test"}

// feedSteadyBeat reports onsets at a fixed interval starting at t0,
// returning the last estimate.
func feedSteadyBeat(e *Estimator, t0, interval float64, count int) Estimate {
	var est Estimate
	t := t0
	for i := 0; i < count; i++ {
		est = e.ReportOnset(t)
		t += interval
	}
	return est
}

func TestLocksOntoSteadyTempo(t *testing.T) {
	e := New(75, 200)
	const bpm = 120.0
	interval := 60.0 / bpm

	est := feedSteadyBeat(e, 0, interval, 30)

	if !est.HaveBPM {
		t.Fatalf("expected a locked BPM estimate after 30 steady onsets")
	}
	if math.Abs(est.BPM-bpm) > 2 {
		t.Fatalf("BPM = %v, want close to %v", est.BPM, bpm)
	}
}

func TestStalenessAfterSilence(t *testing.T) {
	e := New(75, 200)
	feedSteadyBeat(e, 0, 0.5, 10)

	est := e.Tick(2.0)
	if est.Stale {
		t.Fatalf("marked stale only 2s after last onset, want not stale yet")
	}

	est = e.Tick(10.0)
	if !est.Stale {
		t.Fatalf("expected stale after 5s+ without onsets")
	}
}

func TestNoOnsetsIsStaleFromStart(t *testing.T) {
	e := New(75, 200)
	est := e.Tick(0)
	if !est.Stale {
		t.Fatalf("estimator with no onsets ever reported should start stale")
	}
}

func TestOctaveResolutionPrefersVariantNearPreviousLock(t *testing.T) {
	e := New(75, 200)
	// Lock onto 120 BPM first.
	feedSteadyBeat(e, 0, 60.0/120.0, 30)
	locked := e.estimate.BPM

	// Now feed onsets at half that interval (i.e. true tempo looks like
	// 240 BPM to a naive peak-picker) continuing from where we left off.
	t0 := float64(30) * (60.0 / 120.0)
	est := feedSteadyBeat(e, t0, 60.0/240.0, 30)

	// Octave resolution should keep the estimate near the previous lock
	// (120) rather than jumping to 240, since 120 is closer to the locked
	// value across {60,120,240}.
	if math.Abs(est.BPM-locked) > math.Abs(est.BPM-240) {
		t.Fatalf("BPM = %v drifted toward the octave-up candidate instead of staying near the previous lock %v", est.BPM, locked)
	}
}

func TestBeatEmitterSuppressesSmallBPMChanges(t *testing.T) {
	be := NewBeatEmitter(&dummyTemplate, &dummyTemplate)
	ev := be.OnEstimate(Estimate{BPM: 120, HaveBPM: true})
	if len(ev) != 1 {
		t.Fatalf("first estimate should always emit, got %d emissions", len(ev))
	}

	ev = be.OnEstimate(Estimate{BPM: 120.2, HaveBPM: true})
	if len(ev) != 0 {
		t.Fatalf("a 0.2 BPM change should be suppressed, got %+v", ev)
	}

	ev = be.OnEstimate(Estimate{BPM: 121.0, HaveBPM: true})
	if len(ev) != 1 {
		t.Fatalf("a 1.0 BPM change should emit, got %d emissions", len(ev))
	}
}

func TestBeatEmitterSuppressesWhileStale(t *testing.T) {
	be := NewBeatEmitter(&dummyTemplate, &dummyTemplate)
	if ev := be.OnEstimate(Estimate{BPM: 120, HaveBPM: true, Stale: true}); len(ev) != 0 {
		t.Fatalf("stale estimate must not emit BPM, got %+v", ev)
	}
	if ev := be.OnOnset(Estimate{Stale: true}); len(ev) != 0 {
		t.Fatalf("onset while stale must not emit beat, got %+v", ev)
	}
}

func TestBeatEmitterMuteSuppressesBoth(t *testing.T) {
	be := NewBeatEmitter(&dummyTemplate, &dummyTemplate)
	be.Mute = true
	if ev := be.OnEstimate(Estimate{BPM: 120, HaveBPM: true}); len(ev) != 0 {
		t.Fatalf("muted emitter must not emit BPM, got %+v", ev)
	}
	if ev := be.OnOnset(Estimate{}); len(ev) != 0 {
		t.Fatalf("muted emitter must not emit beat, got %+v", ev)
	}
}
