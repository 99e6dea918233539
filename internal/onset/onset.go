// Package onset implements spectral-flux onset detection over the
// bass-to-low-mid portion of the spectrum (spec §4.6).
package onset

import (
	"math"

	"github.com/sound2osc/engine/internal/dsp/spectrum"
)

// HistoryCapacity is the bounded number of smoothed flux samples retained
// (≈ 23 s at 44 Hz).
const HistoryCapacity = 1024

// fluxSmoothingAlpha is the one-pole IIR coefficient applied to each new
// flux sample.
const fluxSmoothingAlpha = 0.2

// localWindowSamples is the number of recent samples the adaptive
// threshold is computed over (≈ 1 s at 44 Hz).
const localWindowSamples = 43

// onsetStdMultiplier scales the local standard deviation added to the
// local mean to form the adaptive onset threshold.
const onsetStdMultiplier = 1.5

// lowBandHz/highBandHz bound the sub-range of the spectrum spectral flux
// is computed over.
const (
	lowBandHz  = 20.0
	highBandHz = 200.0
)

// Sample is one entry of OnsetHistory: a smoothed flux value timestamped
// by the caller's tick counter.
type Sample struct {
	Tick uint64
	Flux float64
}

// Event is a declared onset, reported to the tempo estimator with the
// sample-time it occurred at.
type Event struct {
	Tick uint64
	Flux float64
}

// Tracker computes spectral flux over a fixed band range each tick,
// smooths it, and declares onsets against an adaptive local threshold.
type Tracker struct {
	bandLo, bandHi int // inclusive band index range covering [lowBandHz, highBandHz)

	prevBands    [spectrum.Bands]float64
	havePrev     bool
	smoothedFlux float64

	history     [HistoryCapacity]Sample
	historyLen  int
	historyNext int // next write position
}

// New builds a Tracker. spec is used only to resolve which of its bands
// fall in [lowBandHz, highBandHz) for this particular band layout.
func New(spec *spectrum.Spectrum) *Tracker {
	lo, hi := bandRangeFor(spec, lowBandHz, highBandHz)
	return &Tracker{bandLo: lo, bandHi: hi}
}

func bandRangeFor(spec *spectrum.Spectrum, loHz, hiHz float64) (int, int) {
	lo, hi := -1, -1
	for b := 0; b < spectrum.Bands; b++ {
		bLo, bHi := spec.BandFreqRange(b)
		if bHi <= loHz {
			continue
		}
		if bLo >= hiHz {
			break
		}
		if lo == -1 {
			lo = b
		}
		hi = b
	}
	if lo == -1 {
		lo, hi = 0, 0
	}
	return lo, hi
}

// Tick processes one FFT tick's spectrum, appends the smoothed flux to
// history, and reports whether an onset was declared.
func (t *Tracker) Tick(tick uint64, spec *spectrum.Spectrum) (Event, bool) {
	bands := spec.Normalized()

	var flux float64
	if t.havePrev {
		for b := t.bandLo; b <= t.bandHi; b++ {
			if d := bands[b] - t.prevBands[b]; d > 0 {
				flux += d
			}
		}
	}
	t.prevBands = *bands
	t.havePrev = true

	t.smoothedFlux = fluxSmoothingAlpha*flux + (1-fluxSmoothingAlpha)*t.smoothedFlux
	t.pushHistory(tick, t.smoothedFlux)

	mean, std := t.localStats(localWindowSamples)
	if t.smoothedFlux > mean+onsetStdMultiplier*std {
		return Event{Tick: tick, Flux: t.smoothedFlux}, true
	}
	return Event{}, false
}

func (t *Tracker) pushHistory(tick uint64, flux float64) {
	t.history[t.historyNext] = Sample{Tick: tick, Flux: flux}
	t.historyNext = (t.historyNext + 1) % HistoryCapacity
	if t.historyLen < HistoryCapacity {
		t.historyLen++
	}
}

// localStats returns the mean and standard deviation of the most recent
// min(n, history length) samples, most recent first.
func (t *Tracker) localStats(n int) (mean, std float64) {
	count := n
	if count > t.historyLen {
		count = t.historyLen
	}
	if count == 0 {
		return 0, 0
	}

	var sum float64
	for i := 0; i < count; i++ {
		sum += t.history[t.recentIndex(i)].Flux
	}
	mean = sum / float64(count)

	var variance float64
	for i := 0; i < count; i++ {
		d := t.history[t.recentIndex(i)].Flux - mean
		variance += d * d
	}
	variance /= float64(count)
	return mean, math.Sqrt(variance)
}

// recentIndex maps i (0 = most recent) to a slot in history.
func (t *Tracker) recentIndex(i int) int {
	return (t.historyNext - 1 - i + HistoryCapacity) % HistoryCapacity
}

// Len reports the number of samples currently retained (capped at
// HistoryCapacity).
func (t *Tracker) Len() int {
	return t.historyLen
}

// At returns the i-th most recent history sample (0 = most recent). It
// panics if i >= Len().
func (t *Tracker) At(i int) Sample {
	if i < 0 || i >= t.historyLen {
		panic("onset: history index out of range")
	}
	return t.history[t.recentIndex(i)]
}
