// Package tempo implements the inter-onset-interval histogram BPM tracker
// and beat emission policy (spec §4.7).
package tempo

import "math"

const (
	// ioiBinSeconds is the histogram bin width (10 ms).
	ioiBinSeconds = 0.010

	// ioiWindowSeconds bounds how far back a previous onset may be and
	// still contribute to the histogram for a new onset.
	ioiWindowSeconds = 2.0

	// ageDecaySeconds is the exponential age-weighting time constant.
	ageDecaySeconds = 2.0

	// blendOld/blendNew are the exponential blend weights applied when the
	// new candidate is within the deviation threshold of the locked BPM.
	blendOld = 0.7
	blendNew = 0.3

	// deviationThreshold is the fractional deviation from the locked BPM
	// below which the estimate blends instead of resetting.
	deviationThreshold = 0.05

	// staleSeconds is how long without an onset before the estimate is
	// marked stale and BPM emission is suppressed.
	staleSeconds = 5.0
)

// Estimate is the tempo estimator's current output (spec §3 BeatEstimate).
type Estimate struct {
	BPM        float64
	HaveBPM    bool
	Confidence float64
	Stale      bool
}

type onsetRecord struct {
	seconds float64
}

// Estimator tracks tempo from a stream of onset timestamps via an
// age-weighted inter-onset-interval histogram.
type Estimator struct {
	minBPM, maxBPM float64

	minInterval, maxInterval float64
	bins                     []float64

	recent []onsetRecord

	estimate         Estimate
	lastOnsetSeconds float64
	haveOnset        bool
}

// New returns an Estimator bounded to [minBPM, maxBPM] (spec defaults: 75,
// 200).
func New(minBPM, maxBPM float64) *Estimator {
	e := &Estimator{}
	e.SetRange(minBPM, maxBPM)
	return e
}

// SetRange reconfigures the BPM bounds and histogram, clearing any locked
// estimate. Per spec §5, this must only be called between ticks.
func (e *Estimator) SetRange(minBPM, maxBPM float64) {
	e.minBPM, e.maxBPM = minBPM, maxBPM
	e.minInterval = 60.0 / maxBPM
	e.maxInterval = 60.0 / minBPM

	numBins := int(math.Ceil((e.maxInterval-e.minInterval)/ioiBinSeconds)) + 1
	if numBins < 1 {
		numBins = 1
	}
	e.bins = make([]float64, numBins)
	e.estimate = Estimate{}
	e.recent = e.recent[:0]
}

// Current returns the most recently computed estimate without advancing
// any state (unlike Tick/ReportOnset), for callers that only want to read
// the current BPM (e.g. a periodic status report).
func (e *Estimator) Current() Estimate { return e.estimate }

// MinBPM returns the lower bound of the estimator's configured BPM range.
func (e *Estimator) MinBPM() float64 { return e.minBPM }

// MaxBPM returns the upper bound of the estimator's configured BPM range.
func (e *Estimator) MaxBPM() float64 { return e.maxBPM }

// ReportOnset feeds a newly detected onset at the given sample-time
// (seconds since engine start) and returns the freshly recomputed
// estimate.
func (e *Estimator) ReportOnset(seconds float64) Estimate {
	e.lastOnsetSeconds = seconds
	e.haveOnset = true

	cutoff := seconds - ioiWindowSeconds
	kept := e.recent[:0]
	for _, o := range e.recent {
		if o.seconds >= cutoff {
			kept = append(kept, o)
		}
	}
	e.recent = kept

	for i := range e.bins {
		e.bins[i] = 0
	}
	var totalWeight float64
	for _, o := range e.recent {
		interval := seconds - o.seconds
		if interval <= 0 {
			continue
		}
		weight := math.Exp(-interval / ageDecaySeconds)
		if idx, ok := e.binIndex(interval); ok {
			e.bins[idx] += weight
		}
		totalWeight += weight
	}

	e.recent = append(e.recent, onsetRecord{seconds: seconds})

	e.applyHistogramPeak(totalWeight)
	e.updateStaleness(seconds)
	return e.estimate
}

// Tick re-evaluates staleness at the given current sample-time without
// feeding a new onset (spec §4.7 step 6: staleness must be detected even
// across ticks with no onset at all).
func (e *Estimator) Tick(nowSeconds float64) Estimate {
	e.updateStaleness(nowSeconds)
	return e.estimate
}

func (e *Estimator) updateStaleness(nowSeconds float64) {
	if !e.haveOnset {
		e.estimate.Stale = true
		return
	}
	e.estimate.Stale = nowSeconds-e.lastOnsetSeconds > staleSeconds
}

func (e *Estimator) binIndex(interval float64) (int, bool) {
	if interval < e.minInterval || interval > e.maxInterval {
		return 0, false
	}
	idx := int((interval - e.minInterval) / ioiBinSeconds)
	if idx >= len(e.bins) {
		idx = len(e.bins) - 1
	}
	return idx, true
}

func (e *Estimator) binInterval(idx int) float64 {
	return e.minInterval + (float64(idx)+0.5)*ioiBinSeconds
}

func (e *Estimator) applyHistogramPeak(totalWeight float64) {
	if totalWeight <= 0 {
		return
	}

	peakIdx, peakWeight := -1, 0.0
	for i, w := range e.bins {
		if w > peakWeight {
			peakWeight = w
			peakIdx = i
		}
	}
	if peakIdx < 0 {
		return
	}

	candidateBPM := 60.0 / e.binInterval(peakIdx)
	confidence := clamp01(peakWeight / totalWeight)

	if !e.estimate.HaveBPM {
		e.estimate.BPM = candidateBPM
		e.estimate.HaveBPM = true
		e.estimate.Confidence = confidence
		return
	}

	folded := e.resolveOctave(candidateBPM, e.estimate.BPM)

	deviation := math.Abs(folded-e.estimate.BPM) / e.estimate.BPM
	if deviation <= deviationThreshold {
		e.estimate.BPM = blendOld*e.estimate.BPM + blendNew*folded
		e.estimate.Confidence = blendOld*e.estimate.Confidence + blendNew*confidence
	} else {
		e.estimate.BPM = folded
		e.estimate.Confidence = confidence
	}
}

// resolveOctave picks whichever of {candidate/2, candidate, candidate*2}
// lies within [minBPM, maxBPM] and closest to prevLocked (spec §4.7 step
// 5). If no variant is in range, candidate is returned unchanged.
func (e *Estimator) resolveOctave(candidate, prevLocked float64) float64 {
	variants := [3]float64{candidate / 2, candidate, candidate * 2}
	best, bestDist := candidate, math.Inf(1)
	for _, v := range variants {
		if v < e.minBPM || v > e.maxBPM {
			continue
		}
		if d := math.Abs(v - prevLocked); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
