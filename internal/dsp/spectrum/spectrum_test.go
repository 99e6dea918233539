package spectrum

import (
	"math"
	"testing"

	"github.com/sound2osc/engine/internal/dsp/fft"
)

func flatLinear(v float64) *[fft.Bins]float64 {
	var lin [fft.Bins]float64
	for i := range lin {
		lin[i] = v
	}
	return &lin
}

func TestSilenceProducesZeroBands(t *testing.T) {
	s := New(fft.Size, 44100)
	s.Update(flatLinear(0))

	for i, v := range s.Normalized() {
		if v != 0 {
			t.Fatalf("band[%d] = %v, want 0 for silent input", i, v)
		}
	}
}

func TestBandsAreMonotonicallyAscendingInFrequency(t *testing.T) {
	s := New(fft.Size, 44100)
	for b := 0; b < Bands-1; b++ {
		lo, hi := s.BandFreqRange(b)
		nextLo, _ := s.BandFreqRange(b + 1)
		if hi <= lo {
			t.Fatalf("band %d has non-positive width: lo=%v hi=%v", b, lo, hi)
		}
		if nextLo < hi-1e-6 {
			t.Fatalf("band %d+1 starts (%v) before band %d ends (%v)", b, nextLo, b, hi)
		}
	}
}

func TestGainScalesOutput(t *testing.T) {
	s := New(fft.Size, 44100)
	s.Gain = 1
	s.Update(flatLinear(0.1))
	base := s.Normalized()[50]

	s2 := New(fft.Size, 44100)
	s2.Gain = 2
	s2.Update(flatLinear(0.1))
	doubled := s2.Normalized()[50]

	if math.Abs(doubled-2*base) > 1e-9 {
		t.Fatalf("doubled gain = %v, want ~%v", doubled, 2*base)
	}
}

func TestValuesAreClampedToUnitRange(t *testing.T) {
	s := New(fft.Size, 44100)
	s.Gain = 1000
	s.Update(flatLinear(1))

	for i, v := range s.Normalized() {
		if v < 0 || v > 1 {
			t.Fatalf("band[%d] = %v, out of [0,1]", i, v)
		}
	}
}

func TestDecibelModeMapsKnownPoint(t *testing.T) {
	s := New(fft.Size, 44100)
	s.DecibelMode = true
	// v = 1 -> 20*log10(1) + 60 = 60 -> /60 = 1.0
	s.Update(flatLinear(1))
	for i, v := range s.Normalized() {
		if math.Abs(v-1) > 1e-6 {
			t.Fatalf("band[%d] = %v, want ~1 at 0 dBFS equivalent", i, v)
		}
	}
}

func TestAGCNormalizesPeakTowardOne(t *testing.T) {
	s := New(fft.Size, 44100)
	s.AGCEnabled = true

	// Feed a steady level repeatedly so the envelope converges near the
	// peak; after convergence the loudest band should sit close to 1.
	for i := 0; i < 5000; i++ {
		s.Update(flatLinear(0.05))
	}

	max := 0.0
	for _, v := range s.Normalized() {
		if v > max {
			max = v
		}
	}
	if max < 0.9 {
		t.Fatalf("max band after AGC convergence = %v, want close to 1", max)
	}
}

func TestAGCNeverDividesByZero(t *testing.T) {
	s := New(fft.Size, 44100)
	s.AGCEnabled = true
	s.Update(flatLinear(0)) // envelope would be 0 without the minEnvelope floor

	for i, v := range s.Normalized() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("band[%d] = %v, want finite", i, v)
		}
	}
}

func TestMaxLevelInFindsLoudestCoveredBand(t *testing.T) {
	s := New(fft.Size, 44100)
	s.Update(flatLinear(0.5))

	level := s.MaxLevelIn(1000, 0.1)
	if level <= 0 {
		t.Fatalf("MaxLevelIn(1000, 0.1) = %v, want > 0 for non-silent input", level)
	}
}

func TestMaxLevelInOutsideRangeIsZero(t *testing.T) {
	s := New(fft.Size, 44100)
	s.Update(flatLinear(0.5))

	// A tiny window far below FreqBase covers no band.
	level := s.MaxLevelIn(1, 0.01)
	if level != 0 {
		t.Fatalf("MaxLevelIn(1, 0.01) = %v, want 0 (no band covers this range)", level)
	}
}
