// Package spectrum maps the FFT stage's linear magnitude bins onto the
// perceptually-scaled 200-band logarithmic spectrum and applies gain,
// compression, dB conversion, and automatic gain control (spec §4.3).
//
// The gain/compression/dB/AGC pipeline mirrors the dB conversion and
// peak-decay shape of the teacher's internal/audio/metering.go and
// internal/audio/peakhold.go, generalized from a stereo VU meter to a
// 200-band spectrum.
package spectrum

import (
	"math"

	"github.com/sound2osc/engine/internal/dsp/fft"
)

// Bands is the number of logarithmic frequency bands (L = 200).
const Bands = 200

// FreqBase is the lower edge of band 0 (20 Hz).
const FreqBase = 20.0

// minEnvelope is the AGC envelope floor that guards every division.
const minEnvelope = 1e-6

// bandEdge holds the precomputed fractional-linear-bin range a band
// averages over.
type bandEdge struct {
	loBin, hiBin float64
}

// Spectrum converts a linear FFT magnitude spectrum into the 200-band
// logarithmic Spectrum and owns the mutable DSP parameters applied to it.
type Spectrum struct {
	sampleRate float64
	fftSize    int
	edges      [Bands]bandEdge

	bands [Bands]float64

	// Mutable state (spec §3 "ScaledSpectrum state").
	Gain        float64 // [0, 64]
	Compression float64 // [0.5, 2.0], exponent applied to magnitudes
	AGCEnabled  bool
	DecibelMode bool

	agcEnvelope float64
}

// New builds a Spectrum for the given FFT size and sample rate, with gain
// 1, compression 1 (identity), AGC and dB mode both off.
func New(fftSize int, sampleRate float64) *Spectrum {
	s := &Spectrum{
		sampleRate:  sampleRate,
		fftSize:     fftSize,
		Gain:        1,
		Compression: 1,
	}
	nyquist := sampleRate / 2
	r := math.Pow(nyquist/FreqBase, 1.0/float64(Bands))
	binHz := sampleRate / float64(fftSize)
	maxBin := float64(fftSize / 2)
	for b := 0; b < Bands; b++ {
		lo := FreqBase * math.Pow(r, float64(b))
		hi := FreqBase * math.Pow(r, float64(b+1))
		loBin := lo / binHz
		hiBin := hi / binHz
		if loBin < 0 {
			loBin = 0
		}
		if hiBin > maxBin {
			hiBin = maxBin
		}
		s.edges[b] = bandEdge{loBin: loBin, hiBin: hiBin}
	}
	return s
}

// Update runs the full pipeline (band averaging, gain, compression, dB
// conversion, AGC) over linear, the FFT stage's current magnitude
// spectrum (length fftSize/2).
func (s *Spectrum) Update(linear *[fft.Bins]float64) {
	for b := 0; b < Bands; b++ {
		s.bands[b] = s.averageBand(linear, s.edges[b])
	}

	for b := 0; b < Bands; b++ {
		v := s.bands[b] * s.Gain
		if v < 0 {
			v = 0
		}
		v = math.Pow(v, s.Compression)
		if s.DecibelMode {
			if v <= 0 {
				v = 0
			} else {
				db := 20*math.Log10(v) + 60
				v = db / 60
			}
			v = clamp01(v)
		} else {
			v = clamp01(v)
		}
		s.bands[b] = v
	}

	if s.AGCEnabled {
		peak := 0.0
		for _, v := range s.bands {
			if v > peak {
				peak = v
			}
		}
		s.agcEnvelope = math.Max(peak, s.agcEnvelope*0.9995)
		div := math.Max(s.agcEnvelope, minEnvelope)
		for b := range s.bands {
			s.bands[b] = clamp01(s.bands[b] / div)
		}
	}
}

// averageBand computes the overlap-weighted average of linear's magnitude
// bins covering e. When the band spans less than one linear bin, the
// single fractional overlap naturally reduces to a two-point linear
// interpolation between the adjacent bins, per spec.
func (s *Spectrum) averageBand(linear *[fft.Bins]float64, e bandEdge) float64 {
	lo, hi := e.loBin, e.hiBin
	if hi <= lo {
		return 0
	}

	iStart := int(math.Floor(lo))
	iEnd := int(math.Ceil(hi))
	if iEnd <= iStart {
		iEnd = iStart + 1
	}

	var sum, weight float64
	for i := iStart; i < iEnd; i++ {
		if i < 0 || i >= len(linear) {
			continue
		}
		overlapLo := math.Max(lo, float64(i))
		overlapHi := math.Min(hi, float64(i+1))
		w := overlapHi - overlapLo
		if w <= 0 {
			continue
		}
		sum += linear[i] * w
		weight += w
	}
	if weight <= 0 {
		return 0
	}
	return sum / weight
}

// MaxLevelIn returns the maximum band value within
// [centerHz*(1-width), centerHz*(1+width)], clamped to [0, 1].
func (s *Spectrum) MaxLevelIn(centerHz, width float64) float64 {
	lo := centerHz * (1 - width)
	hi := centerHz * (1 + width)

	max := 0.0
	for b := 0; b < Bands; b++ {
		bLo, bHi := s.BandFreqRange(b)
		if bHi < lo || bLo > hi {
			continue
		}
		if s.bands[b] > max {
			max = s.bands[b]
		}
	}
	return clamp01(max)
}

// BandFreqRange returns the [lo, hi) frequency range band b covers.
func (s *Spectrum) BandFreqRange(b int) (lo, hi float64) {
	nyquist := s.sampleRate / 2
	r := math.Pow(nyquist/FreqBase, 1.0/float64(Bands))
	return FreqBase * math.Pow(r, float64(b)), FreqBase * math.Pow(r, float64(b+1))
}

// Normalized returns the current Spectrum for read-only inspection. The
// returned pointer aliases internal storage and is valid only until the
// next Update call.
func (s *Spectrum) Normalized() *[Bands]float64 {
	return &s.bands
}

// Nyquist returns half the configured sample rate.
func (s *Spectrum) Nyquist() float64 {
	return s.sampleRate / 2
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
