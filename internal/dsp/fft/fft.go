// Package fft implements the windowed real-to-complex transform stage of
// the audio pipeline (spec §4.2). It is deliberately a small, allocation-
// free, hand-rolled radix-2 Cooley-Tukey transform: no FFT library appears
// anywhere in the reference corpus this module was built against, and the
// hot path (one Run() call per 44 Hz tick) must not allocate.
package fft

import "math"

// Size is the fixed FFT frame length (spec: N = 4096 samples).
const Size = 4096

// Bins is the number of linear magnitude bins produced (N/2).
const Bins = Size / 2

// Source supplies the most recent Size samples for a frame. It is
// satisfied by *ringbuf.Buffer; declared as an interface here so this
// package has no dependency on ringbuf.
type Source interface {
	SnapshotLast(dst []float32)
}

// Stage runs the windowed FFT and exposes the linear magnitude spectrum.
// A Stage owns all of its scratch buffers; Run never allocates.
type Stage struct {
	source Source

	window    [Size]float64
	frame     [Size]float32
	re        [Size]float64
	im        [Size]float64
	bitRevIdx [Size]int
	twiddleRe []float64
	twiddleIm []float64

	magnitude [Bins]float64
}

// NewStage constructs an FFT stage reading frames from source.
func NewStage(source Source) *Stage {
	s := &Stage{source: source}
	s.buildHannWindow()
	s.buildBitReversal()
	s.buildTwiddles()
	return s
}

func (s *Stage) buildHannWindow() {
	for n := 0; n < Size; n++ {
		s.window[n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(Size-1))
	}
}

func (s *Stage) buildBitReversal() {
	bits := 0
	for 1<<bits < Size {
		bits++
	}
	for i := 0; i < Size; i++ {
		rev := 0
		x := i
		for b := 0; b < bits; b++ {
			rev = (rev << 1) | (x & 1)
			x >>= 1
		}
		s.bitRevIdx[i] = rev
	}
}

func (s *Stage) buildTwiddles() {
	// Twiddles for every stage share a single half-size table: for stage
	// with half-width m, twiddle k uses angle -2*pi*k/(2m). Precompute the
	// finest-grained table (half-width = Size/2) and stride into it for
	// coarser stages.
	half := Size / 2
	s.twiddleRe = make([]float64, half)
	s.twiddleIm = make([]float64, half)
	for k := 0; k < half; k++ {
		angle := -2 * math.Pi * float64(k) / float64(Size)
		s.twiddleRe[k] = math.Cos(angle)
		s.twiddleIm[k] = math.Sin(angle)
	}
}

// Run performs one full pipeline step: snapshot the latest frame, apply
// the Hann window, forward FFT, and compute the linear magnitude
// spectrum. It never allocates.
func (s *Stage) Run() {
	s.source.SnapshotLast(s.frame[:])

	for n := 0; n < Size; n++ {
		idx := s.bitRevIdx[n]
		s.re[n] = float64(s.frame[idx]) * s.window[idx]
		s.im[n] = 0
	}

	s.transform()

	for k := 0; k < Bins; k++ {
		s.magnitude[k] = math.Sqrt(s.re[k]*s.re[k] + s.im[k]*s.im[k])
	}
}

// transform runs the in-place iterative radix-2 Cooley-Tukey butterfly
// network over s.re/s.im (already bit-reversal permuted by Run).
func (s *Stage) transform() {
	stride := Size / 2
	for size := 2; size <= Size; size <<= 1 {
		half := size / 2
		for start := 0; start < Size; start += size {
			for j := 0; j < half; j++ {
				tw := j * stride
				tr := s.re[start+j+half]*s.twiddleRe[tw] - s.im[start+j+half]*s.twiddleIm[tw]
				ti := s.re[start+j+half]*s.twiddleIm[tw] + s.im[start+j+half]*s.twiddleRe[tw]

				s.re[start+j+half] = s.re[start+j] - tr
				s.im[start+j+half] = s.im[start+j] - ti
				s.re[start+j] += tr
				s.im[start+j] += ti
			}
		}
		stride /= 2
	}
}

// Magnitude returns the linear magnitude spectrum computed by the last
// Run call (length Bins). The returned slice aliases internal storage and
// is only valid until the next Run call.
func (s *Stage) Magnitude() *[Bins]float64 {
	return &s.magnitude
}
