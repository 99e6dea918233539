package audiosource

import (
	"math"
	"testing"
)

func TestSilenceSourceFillsZeros(t *testing.T) {
	g := NewSilenceSource(44100)
	dst := make([]float32, 16)
	for i := range dst {
		dst[i] = 1 // poison to make sure Fill overwrites
	}
	g.Fill(dst, 0)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want 0", i, v)
		}
	}
}

func TestSineSourceIsDeterministicAcrossCalls(t *testing.T) {
	g := NewSineSource(440, 1.0, 44100)
	a := make([]float32, 32)
	b := make([]float32, 32)
	g.Fill(a, 1000)
	g.Fill(b, 1000)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Fill not deterministic at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestSineSourceContinuityAcrossChunkBoundary(t *testing.T) {
	g := NewSineSource(440, 1.0, 44100)
	whole := make([]float32, 64)
	g.Fill(whole, 0)

	first := make([]float32, 32)
	second := make([]float32, 32)
	g.Fill(first, 0)
	g.Fill(second, 32)

	for i := 0; i < 32; i++ {
		if math.Abs(float64(whole[i]-first[i])) > 1e-6 {
			t.Fatalf("first half mismatch at %d: %v != %v", i, whole[i], first[i])
		}
		if math.Abs(float64(whole[32+i]-second[i])) > 1e-6 {
			t.Fatalf("second half mismatch at %d: %v != %v", i, whole[32+i], second[i])
		}
	}
}

func TestClickTrainProducesPeriodicPulses(t *testing.T) {
	g := NewClickTrainSource(1.0, 4, 100) // 100 samples/sec, click every 100 samples, 4 wide
	dst := make([]float32, 210)
	g.Fill(dst, 0)

	wantClickStarts := []int{0, 100, 200}
	for _, start := range wantClickStarts {
		for i := 0; i < 4 && start+i < len(dst); i++ {
			if dst[start+i] != 1 {
				t.Fatalf("dst[%d] = %v, want 1 (inside click at %d)", start+i, dst[start+i], start)
			}
		}
	}
	if dst[50] != 0 {
		t.Fatalf("dst[50] = %v, want 0 (between clicks)", dst[50])
	}
}

func TestGeneratorActiveNameReflectsWaveform(t *testing.T) {
	if NewSilenceSource(44100).ActiveName() != "generator:silence" {
		t.Fatalf("unexpected silence name")
	}
	if NewClickTrainSource(1, 4, 44100).ActiveName() != "generator:click-train" {
		t.Fatalf("unexpected click-train name")
	}
}
