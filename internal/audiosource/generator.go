package audiosource

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Waveform selects a GeneratorSource's deterministic synthesis mode,
// grounded on spec §8's fixed test scenarios (A: pure tones for trigger
// detection, B: silence for the silence detector, C: percussive clicks
// for onset/tempo tracking).
type Waveform int

const (
	WaveformSilence Waveform = iota
	WaveformSine
	WaveformClickTrain
)

// defaultChunkFrames is the per-callback sample count GeneratorSource
// emits, matching FFTStage's N = 4096 frame size.
const defaultChunkFrames = 4096

// GeneratorSource is a deterministic, file-free AudioSource fixture: it
// synthesizes sine tones, silence, or a percussive click train instead of
// reading a device or file. Fill is pure and directly testable without
// starting the background emission loop.
type GeneratorSource struct {
	waveform   Waveform
	freqHz     float64
	amplitude  float32
	sampleRate float64

	// clickIntervalSamples spaces clicks apart for WaveformClickTrain.
	clickIntervalSamples uint64
	clickWidthSamples     uint64

	mu      sync.Mutex
	volume  float32
	cb      SampleCallback
	stopCh  chan struct{}
	running bool
}

// NewSineSource returns a generator emitting a continuous sine tone at
// freqHz, amplitude in [0, 1].
func NewSineSource(freqHz float64, amplitude float32, sampleRate float64) *GeneratorSource {
	return &GeneratorSource{
		waveform:   WaveformSine,
		freqHz:     freqHz,
		amplitude:  amplitude,
		sampleRate: sampleRate,
		volume:     1,
	}
}

// NewSilenceSource returns a generator emitting all-zero samples.
func NewSilenceSource(sampleRate float64) *GeneratorSource {
	return &GeneratorSource{waveform: WaveformSilence, sampleRate: sampleRate, volume: 1}
}

// NewClickTrainSource returns a generator emitting a short unit-amplitude
// click every intervalSeconds, each click widthSamples long — a
// deterministic onset/tempo fixture (spec §8 scenario C).
func NewClickTrainSource(intervalSeconds float64, widthSamples uint64, sampleRate float64) *GeneratorSource {
	return &GeneratorSource{
		waveform:              WaveformClickTrain,
		sampleRate:            sampleRate,
		clickIntervalSamples:  uint64(math.Round(intervalSeconds * sampleRate)),
		clickWidthSamples:     widthSamples,
		amplitude:             1,
		volume:                1,
	}
}

// Fill synthesizes len(dst) consecutive mono samples starting at
// startSample, deterministically (no hidden state beyond the generator's
// own fixed parameters) so it can be unit tested without the
// Start/Stop/callback machinery.
func (g *GeneratorSource) Fill(dst []float32, startSample uint64) {
	switch g.waveform {
	case WaveformSilence:
		for i := range dst {
			dst[i] = 0
		}
	case WaveformSine:
		for i := range dst {
			t := float64(startSample+uint64(i)) / g.sampleRate
			dst[i] = g.amplitude * float32(math.Sin(2*math.Pi*g.freqHz*t))
		}
	case WaveformClickTrain:
		for i := range dst {
			sample := startSample + uint64(i)
			if g.clickIntervalSamples == 0 {
				dst[i] = 0
				continue
			}
			phase := sample % g.clickIntervalSamples
			if phase < g.clickWidthSamples {
				dst[i] = g.amplitude
			} else {
				dst[i] = 0
			}
		}
	}
}

// Start begins emitting chunks of defaultChunkFrames samples, paced to
// sampleRate, until Stop is called.
func (g *GeneratorSource) Start() error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("generator source: already running")
	}
	g.running = true
	g.stopCh = make(chan struct{})
	g.mu.Unlock()

	go g.run()
	return nil
}

func (g *GeneratorSource) run() {
	period := time.Duration(float64(defaultChunkFrames) / g.sampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buf := make([]float32, defaultChunkFrames)
	var sampleIndex uint64
	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.Fill(buf, sampleIndex)
			sampleIndex += defaultChunkFrames
			g.mu.Lock()
			cb := g.cb
			vol := g.volume
			g.mu.Unlock()
			if vol != 1 {
				for i := range buf {
					buf[i] *= vol
				}
			}
			if cb != nil {
				cb(buf, 1)
			}
		}
	}
}

// Stop halts emission.
func (g *GeneratorSource) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil
	}
	close(g.stopCh)
	g.running = false
	return nil
}

// ListDevices reports the single synthetic device name.
func (g *GeneratorSource) ListDevices() []string { return []string{g.ActiveName()} }

// Select accepts only the generator's own device name (see ActiveName); a
// GeneratorSource has exactly one device, and any other name is an error.
func (g *GeneratorSource) Select(name string) error {
	if name != g.ActiveName() {
		return fmt.Errorf("generator source: unknown device %q", name)
	}
	return nil
}

// ActiveName names the synthetic device after its waveform.
func (g *GeneratorSource) ActiveName() string {
	switch g.waveform {
	case WaveformSine:
		return fmt.Sprintf("generator:sine:%gHz", g.freqHz)
	case WaveformClickTrain:
		return "generator:click-train"
	default:
		return "generator:silence"
	}
}

// Volume returns the current output volume multiplier.
func (g *GeneratorSource) Volume() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.volume
}

// SetVolume sets the output volume multiplier.
func (g *GeneratorSource) SetVolume(v float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = v
}

// OnSamples registers the callback invoked by the background emission
// loop started by Start.
func (g *GeneratorSource) OnSamples(cb SampleCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cb = cb
}

// SampleRate returns the generator's configured sample rate.
func (g *GeneratorSource) SampleRate() float64 { return g.sampleRate }
