// Package audiosource implements the externally-supplied AudioSource
// interface (spec §6 "AudioSource (consumed)") plus concrete fixtures the
// engine can be driven by in tests and in the cmd/sound2osc demo:
// WAVFileSource and GeneratorSource.
package audiosource

// SampleCallback is the Engine's registered hook for newly captured
// samples (spec §6: "a callback that the Engine registers:
// on_samples(&[f32], channel_count)").
type SampleCallback func(samples []float32, channelCount int)

// Source is the AudioSource capability spec.md §6 describes as externally
// supplied: device lifecycle, device selection, volume, and a registered
// sample callback. The audio context that drives it must never allocate,
// lock, log, or block (spec §5) — implementations push samples from
// whatever capture loop they own.
type Source interface {
	Start() error
	Stop() error

	ListDevices() []string
	Select(name string) error
	ActiveName() string

	Volume() float32
	SetVolume(v float32)

	// OnSamples registers the callback invoked for every captured chunk.
	OnSamples(cb SampleCallback)

	SampleRate() float64
}

// MonoMixer mixes down a possibly multi-channel interleaved sample stream
// to mono by averaging channels, then forwards the mono frame to its own
// registered callback (spec §6: "the Engine mixes interleaved
// multi-channel input to mono by averaging channels"). Channel-count
// unrolling for the 2/4-channel cases is grounded on
// ik5-audpbx/audio/mono_mixer.go's ReadSamples.
type MonoMixer struct {
	buf      []float32
	callback SampleCallback
}

// NewMonoMixer returns a MonoMixer with no callback registered yet.
func NewMonoMixer() *MonoMixer {
	return &MonoMixer{buf: make([]float32, 4096)}
}

// OnSamples registers the callback that receives mixed-down mono frames.
func (m *MonoMixer) OnSamples(cb SampleCallback) {
	m.callback = cb
}

// Feed mixes samples (channelCount interleaved channels) down to mono and
// forwards the result. Intended to be wired as a Source's raw
// SampleCallback.
func (m *MonoMixer) Feed(samples []float32, channelCount int) {
	if channelCount <= 1 {
		if m.callback != nil {
			m.callback(samples, 1)
		}
		return
	}

	frames := len(samples) / channelCount
	if cap(m.buf) < frames {
		m.buf = make([]float32, frames)
	}
	mono := m.buf[:frames]

	switch channelCount {
	case 2:
		for f := 0; f < frames; f++ {
			idx := f << 1
			mono[f] = (samples[idx] + samples[idx+1]) * 0.5
		}
	case 4:
		for f := 0; f < frames; f++ {
			idx := f << 2
			mono[f] = (samples[idx] + samples[idx+1] + samples[idx+2] + samples[idx+3]) * 0.25
		}
	default:
		inv := 1.0 / float32(channelCount)
		for f := 0; f < frames; f++ {
			base := f * channelCount
			var sum float32
			for c := 0; c < channelCount; c++ {
				sum += samples[base+c]
			}
			mono[f] = sum * inv
		}
	}

	if m.callback != nil {
		m.callback(mono, 1)
	}
}
