package audiosource

import (
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVFileSource reads a WAV file and replays it through the Source
// callback interface at its native sample rate, looping when it reaches
// the end. Grounded on ik5-audpbx/formats/aiff/decoder.go's
// decoder-to-audio.Source wrapping shape, adapted from go-audio/aiff to
// go-audio/wav and from a pull-based ReadSamples API to the push-based
// callback Source this package defines.
type WAVFileSource struct {
	path string

	mu         sync.Mutex
	samples    []float32 // decoded once, mono-mixed, replayed in a loop
	sampleRate float64
	channels   int
	volume     float32
	cb         SampleCallback
	stopCh     chan struct{}
	running    bool
}

// NewWAVFileSource prepares a source for the WAV file at path. The file
// is decoded lazily on Start.
func NewWAVFileSource(path string) *WAVFileSource {
	return &WAVFileSource{path: path, volume: 1}
}

// Start decodes the WAV file (once) and begins replaying it in
// defaultChunkFrames chunks, paced to the file's sample rate, until Stop
// is called; at EOF replay wraps around to the start of the file.
func (s *WAVFileSource) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("wav file source: already running")
	}
	if s.samples == nil {
		if err := s.decode(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
	return nil
}

func (s *WAVFileSource) decode() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open wav file %q: %w", s.path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return fmt.Errorf("wav file %q: invalid or unsupported WAV", s.path)
	}

	format := &goaudio.Format{
		NumChannels: int(dec.NumChans),
		SampleRate:  int(dec.SampleRate),
	}
	s.sampleRate = float64(format.SampleRate)
	s.channels = format.NumChannels
	bitDepth := int(dec.BitDepth)

	var maxVal float32
	switch bitDepth {
	case 8:
		maxVal = 128.0
	case 16:
		maxVal = 32768.0
	case 24:
		maxVal = 8388608.0
	case 32:
		maxVal = 2147483648.0
	default:
		maxVal = 32768.0
	}

	buf := &goaudio.IntBuffer{Data: make([]int, 8192), Format: format}
	var interleaved []float32
	for {
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				interleaved = append(interleaved, float32(buf.Data[i])/maxVal)
			}
		}
		if err != nil || n == 0 {
			break
		}
	}

	if s.channels <= 1 {
		s.samples = interleaved
		return nil
	}

	frames := len(interleaved) / s.channels
	mono := make([]float32, frames)
	inv := 1.0 / float32(s.channels)
	for f := 0; f < frames; f++ {
		base := f * s.channels
		var sum float32
		for c := 0; c < s.channels; c++ {
			sum += interleaved[base+c]
		}
		mono[f] = sum * inv
	}
	s.samples = mono
	return nil
}

func (s *WAVFileSource) run() {
	s.mu.Lock()
	rate := s.sampleRate
	total := len(s.samples)
	s.mu.Unlock()

	if total == 0 || rate == 0 {
		return
	}

	period := time.Duration(float64(defaultChunkFrames) / rate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buf := make([]float32, defaultChunkFrames)
	pos := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for i := range buf {
				buf[i] = s.samples[pos]
				pos = (pos + 1) % total
			}
			s.mu.Lock()
			cb := s.cb
			vol := s.volume
			s.mu.Unlock()
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

// Stop halts replay.
func (s *WAVFileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stopCh)
	s.running = false
	return nil
}

// ListDevices reports the single file-backed device.
func (s *WAVFileSource) ListDevices() []string { return []string{s.path} }

// Select accepts only the backing file path; a WAVFileSource has exactly
// one device, and any other name is an error.
func (s *WAVFileSource) Select(name string) error {
	if name != s.path {
		return fmt.Errorf("wav file source: unknown device %q", name)
	}
	return nil
}

// ActiveName returns the backing file path.
func (s *WAVFileSource) ActiveName() string { return s.path }

// Volume returns the current output volume multiplier.
func (s *WAVFileSource) Volume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume sets the output volume multiplier.
func (s *WAVFileSource) SetVolume(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// OnSamples registers the callback invoked by the background replay loop
// started by Start.
func (s *WAVFileSource) OnSamples(cb SampleCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// SampleRate returns the decoded file's sample rate. Zero until Start has
// decoded the file.
func (s *WAVFileSource) SampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}
