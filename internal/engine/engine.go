// Package engine implements the orchestrator that owns the entire
// real-time pipeline (spec §4.9, §5): RingBuffer, FFTStage, ScaledSpectrum,
// the six TriggerDetector/TriggerFilter pairs, OnsetTracker,
// TempoEstimator, BeatEmitter, and the OscEmitter. It schedules the 44 Hz
// SpectrumTick/BeatTick pair, gates preset (de)serialization to between
// ticks, and dispatches the small inbound OSC control-plane.
//
// Grounded on the teacher's internal/encoder/encoder.go lifecycle shape
// (State()/IsRunning()/Start()/Stop() behind a sync.RWMutex, stopChan
// close-to-signal, pollUntil bounded wait, errors.Join on teardown) and
// internal/encoder/distributor.go's single-goroutine read-process-fanout
// loop, generalized from "read PCM, fan out to ffmpeg" to "run a tick,
// fan out OSC emissions".
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sound2osc/engine/internal/audiosource"
	"github.com/sound2osc/engine/internal/diagnostics"
	"github.com/sound2osc/engine/internal/dsp/fft"
	"github.com/sound2osc/engine/internal/dsp/spectrum"
	"github.com/sound2osc/engine/internal/onset"
	"github.com/sound2osc/engine/internal/osc"
	"github.com/sound2osc/engine/internal/ringbuf"
	"github.com/sound2osc/engine/internal/tempo"
	"github.com/sound2osc/engine/internal/trigger"
	"github.com/sound2osc/engine/internal/util"
)

// defaultMinBPM/defaultMaxBPM are the TempoEstimator's default bounds
// (spec §4.7).
const (
	defaultMinBPM = 75.0
	defaultMaxBPM = 200.0
)

// audioSelectRetryInterval is how often the engine retries AudioSource
// selection after a failed Start (spec §7 AudioUnavailable: "retries
// selection every 2 s").
const audioSelectRetryInterval = 2 * time.Second

// shutdownDrainCap bounds how long Stop waits for in-flight OSC sends to
// drain (spec §5: "drains in-flight OSC messages with a 500 ms cap").
const shutdownDrainCap = 500 * time.Millisecond

// statusInterval is how often the engine reports a CodeStatus heartbeat,
// mirroring original_source's Sound2OscEngine::m_statusTimer (SPEC_FULL.md
// §C.1a), which runs independently of the 44 Hz FFT/BPM timers.
const statusInterval = 5 * time.Second

// pollInterval is the polling granularity used while waiting for the tick
// goroutine to exit, mirroring the teacher's types.PollInterval usage in
// Encoder.Stop.
const pollInterval = 5 * time.Millisecond

// triggerOrder is the fixed detector emission order within a SpectrumTick
// (spec §5 "Ordering guarantees").
var triggerOrder = [...]string{"bass", "loMid", "hiMid", "high", "envelope", "silence"}

// Sentinel errors, mirroring the teacher's package-scope ErrXxx style in
// internal/encoder/encoder.go.
var (
	ErrAlreadyRunning = errors.New("engine: already running")
	ErrNotRunning     = errors.New("engine: not running")
)

// Config carries the fixed parameters an Engine is constructed with (not
// the mutable preset state, which flows through FromState).
type Config struct {
	SampleRate float64      // assumed 44.1 kHz per spec §6
	TickHz     float64      // target tick rate, ≈ 44 Hz
	Protocol   osc.Protocol // OSC 1.0 vs 1.1 wire behavior
}

// triggerUnit bundles one trigger's live Definition with the Detector and
// Filter views over it. Detector holds Def by value (spec-grounded
// Detector.Def field), so mutations to the shared Definition must be
// mirrored into detector.Def explicitly; Filter holds a pointer and always
// observes the latest Definition.
type triggerUnit struct {
	def      *trigger.Definition
	detector *trigger.Detector
	filter   *trigger.Filter
}

// Engine owns the full pipeline and its single processing-context tick
// goroutine (spec §5).
type Engine struct {
	cfg        Config
	diagnostic diagnostics.Sink

	// stateMu guards every field a tick reads or writes, plus the fields
	// FromState/ToState/command handlers mutate. Ticks hold it for their
	// entire run; FromState blocks until the current tick (if any) is
	// done, satisfying "mid-tick application is forbidden" (spec §4.9)
	// without a separate pause mechanism.
	stateMu sync.Mutex

	ring     *ringbuf.Buffer
	fftStage *fft.Stage
	spectrum *spectrum.Spectrum

	triggers    map[string]*triggerUnit
	lowSoloMode bool

	onsetTracker   *onset.Tracker
	tempoEstimator *tempo.Estimator
	beatEmitter    *tempo.BeatEmitter
	bpmMute        bool

	oscEmitter *osc.Emitter

	source audiosource.Source
	mixer  *audiosource.MonoMixer

	tickCount    uint64
	overrunCount uint64

	// lifecycleMu guards running/stopChan, mirroring Encoder.mu's
	// sync.RWMutex role for state transitions.
	lifecycleMu sync.RWMutex
	running     bool
	stopChan    chan struct{}
	tickDone    chan struct{}
}

// New constructs an Engine with default (identity) trigger/tempo state.
// Call FromState with a loaded preset.Document to apply real
// configuration before Start.
func New(cfg Config, sink diagnostics.Sink, transport osc.Transport) *Engine {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 44
	}
	e := &Engine{
		cfg:        cfg,
		diagnostic: sink,
	}

	buf := ringbuf.New()
	e.ring = buf
	e.fftStage = fft.NewStage(buf)
	e.spectrum = spectrum.New(fft.Size, cfg.SampleRate)
	e.onsetTracker = onset.New(e.spectrum)
	e.tempoEstimator = tempo.New(defaultMinBPM, defaultMaxBPM)
	e.beatEmitter = tempo.NewBeatEmitter(nil, nil)
	e.oscEmitter = osc.NewEmitter(transport, cfg.Protocol)
	e.mixer = audiosource.NewMonoMixer()
	e.mixer.OnSamples(func(samples []float32, channelCount int) {
		// MonoMixer always forwards channelCount == 1; Push is wait-free
		// and allocation-free (spec §5: audio context must not allocate,
		// lock, log, or block).
		e.ring.Push(samples)
	})

	e.triggers = make(map[string]*triggerUnit, len(triggerOrder))
	for _, name := range triggerOrder {
		def := &trigger.Definition{ID: name, Kind: defaultKindForName(name)}
		e.triggers[name] = &triggerUnit{
			def:      def,
			detector: trigger.NewDetector(*def),
			filter:   trigger.NewFilter(def, cfg.TickHz),
		}
	}

	return e
}

// defaultKindForName returns the Kind a freshly constructed Engine assigns
// each of the six fixed trigger names before any preset.Document has been
// applied (spec §6 "triggers (map of {bass, loMid, hiMid, high, envelope,
// silence})").
func defaultKindForName(name string) trigger.Kind {
	switch name {
	case "envelope":
		return trigger.Envelope
	case "silence":
		return trigger.Silence
	default:
		return trigger.BandPass
	}
}

// AttachSource registers the AudioSource the engine will start and pull
// samples from. Must be called before Start.
func (e *Engine) AttachSource(src audiosource.Source) {
	e.source = src
}

// IsRunning reports whether the engine's tick loop is active.
func (e *Engine) IsRunning() bool {
	e.lifecycleMu.RLock()
	defer e.lifecycleMu.RUnlock()
	return e.running
}

// Start registers the audio source callback and begins the 44 Hz tick
// scheduler (spec §4.9: "new(config) → start() → (ticking) → stop()").
func (e *Engine) Start() error {
	e.lifecycleMu.Lock()
	if e.running {
		e.lifecycleMu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.tickDone = make(chan struct{})
	stopChan := e.stopChan
	e.lifecycleMu.Unlock()

	if e.source != nil {
		e.source.OnSamples(e.mixer.Feed)
		go e.runSourceSelectLoop(stopChan)
	}

	go e.runTickLoop(stopChan)
	go e.runStatusLoop(stopChan)

	return nil
}

// runStatusLoop periodically emits a CodeStatus heartbeat carrying the
// current BPM estimate and active audio source name (SPEC_FULL.md §C.1a),
// independent of the 44 Hz tick path.
func (e *Engine) runStatusLoop(stopChan chan struct{}) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			e.emitStatus()
		}
	}
}

func (e *Engine) emitStatus() {
	e.stateMu.Lock()
	est := e.tempoEstimator.Current()
	e.stateMu.Unlock()

	audioName := "none"
	if e.source != nil {
		audioName = e.source.ActiveName()
	}

	bpmStr := "—"
	if est.HaveBPM && !est.Stale {
		bpmStr = fmt.Sprintf("%.1f", est.BPM)
	}
	e.emitDiagnostic(diagnostics.LevelDebug, diagnostics.CodeStatus,
		fmt.Sprintf("Status: BPM=%s, Audio=%s", bpmStr, audioName))
}

// runSourceSelectLoop retries AudioSource.Start until it succeeds or the
// engine stops (spec §7 AudioUnavailable).
func (e *Engine) runSourceSelectLoop(stopChan chan struct{}) {
	if err := e.source.Start(); err == nil {
		e.checkSampleRate()
		return
	} else {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeAudioUnavailable, fmt.Sprintf("audio source start failed: %v", err))
	}

	ticker := time.NewTicker(audioSelectRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			if err := e.source.Start(); err == nil {
				e.checkSampleRate()
				return
			}
		}
	}
}

// checkSampleRate logs a diagnostic if the selected AudioSource's rate
// doesn't match the configured rate (spec §6: "sample rate is assumed
// 44.1 kHz (enforced at selection; otherwise the Engine logs a diagnostic
// and proceeds)"). The engine proceeds regardless — there is no
// resampling stage, so a mismatch only affects the accuracy of
// frequency-domain band placement, not correctness of the pipeline.
func (e *Engine) checkSampleRate() {
	rate := e.source.SampleRate()
	if rate != e.cfg.SampleRate {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeSampleRateMismatch,
			fmt.Sprintf("audio source sample rate %.0f Hz does not match configured %.0f Hz", rate, e.cfg.SampleRate))
	}
}

// runTickLoop drives SpectrumTick then BeatTick at cfg.TickHz, skipping
// (never backlogging) a tick that fires more than one period late (spec
// §4.9, §5). time.Ticker itself drops ticks for a slow receiver, which
// already gives skip-not-backlog semantics; this loop additionally detects
// and reports the overrun.
func (e *Engine) runTickLoop(stopChan chan struct{}) {
	defer close(e.tickDone)

	period := time.Duration(float64(time.Second) / e.cfg.TickHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var lastTick time.Time
	for {
		select {
		case <-stopChan:
			return
		case now := <-ticker.C:
			if !lastTick.IsZero() && now.Sub(lastTick) > period+period/2 {
				e.overrunCount++
				e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeTickOverrun, "tick loop fell behind; skipping backlog")
			}
			lastTick = now
			e.runTick()
		}
	}
}

// runTick runs one SpectrumTick followed by one BeatTick under stateMu,
// so from_state/commands never observe (or interleave with) a partial
// tick (spec §4.9 "mid-tick application is forbidden").
func (e *Engine) runTick() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	emissions := e.runSpectrumTick()
	emissions = append(emissions, e.runBeatTick()...)
	e.tickCount++

	if len(emissions) > 0 {
		e.oscEmitter.EmitTick(emissions)
	}
}

// runSpectrumTick runs FFTStage → ScaledSpectrum → each TriggerDetector →
// each TriggerFilter, in the fixed order bass, loMid, hiMid, high,
// envelope, silence (spec §5).
func (e *Engine) runSpectrumTick() []trigger.Emission {
	e.fftStage.Run()
	e.spectrum.Update(e.fftStage.Magnitude())

	var emissions []trigger.Emission
	for _, name := range triggerOrder {
		unit, ok := e.triggers[name]
		if !ok {
			continue
		}
		level := unit.detector.Level(e.spectrum, e.lowSoloMode)
		if unit.detector.Active(level) {
			emissions = append(emissions, unit.filter.TriggerOn(level)...)
		} else {
			emissions = append(emissions, unit.filter.TriggerOff(level)...)
		}
	}
	return emissions
}

// runBeatTick runs OnsetTracker → TempoEstimator → BeatEmitter (spec
// §4.9). BeatTick messages are sent after SpectrumTick of the same period
// (enforced by append order in runTick, same emission slice/packet).
func (e *Engine) runBeatTick() []trigger.Emission {
	nowSeconds := float64(e.tickCount) / e.cfg.TickHz

	var emissions []trigger.Emission
	if evt, declared := e.onsetTracker.Tick(e.tickCount, e.spectrum); declared {
		est := e.tempoEstimator.ReportOnset(float64(evt.Tick) / e.cfg.TickHz)
		emissions = append(emissions, e.beatEmitter.OnEstimate(est)...)
		emissions = append(emissions, e.beatEmitter.OnOnset(est)...)
	} else {
		est := e.tempoEstimator.Tick(nowSeconds)
		emissions = append(emissions, e.beatEmitter.OnEstimate(est)...)
	}
	return emissions
}

// Stop idempotently signals the tick loop, waits (bounded) for in-flight
// OSC sends to drain, stops the audio source, and closes the transport
// (spec §5 "Cancellation and timeout").
func (e *Engine) Stop() error {
	e.lifecycleMu.Lock()
	if !e.running {
		e.lifecycleMu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopChan)
	tickDone := e.tickDone
	e.lifecycleMu.Unlock()

	select {
	case <-tickDone:
	case <-time.After(shutdownDrainCap):
		slog.Warn("engine tick loop did not stop within drain cap")
	}

	var errs []error
	if e.source != nil {
		if err := util.WrapError("stop audio source", e.source.Stop()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := util.WrapError("close osc emitter", e.oscEmitter.Close()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) emitDiagnostic(level diagnostics.Level, code diagnostics.Code, msg string) {
	if e.diagnostic == nil {
		return
	}
	e.diagnostic.Emit(diagnostics.New(level, code, msg))
}
