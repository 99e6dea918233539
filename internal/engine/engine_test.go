package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/sound2osc/engine/internal/audiosource"
	"github.com/sound2osc/engine/internal/osc"
	"github.com/sound2osc/engine/internal/preset"
)

// capturingTransport is an osc.Transport test double that records every
// sent packet instead of writing to a socket.
type capturingTransport struct {
	mu      sync.Mutex
	packets [][]byte
	closed  bool
}

func (c *capturingTransport) Send(packet []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, packet)
}

func (c *capturingTransport) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *capturingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func testConfig() Config {
	return Config{SampleRate: 44100, TickHz: 44, Protocol: osc.Protocol10}
}

func fullPresetDocument() preset.Document {
	trig := func(kind string) preset.TriggerDoc {
		return preset.TriggerDoc{
			Kind:      kind,
			CenterHz:  200,
			Width:     0.2,
			Threshold: 0.3,
			OSC: preset.OscBindingDoc{
				OnMsg:  &preset.OscTemplateDoc{Address: "/on"},
				OffMsg: &preset.OscTemplateDoc{Address: "/off"},
			},
		}
	}
	return preset.Document{
		FormatVersion: preset.CurrentFormatVersion,
		LowSoloMode:   false,
		Dsp:           preset.DspDoc{Gain: 2, Compression: 1, Decibel: false, AGC: true},
		Bpm: preset.BpmDoc{
			Min: 75, Max: 200,
			OSC: preset.BpmOscDoc{Commands: []string{"/bpm", "/beat"}},
		},
		Triggers: map[string]preset.TriggerDoc{
			"bass":     trig("bandpass"),
			"loMid":    trig("bandpass"),
			"hiMid":    trig("bandpass"),
			"high":     trig("bandpass"),
			"envelope": trig("envelope"),
			"silence":  trig("silence"),
		},
	}
}

func TestFromStateThenToStateRoundTripsTriggerFields(t *testing.T) {
	transport := &capturingTransport{}
	e := New(testConfig(), nil, transport)

	doc := fullPresetDocument()
	doc.Triggers["bass"] = preset.TriggerDoc{Kind: "bandpass", CenterHz: 80, Width: 0.2, Threshold: 0.73, OSC: doc.Triggers["bass"].OSC}

	if err := e.FromState(doc); err != nil {
		t.Fatalf("FromState: %v", err)
	}

	got := e.ToState()
	bass := got.Triggers["bass"]
	if bass.Threshold != 0.73 {
		t.Fatalf("bass.Threshold = %v, want 0.73", bass.Threshold)
	}
	if bass.CenterHz != 80 {
		t.Fatalf("bass.CenterHz = %v, want 80", bass.CenterHz)
	}
	if got.Dsp.Gain != 2 || !got.Dsp.AGC {
		t.Fatalf("Dsp = %+v, want Gain=2 AGC=true", got.Dsp)
	}
	if got.Bpm.Min != 75 || got.Bpm.Max != 200 {
		t.Fatalf("Bpm range = %+v, want [75,200]", got.Bpm)
	}
}

func TestFromStateRejectsInvalidDocument(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})

	doc := fullPresetDocument()
	doc.Dsp.Gain = 1000 // out of [0, 64]

	if err := e.FromState(doc); err == nil {
		t.Fatalf("FromState(invalid gain): want error, got nil")
	}

	// Prior (default) state must be untouched.
	got := e.ToState()
	if got.Dsp.Gain == 1000 {
		t.Fatalf("FromState mutated state despite validation failure")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	transport := &capturingTransport{}
	e := New(testConfig(), nil, transport)
	if err := e.FromState(fullPresetDocument()); err != nil {
		t.Fatalf("FromState: %v", err)
	}
	e.AttachSource(audiosource.NewSilenceSource(44100))

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.IsRunning() {
		t.Fatalf("IsRunning() = false after Start")
	}
	if err := e.Start(); err != ErrAlreadyRunning {
		t.Fatalf("second Start: got %v, want ErrAlreadyRunning", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.IsRunning() {
		t.Fatalf("IsRunning() = true after Stop")
	}
	if !transport.closed {
		t.Fatalf("transport was not closed on Stop")
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("second Stop: want nil (idempotent), got %v", err)
	}
}

func TestHandleIncomingThresholdUpdatesTrigger(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})
	if err := e.FromState(fullPresetDocument()); err != nil {
		t.Fatalf("FromState: %v", err)
	}

	msg := osc.Message{
		Address: "/sound2osc/in/trigger/bass/threshold",
		Args:    []osc.Arg{osc.FloatArg(0.9)},
	}
	e.HandleIncoming(msg.Encode())

	got := e.ToState().Triggers["bass"]
	if got.Threshold != float64(float32(0.9)) {
		t.Fatalf("bass.Threshold = %v, want ~0.9", got.Threshold)
	}
}

func TestHandleIncomingThresholdOutOfRangeIsIgnored(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})
	if err := e.FromState(fullPresetDocument()); err != nil {
		t.Fatalf("FromState: %v", err)
	}
	before := e.ToState().Triggers["bass"].Threshold

	msg := osc.Message{
		Address: "/sound2osc/in/trigger/bass/threshold",
		Args:    []osc.Arg{osc.FloatArg(5.0)},
	}
	e.HandleIncoming(msg.Encode())

	after := e.ToState().Triggers["bass"].Threshold
	if after != before {
		t.Fatalf("out-of-range threshold was applied: before=%v after=%v", before, after)
	}
}

func TestHandleIncomingUnknownAddressIsIgnored(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})
	msg := osc.Message{Address: "/sound2osc/in/nonsense", Args: nil}
	e.HandleIncoming(msg.Encode()) // must not panic
}

func TestHandleIncomingPresetLoadAppliesDocument(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})

	doc := fullPresetDocument()
	data, err := preset.Encode(doc)
	if err != nil {
		t.Fatalf("preset.Encode: %v", err)
	}

	msg := osc.Message{
		Address: "/sound2osc/in/preset/load",
		Args:    []osc.Arg{osc.StringArg(string(data))},
	}
	e.HandleIncoming(msg.Encode())

	got := e.ToState()
	if got.Dsp.Gain != doc.Dsp.Gain {
		t.Fatalf("preset/load did not apply: Dsp.Gain = %v, want %v", got.Dsp.Gain, doc.Dsp.Gain)
	}
}

func TestHandleIncomingBpmMuteTogglesBeatEmitter(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})
	if err := e.FromState(fullPresetDocument()); err != nil {
		t.Fatalf("FromState: %v", err)
	}

	msg := osc.Message{Address: "/sound2osc/in/bpm/mute", Args: []osc.Arg{osc.Int32Arg(1)}}
	e.HandleIncoming(msg.Encode())

	if !e.ToState().Bpm.Mute {
		t.Fatalf("bpm/mute(1) did not mute")
	}

	msg = osc.Message{Address: "/sound2osc/in/bpm/mute", Args: []osc.Arg{osc.Int32Arg(0)}}
	e.HandleIncoming(msg.Encode())
	if e.ToState().Bpm.Mute {
		t.Fatalf("bpm/mute(0) did not unmute")
	}
}

func TestHandleIncomingBpmTapReportsOnset(t *testing.T) {
	e := New(testConfig(), nil, &capturingTransport{})
	if err := e.FromState(fullPresetDocument()); err != nil {
		t.Fatalf("FromState: %v", err)
	}

	msg := osc.Message{Address: "/sound2osc/in/bpm/tap"}
	// Repeated taps feed the tempo estimator; this must not panic and must
	// leave the estimator with at least one onset recorded (stale clears).
	for i := 0; i < 3; i++ {
		e.HandleIncoming(msg.Encode())
	}
	// The taps were stamped at sample-time 0 (no tick has run); with no
	// onset recorded, Tick(0) would report the estimate as stale.
	if est := e.tempoEstimator.Tick(0); est.Stale {
		t.Fatalf("bpm/tap recorded no onset: estimate still stale: %+v", est)
	}
}
