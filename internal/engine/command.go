package engine

import (
	"fmt"
	"strings"

	"github.com/sound2osc/engine/internal/diagnostics"
	"github.com/sound2osc/engine/internal/osc"
	"github.com/sound2osc/engine/internal/preset"
)

// Inbound OSC address prefixes/suffixes (spec §6 "OSC incoming (optional
// mapping)"): a small closed set. Anything else is ignored, matching "
// Unknown addresses are ignored."
const (
	addrTriggerPrefix   = "/sound2osc/in/trigger/"
	addrThresholdSuffix = "/threshold"
	addrPresetLoad      = "/sound2osc/in/preset/load"
	addrBpmMute         = "/sound2osc/in/bpm/mute"
	addrBpmTap          = "/sound2osc/in/bpm/tap"
)

// HandleIncoming decodes pkt (a single OSC message, or a bundle of them)
// and dispatches each recognized message to the matching control-plane
// handler. Malformed packets and unrecognized addresses are dropped per
// spec §7 ProtocolDecode / §6, with at most one diagnostic per malformed
// packet.
func (e *Engine) HandleIncoming(pkt []byte) {
	messages, err := decodeIncoming(pkt)
	if err != nil {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeProtocolDecode, fmt.Sprintf("incoming OSC decode: %v", err))
		return
	}
	for _, msg := range messages {
		e.dispatch(msg)
	}
}

// decodeIncoming flattens a bare message or a one-level bundle into its
// constituent Messages (spec §4.8 only defines bundles for outgoing
// traffic, but accepting one on the inbound side costs nothing and keeps
// a console's own bundle replies working).
func decodeIncoming(pkt []byte) ([]osc.Message, error) {
	if !osc.IsBundle(pkt) {
		msg, err := osc.Decode(pkt)
		if err != nil {
			return nil, err
		}
		return []osc.Message{msg}, nil
	}

	const bundleHeaderLen = 8 + 8 // "#bundle\0" + 8-byte timetag
	if len(pkt) < bundleHeaderLen {
		return nil, osc.ErrMalformedPacket
	}
	rest := pkt[bundleHeaderLen:]

	var messages []osc.Message
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, osc.ErrMalformedPacket
		}
		size := int(rest[0])<<24 | int(rest[1])<<16 | int(rest[2])<<8 | int(rest[3])
		rest = rest[4:]
		if size < 0 || size > len(rest) {
			return nil, osc.ErrMalformedPacket
		}
		msg, err := osc.Decode(rest[:size])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
		rest = rest[size:]
	}
	return messages, nil
}

func (e *Engine) dispatch(msg osc.Message) {
	switch {
	case strings.HasPrefix(msg.Address, addrTriggerPrefix) && strings.HasSuffix(msg.Address, addrThresholdSuffix):
		e.handleThreshold(msg)
	case msg.Address == addrPresetLoad:
		e.handlePresetLoad(msg)
	case msg.Address == addrBpmMute:
		e.handleBpmMute(msg)
	case msg.Address == addrBpmTap:
		e.handleBpmTap()
	}
}

// handleThreshold applies /sound2osc/in/trigger/<name>/threshold f.
func (e *Engine) handleThreshold(msg osc.Message) {
	name := strings.TrimSuffix(strings.TrimPrefix(msg.Address, addrTriggerPrefix), addrThresholdSuffix)

	value, ok := firstFloatArg(msg)
	if !ok {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeProtocolDecode, fmt.Sprintf("trigger/%s/threshold: missing float argument", name))
		return
	}
	if value < 0 || value > 1 {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeConfigInvalid, fmt.Sprintf("trigger/%s/threshold: %v out of range [0,1]", name, value))
		return
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	unit, ok := e.triggers[name]
	if !ok {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeConfigInvalid, fmt.Sprintf("trigger/%s/threshold: unknown trigger", name))
		return
	}
	unit.def.Threshold = float64(value)
	unit.detector.Def.Threshold = float64(value)
}

// handlePresetLoad applies /sound2osc/in/preset/load s, where the string
// argument is the complete PresetDocument JSON (spec §1 places preset
// *directory management* out of scope, but the document itself is the
// engine's own serialization boundary — see SPEC_FULL.md §A).
func (e *Engine) handlePresetLoad(msg osc.Message) {
	raw, ok := firstStringArg(msg)
	if !ok {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeProtocolDecode, "preset/load: missing string argument")
		return
	}
	doc, err := preset.Decode([]byte(raw))
	if err != nil {
		e.emitDiagnostic(diagnostics.LevelError, diagnostics.CodeConfigInvalid, fmt.Sprintf("preset/load: %v", err))
		return
	}
	_ = e.FromState(doc)
}

// handleBpmMute applies /sound2osc/in/bpm/mute i.
func (e *Engine) handleBpmMute(msg osc.Message) {
	value, ok := firstIntArg(msg)
	if !ok {
		e.emitDiagnostic(diagnostics.LevelWarn, diagnostics.CodeProtocolDecode, "bpm/mute: missing int argument")
		return
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.bpmMute = value != 0
	e.beatEmitter.Mute = e.bpmMute
}

// handleBpmTap applies /sound2osc/in/bpm/tap (no args): a manual tap-tempo
// input, reported to the TempoEstimator exactly like a detected onset
// (spec §4.7 algorithm), using the engine's own tick-derived sample clock
// so tap timestamps stay comparable to onset timestamps.
func (e *Engine) handleBpmTap() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	nowSeconds := float64(e.tickCount) / e.cfg.TickHz
	est := e.tempoEstimator.ReportOnset(nowSeconds)

	emissions := e.beatEmitter.OnEstimate(est)
	emissions = append(emissions, e.beatEmitter.OnOnset(est)...)
	if len(emissions) > 0 {
		e.oscEmitter.EmitTick(emissions)
	}
}

func firstFloatArg(msg osc.Message) (float32, bool) {
	for _, a := range msg.Args {
		if a.Type == osc.TypeFloat {
			return a.Float, true
		}
	}
	return 0, false
}

func firstIntArg(msg osc.Message) (int32, bool) {
	for _, a := range msg.Args {
		if a.Type == osc.TypeInt32 {
			return a.Int, true
		}
	}
	return 0, false
}

func firstStringArg(msg osc.Message) (string, bool) {
	for _, a := range msg.Args {
		if a.Type == osc.TypeString {
			return a.Str, true
		}
	}
	return "", false
}
