package engine

import (
	"github.com/sound2osc/engine/internal/diagnostics"
	"github.com/sound2osc/engine/internal/preset"
	"github.com/sound2osc/engine/internal/tempo"
	"github.com/sound2osc/engine/internal/trigger"
)

// ToState snapshots every mutable, user-visible setting into a
// preset.Document (spec §4.9 "to_state() → PresetDocument"). Held under
// stateMu so it never observes a half-applied tick or a concurrent
// FromState.
func (e *Engine) ToState() preset.Document {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	doc := preset.Document{
		FormatVersion: preset.CurrentFormatVersion,
		LowSoloMode:   e.lowSoloMode,
		Dsp: preset.DspDoc{
			Gain:        e.spectrum.Gain,
			Compression: e.spectrum.Compression,
			Decibel:     e.spectrum.DecibelMode,
			AGC:         e.spectrum.AGCEnabled,
		},
		Bpm: preset.BpmDoc{
			Min:  e.tempoEstimator.MinBPM(),
			Max:  e.tempoEstimator.MaxBPM(),
			Mute: e.bpmMute,
			OSC:  bpmOscDocFromEmitter(e.beatEmitter),
		},
		Triggers: make(map[string]preset.TriggerDoc, len(e.triggers)),
	}

	for name, unit := range e.triggers {
		doc.Triggers[name] = triggerDocFromDefinition(unit.def)
	}

	return doc
}

// FromState applies doc atomically, replacing every trigger definition,
// the DSP pipeline settings, and the BPM range/mute/OSC wiring (spec §4.9
// "from_state(doc) applies it atomically"). Held under stateMu, so it can
// only proceed between ticks, never mid-tick.
//
// doc is re-validated here (not merely trusted from a prior preset.Decode)
// so a document built by hand, or one that has been mutated in memory
// since it was decoded, still can't push the engine into an invalid state
// (spec §7 ConfigInvalid: "keep prior state, surface as a diagnostic;
// from_state returns failure").
func (e *Engine) FromState(doc preset.Document) error {
	if err := preset.Validate(doc); err != nil {
		e.emitDiagnostic(diagnostics.LevelError, diagnostics.CodeConfigInvalid, err.Error())
		return err
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.lowSoloMode = doc.LowSoloMode

	e.spectrum.Gain = doc.Dsp.Gain
	e.spectrum.Compression = doc.Dsp.Compression
	e.spectrum.DecibelMode = doc.Dsp.Decibel
	e.spectrum.AGCEnabled = doc.Dsp.AGC

	e.tempoEstimator.SetRange(doc.Bpm.Min, doc.Bpm.Max)
	e.bpmMute = doc.Bpm.Mute
	e.beatEmitter.Mute = doc.Bpm.Mute
	e.beatEmitter.BPMTemplate, e.beatEmitter.BeatTemplate = bpmTemplatesFromDoc(doc.Bpm.OSC)

	for name, trigDoc := range doc.Triggers {
		unit, ok := e.triggers[name]
		if !ok {
			// preset.Validate requires all six TriggerNames but does not
			// reject extra keys, so an unknown name can reach here; skip it
			// rather than grow e.triggers with an unknown key.
			continue
		}
		applyTriggerDoc(unit, name, trigDoc)
	}

	return nil
}

// applyTriggerDoc replaces unit's Definition in place (so unit.filter,
// which holds a pointer, observes the change immediately) and mirrors it
// into unit.detector.Def, which is held by value (spec §4.4 Detector.Def).
func applyTriggerDoc(unit *triggerUnit, name string, doc preset.TriggerDoc) {
	*unit.def = definitionFromDoc(name, doc)
	unit.detector.Def = *unit.def
}

func definitionFromDoc(name string, d preset.TriggerDoc) trigger.Definition {
	return trigger.Definition{
		ID:              name,
		Kind:            kindFromString(d.Kind),
		CenterHz:        d.CenterHz,
		Width:           d.Width,
		Threshold:       d.Threshold,
		Mute:            d.Mute,
		OnDelaySeconds:  d.OnDelaySeconds,
		OffDelaySeconds: d.OffDelaySeconds,
		MaxHoldSeconds:  d.MaxHoldSeconds,
		OSC:             bindingFromDoc(d.OSC),
	}
}

func triggerDocFromDefinition(def *trigger.Definition) preset.TriggerDoc {
	return preset.TriggerDoc{
		Kind:            kindToString(def.Kind),
		CenterHz:        def.CenterHz,
		Width:           def.Width,
		Threshold:       def.Threshold,
		Mute:            def.Mute,
		OnDelaySeconds:  def.OnDelaySeconds,
		OffDelaySeconds: def.OffDelaySeconds,
		MaxHoldSeconds:  def.MaxHoldSeconds,
		OSC:             bindingDocFromBinding(def.OSC),
	}
}

func kindFromString(s string) trigger.Kind {
	switch s {
	case "envelope":
		return trigger.Envelope
	case "silence":
		return trigger.Silence
	default:
		return trigger.BandPass
	}
}

func kindToString(k trigger.Kind) string {
	return k.String()
}

func bindingFromDoc(d preset.OscBindingDoc) trigger.Binding {
	return trigger.Binding{
		OnMsg:    templateFromDoc(d.OnMsg),
		OffMsg:   templateFromDoc(d.OffMsg),
		LevelMsg: templateFromDoc(d.LevelMsg),
		LevelMin: d.LevelMin,
		LevelMax: d.LevelMax,
		Label:    d.Label,
	}
}

func bindingDocFromBinding(b trigger.Binding) preset.OscBindingDoc {
	return preset.OscBindingDoc{
		OnMsg:    templateDocFromTemplate(b.OnMsg),
		OffMsg:   templateDocFromTemplate(b.OffMsg),
		LevelMsg: templateDocFromTemplate(b.LevelMsg),
		LevelMin: b.LevelMin,
		LevelMax: b.LevelMax,
		Label:    b.Label,
	}
}

func templateFromDoc(d *preset.OscTemplateDoc) *trigger.OscTemplate {
	if d == nil {
		return nil
	}
	return &trigger.OscTemplate{Address: d.Address}
}

func templateDocFromTemplate(t *trigger.OscTemplate) *preset.OscTemplateDoc {
	if t == nil {
		return nil
	}
	return &preset.OscTemplateDoc{Address: t.Address}
}

// bpmTemplatesFromDoc maps the "bpm.osc.commands" string list onto the two
// templates BeatEmitter needs: commands[0] is the BPM-value address,
// commands[1] is the beat-pulse address. Either may be absent, in which
// case that emission is simply never sent (BeatEmitter already nil-checks
// both templates).
func bpmTemplatesFromDoc(d preset.BpmOscDoc) (bpm, beat *trigger.OscTemplate) {
	if len(d.Commands) > 0 && d.Commands[0] != "" {
		bpm = &trigger.OscTemplate{Address: d.Commands[0]}
	}
	if len(d.Commands) > 1 && d.Commands[1] != "" {
		beat = &trigger.OscTemplate{Address: d.Commands[1]}
	}
	return bpm, beat
}

// bpmOscDocFromEmitter is bpmTemplatesFromDoc's inverse, for ToState.
func bpmOscDocFromEmitter(b *tempo.BeatEmitter) preset.BpmOscDoc {
	var commands []string
	if b.BPMTemplate != nil {
		commands = append(commands, b.BPMTemplate.Address)
	}
	if b.BeatTemplate != nil {
		if len(commands) == 0 {
			commands = append(commands, "")
		}
		commands = append(commands, b.BeatTemplate.Address)
	}
	return preset.BpmOscDoc{Commands: commands}
}
