package tempo

import (
	"math"

	"github.com/sound2osc/engine/internal/trigger"
)

// bpmChangeThreshold is the minimum BPM delta that triggers a new BPM
// OSC emission (spec §4.7: "whenever it changes by more than 0.5 BPM").
const bpmChangeThreshold = 0.5

// BeatEmitter turns tempo Estimates and onset events into OSC emissions:
// the current BPM (rate-limited by bpmChangeThreshold) and a "beat" pulse
// on every non-stale, non-muted onset.
type BeatEmitter struct {
	BPMTemplate  *trigger.OscTemplate
	BeatTemplate *trigger.OscTemplate
	Mute         bool

	haveLastEmittedBPM bool
	lastEmittedBPM     float64
}

// NewBeatEmitter returns a BeatEmitter bound to the given templates.
func NewBeatEmitter(bpmTemplate, beatTemplate *trigger.OscTemplate) *BeatEmitter {
	return &BeatEmitter{BPMTemplate: bpmTemplate, BeatTemplate: beatTemplate}
}

// OnEstimate reports the BPM OSC emission (if any) for the current
// estimate.
func (b *BeatEmitter) OnEstimate(est Estimate) []trigger.Emission {
	if b.Mute || b.BPMTemplate == nil || est.Stale || !est.HaveBPM {
		return nil
	}
	if b.haveLastEmittedBPM && math.Abs(est.BPM-b.lastEmittedBPM) <= bpmChangeThreshold {
		return nil
	}
	b.lastEmittedBPM = est.BPM
	b.haveLastEmittedBPM = true
	return []trigger.Emission{{Template: b.BPMTemplate, Value: est.BPM}}
}

// OnOnset reports the "beat" OSC emission (if any) for a detected onset,
// given the estimate current as of that onset.
func (b *BeatEmitter) OnOnset(est Estimate) []trigger.Emission {
	if b.Mute || b.BeatTemplate == nil || est.Stale {
		return nil
	}
	return []trigger.Emission{{Template: b.BeatTemplate, Value: 1}}
}
