package trigger

import "github.com/sound2osc/engine/internal/dsp/spectrum"

// lowSoloCutoffHz is the "≈ 1 kHz" boundary above which low-solo forces
// band-pass detectors to release.
const lowSoloCutoffHz = 1000.0

// Detector computes a trigger's raw [0, 1] level from the current
// ScaledSpectrum, per spec §4.4.
type Detector struct {
	Def Definition
}

// NewDetector returns a Detector for def.
func NewDetector(def Definition) *Detector {
	return &Detector{Def: def}
}

// Level computes the current level for this detector. lowSolo forces every
// band-pass detector centred above lowSoloCutoffHz to report 0.
func (d *Detector) Level(s *spectrum.Spectrum, lowSolo bool) float64 {
	switch d.Def.Kind {
	case BandPass:
		if lowSolo && d.Def.CenterHz > lowSoloCutoffHz {
			return 0
		}
		return s.MaxLevelIn(d.Def.CenterHz, d.Def.Width)
	case Envelope:
		return envelopeLevel(s)
	case Silence:
		return 1 - meanLevel(s)
	default:
		return 0
	}
}

// Active reports whether level crosses this detector's threshold (spec
// §4.4: "If level ≥ threshold it calls filter.trigger_on(), else
// filter.trigger_off()").
func (d *Detector) Active(level float64) bool {
	return level >= d.Def.Threshold
}

// envelopeLevel is the band-index-weighted mean of the whole spectrum, low
// bands dominating (spec: "weighted linearly by band index").
func envelopeLevel(s *spectrum.Spectrum) float64 {
	bands := s.Normalized()
	var sum, weight float64
	for i, v := range bands {
		w := float64(len(bands) - i)
		sum += v * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// meanLevel is the unweighted mean across every band.
func meanLevel(s *spectrum.Spectrum) float64 {
	bands := s.Normalized()
	var sum float64
	for _, v := range bands {
		sum += v
	}
	return sum / float64(len(bands))
}
