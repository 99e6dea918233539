// Package trigger implements the six band-energy trigger detectors and the
// on/off-delay, max-hold, mute timing state machine that turns their raw
// levels into gated OSC events (spec §4.4-4.5).
package trigger

// Kind selects which ScaledSpectrum level computation a Detector performs.
type Kind int

const (
	BandPass Kind = iota
	Envelope
	Silence
)

func (k Kind) String() string {
	switch k {
	case BandPass:
		return "bandpass"
	case Envelope:
		return "envelope"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}

// OscTemplate is an OSC address path plus the implicit numeric argument
// supplied at send time. Encoding the `$v` substitution is the OscEmitter's
// job; a Template here only needs to carry the address.
type OscTemplate struct {
	Address string
}

// Binding is the OSC wiring for one trigger: which addresses fire on
// entry/exit/level-update, and the range last_level is mapped into before
// being sent as the level_msg argument.
type Binding struct {
	OnMsg    *OscTemplate
	OffMsg   *OscTemplate
	LevelMsg *OscTemplate

	LevelMin float64
	LevelMax float64

	Label string
}

// Definition is the user-configurable description of one trigger (spec
// §3 TriggerDefinition).
type Definition struct {
	ID   string
	Kind Kind

	CenterHz float64 // BandPass only
	Width    float64 // BandPass only, fractional log-width in [0, 1]

	Threshold float64 // [0, 1]
	Mute      bool

	OnDelaySeconds  float64
	OffDelaySeconds float64
	MaxHoldSeconds  float64

	OSC Binding
}
