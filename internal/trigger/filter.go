package trigger

import "math"

// State is one of the four TriggerFilter states (spec §4.5).
type State int

const (
	Idle State = iota
	OnPending
	Active
	OffPending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OnPending:
		return "on_pending"
	case Active:
		return "active"
	case OffPending:
		return "off_pending"
	default:
		return "unknown"
	}
}

// levelMessageIntervalSeconds is the level_msg rate limit (spec §4.5: "at
// most once per 20 ms").
const levelMessageIntervalSeconds = 0.020

// Emission is one OSC send a Filter wants performed: the bound template
// plus the numeric argument to substitute for `$v`.
type Emission struct {
	Template *OscTemplate
	Value    float64
}

// Filter drives one trigger's on_delay/off_delay/max_hold/mute state
// machine. Timers are sample-time counters advanced once per tick by
// TriggerOn/TriggerOff, never real-time timers (spec §9 "Timer-based state
// machines").
type Filter struct {
	def    *Definition
	tickHz float64

	state State

	onTicksLeft  int
	offTicksLeft int

	maxHoldEnabled  bool
	maxHoldTicksLeft int

	lastLevel           float64
	ticksSinceLevelEmit int
	levelRateLimitTicks int

	// StateChanged, if set, is called on every state transition regardless
	// of mute — the non-wire UI notification path (spec §4.5 "Mute
	// semantics").
	StateChanged func(State)
}

// NewFilter returns an idle Filter for def, ticking at tickHz (the
// processing context's FFT tick rate, ≈ 44 Hz).
func NewFilter(def *Definition, tickHz float64) *Filter {
	rl := int(math.Round(levelMessageIntervalSeconds * tickHz))
	if rl < 1 {
		rl = 1
	}
	return &Filter{
		def:                 def,
		tickHz:              tickHz,
		state:               Idle,
		levelRateLimitTicks: rl,
	}
}

// State returns the filter's current state.
func (f *Filter) State() State {
	return f.state
}

// LastLevel returns the most recent level fed via TriggerOn/TriggerOff.
func (f *Filter) LastLevel() float64 {
	return f.lastLevel
}

// ticks converts a seconds duration to a tick count. Zero means an
// instantaneous transition (spec §8: "on_delay = 0 → detector → Active
// transition within the same tick"); any positive duration takes at least
// one tick.
func (f *Filter) ticks(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	n := int(math.Round(seconds * f.tickHz))
	if n < 1 {
		n = 1
	}
	return n
}

// TriggerOn advances the filter on a tick where the detector asserts
// (level ≥ threshold). Idempotent in OnPending/Active (spec §4.5
// re-entrancy).
func (f *Filter) TriggerOn(level float64) []Emission {
	f.lastLevel = level

	switch f.state {
	case Idle:
		f.onTicksLeft = f.ticks(f.def.OnDelaySeconds)
		f.state = OnPending
		f.notifyState()
		if f.onTicksLeft <= 0 {
			return f.becomeActive()
		}
		return nil

	case OnPending:
		f.onTicksLeft--
		if f.onTicksLeft <= 0 {
			return f.becomeActive()
		}
		return nil

	case OffPending:
		// A fresh trigger_on during OffPending cancels the off timer and
		// returns to Active without re-emitting on_msg.
		f.state = Active
		f.notifyState()
		return nil

	case Active:
		var ev []Emission
		if f.maxHoldEnabled {
			f.maxHoldTicksLeft--
			if f.maxHoldTicksLeft <= 0 {
				ev = append(ev, f.flushLevel()...)
				ev = append(ev, f.exitToIdle()...)
				return ev
			}
		}
		return f.maybeEmitLevel()

	default:
		return nil
	}
}

// TriggerOff advances the filter on a tick where the detector releases
// (level < threshold). Idempotent in Idle/OffPending.
func (f *Filter) TriggerOff(level float64) []Emission {
	f.lastLevel = level

	switch f.state {
	case Idle:
		return nil

	case OnPending:
		f.state = Idle
		f.notifyState()
		return nil

	case Active:
		return f.enterOffPending()

	case OffPending:
		f.offTicksLeft--
		if f.offTicksLeft <= 0 {
			return f.exitToIdle()
		}
		return nil

	default:
		return nil
	}
}

func (f *Filter) becomeActive() []Emission {
	f.state = Active
	if f.def.MaxHoldSeconds > 0 {
		f.maxHoldEnabled = true
		f.maxHoldTicksLeft = f.ticks(f.def.MaxHoldSeconds)
	} else {
		f.maxHoldEnabled = false
	}
	f.ticksSinceLevelEmit = 0
	f.notifyState()
	return f.emit(f.def.OSC.OnMsg, f.lastLevel)
}

func (f *Filter) enterOffPending() []Emission {
	f.offTicksLeft = f.ticks(f.def.OffDelaySeconds)
	f.state = OffPending
	ev := f.flushLevel()
	f.notifyState()
	if f.offTicksLeft <= 0 {
		ev = append(ev, f.exitToIdle()...)
	}
	return ev
}

func (f *Filter) exitToIdle() []Emission {
	f.state = Idle
	f.notifyState()
	return f.emit(f.def.OSC.OffMsg, f.lastLevel)
}

func (f *Filter) maybeEmitLevel() []Emission {
	if f.def.OSC.LevelMsg == nil {
		return nil
	}
	f.ticksSinceLevelEmit++
	if f.ticksSinceLevelEmit < f.levelRateLimitTicks {
		return nil
	}
	f.ticksSinceLevelEmit = 0
	return f.emit(f.def.OSC.LevelMsg, lerp(f.def.OSC.LevelMin, f.def.OSC.LevelMax, f.lastLevel))
}

func (f *Filter) flushLevel() []Emission {
	if f.def.OSC.LevelMsg == nil {
		return nil
	}
	f.ticksSinceLevelEmit = 0
	return f.emit(f.def.OSC.LevelMsg, lerp(f.def.OSC.LevelMin, f.def.OSC.LevelMax, f.lastLevel))
}

// emit applies mute (wire suppression only) and nil-template filtering.
func (f *Filter) emit(tmpl *OscTemplate, value float64) []Emission {
	if tmpl == nil || f.def.Mute {
		return nil
	}
	return []Emission{{Template: tmpl, Value: value}}
}

func (f *Filter) notifyState() {
	if f.StateChanged != nil {
		f.StateChanged(f.state)
	}
}

func lerp(min, max, t float64) float64 {
	return min + (max-min)*t
}
