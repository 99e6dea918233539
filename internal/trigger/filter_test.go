package trigger

import "testing"

func basicDef() *Definition {
	return &Definition{
		ID:        "bass",
		Kind:      BandPass,
		Threshold: 0.5,
		OSC: Binding{
			OnMsg:    &OscTemplate{Address: "/trig/bass/on"},
			OffMsg:   &OscTemplate{Address: "/trig/bass/off"},
			LevelMsg: &OscTemplate{Address: "/trig/bass/level"},
			LevelMin: 0,
			LevelMax: 1,
		},
	}
}

func TestOnDelayZeroEntersActiveSameTick(t *testing.T) {
	f := NewFilter(basicDef(), 44)
	ev := f.TriggerOn(0.9)

	if f.State() != Active {
		t.Fatalf("state = %v, want Active", f.State())
	}
	if len(ev) != 1 || ev[0].Template.Address != "/trig/bass/on" {
		t.Fatalf("emissions = %+v, want single on_msg", ev)
	}
}

func TestOnDelayHoldsInOnPendingUntilExpiry(t *testing.T) {
	def := basicDef()
	def.OnDelaySeconds = 0.1 // ~4.4 ticks @ 44Hz -> 4 ticks
	f := NewFilter(def, 44)

	// The first call enters OnPending; the timer expires 4 ticks later, on
	// the 5th call.
	var last []Emission
	for i := 0; i < 5; i++ {
		last = f.TriggerOn(0.9)
		if i < 4 && f.State() != OnPending {
			t.Fatalf("tick %d: state = %v, want OnPending", i, f.State())
		}
	}
	if f.State() != Active {
		t.Fatalf("state after on_delay expiry = %v, want Active", f.State())
	}
	if len(last) != 1 || last[0].Template.Address != "/trig/bass/on" {
		t.Fatalf("emissions on expiry = %+v, want on_msg", last)
	}
}

func TestTriggerOffDuringOnPendingReturnsToIdle(t *testing.T) {
	def := basicDef()
	def.OnDelaySeconds = 1.0
	f := NewFilter(def, 44)

	f.TriggerOn(0.9)
	if f.State() != OnPending {
		t.Fatalf("state = %v, want OnPending", f.State())
	}
	f.TriggerOff(0.1)
	if f.State() != Idle {
		t.Fatalf("state after trigger_off in OnPending = %v, want Idle", f.State())
	}
}

func TestOffDelayZeroExitsImmediately(t *testing.T) {
	f := NewFilter(basicDef(), 44)
	f.TriggerOn(0.9) // -> Active (on_delay 0)

	ev := f.TriggerOff(0.1)
	if f.State() != Idle {
		t.Fatalf("state = %v, want Idle", f.State())
	}
	foundOff := false
	for _, e := range ev {
		if e.Template.Address == "/trig/bass/off" {
			foundOff = true
		}
	}
	if !foundOff {
		t.Fatalf("emissions = %+v, want an off_msg", ev)
	}
}

func TestReentrantTriggerOnDuringOffPendingCancelsRelease(t *testing.T) {
	def := basicDef()
	def.OffDelaySeconds = 1.0 // long enough to stay OffPending for many ticks
	f := NewFilter(def, 44)

	f.TriggerOn(0.9) // -> Active
	f.TriggerOff(0.1)
	if f.State() != OffPending {
		t.Fatalf("state = %v, want OffPending", f.State())
	}

	ev := f.TriggerOn(0.9)
	if f.State() != Active {
		t.Fatalf("state after reentrant trigger_on = %v, want Active", f.State())
	}
	for _, e := range ev {
		if e.Template.Address == "/trig/bass/on" {
			t.Fatalf("reentrant trigger_on during OffPending must not re-emit on_msg, got %+v", ev)
		}
	}
}

func TestMaxHoldForcesReleaseWhileStillAsserting(t *testing.T) {
	def := basicDef()
	def.MaxHoldSeconds = 0.05 // ~2.2 ticks @ 44Hz -> 2 ticks
	f := NewFilter(def, 44)

	f.TriggerOn(0.9) // -> Active, maxHoldTicksLeft = 2

	ev1 := f.TriggerOn(0.9) // maxHoldTicksLeft -> 1
	if f.State() != Active {
		t.Fatalf("state after 1st hold tick = %v, want Active", f.State())
	}
	_ = ev1

	ev2 := f.TriggerOn(0.9) // maxHoldTicksLeft -> 0, forced release
	if f.State() != Idle {
		t.Fatalf("state after max_hold expiry = %v, want Idle", f.State())
	}
	foundOff := false
	for _, e := range ev2 {
		if e.Template.Address == "/trig/bass/off" {
			foundOff = true
		}
	}
	if !foundOff {
		t.Fatalf("emissions on max_hold release = %+v, want off_msg", ev2)
	}

	// A fresh trigger_on immediately re-enters Active.
	f.TriggerOn(0.9)
	if f.State() != Active {
		t.Fatalf("state after re-trigger following max_hold release = %v, want Active", f.State())
	}
}

func TestMuteSuppressesEmissionButNotState(t *testing.T) {
	def := basicDef()
	def.Mute = true
	f := NewFilter(def, 44)

	var transitions []State
	f.StateChanged = func(s State) { transitions = append(transitions, s) }

	ev := f.TriggerOn(0.9)
	if len(ev) != 0 {
		t.Fatalf("emissions while muted = %+v, want none", ev)
	}
	if f.State() != Active {
		t.Fatalf("state while muted = %v, want Active", f.State())
	}
	if len(transitions) == 0 {
		t.Fatalf("StateChanged callback never fired despite mute")
	}
}

func TestLevelMessagesAreRateLimited(t *testing.T) {
	f := NewFilter(basicDef(), 44) // rate limit ~= 1 tick @ 20ms/44Hz rounds to 1
	f.TriggerOn(0.5)               // -> Active

	emitted := 0
	for i := 0; i < 100; i++ {
		for _, e := range f.TriggerOn(0.5) {
			if e.Template.Address == "/trig/bass/level" {
				emitted++
			}
		}
	}
	if emitted == 0 {
		t.Fatalf("expected at least one rate-limited level emission over 100 ticks")
	}
	if emitted > 100 {
		t.Fatalf("emitted %d level messages for 100 ticks, impossible", emitted)
	}
}

func TestIdempotentTriggerOffWhileIdle(t *testing.T) {
	f := NewFilter(basicDef(), 44)
	ev := f.TriggerOff(0.0)
	if len(ev) != 0 || f.State() != Idle {
		t.Fatalf("trigger_off while Idle must be a no-op, got state=%v ev=%+v", f.State(), ev)
	}
}
