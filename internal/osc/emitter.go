package osc

import (
	"github.com/sound2osc/engine/internal/trigger"
)

// Emitter turns a tick's worth of trigger/tempo Emissions into wire
// packets and hands them to a Transport. Emission ordering (which
// trigger fires first, level-before-on/off, BeatTick after SpectrumTick)
// is the engine's responsibility; Emitter only encodes whatever order it
// is given.
type Emitter struct {
	transport Transport
	protocol  Protocol
}

// Protocol selects OSC 1.0 vs 1.1 wire behavior (spec §4.8).
type Protocol int

const (
	// Protocol10 bundles more than one pending message per tick into a
	// single #bundle packet; a lone message is sent bare.
	Protocol10 Protocol = iota
	// Protocol11 never bundles: every message is sent as its own packet.
	// SLIP framing is applied by TCPTransport, not by the Emitter.
	Protocol11
)

// NewEmitter returns an Emitter writing through transport in the given
// protocol mode.
func NewEmitter(transport Transport, protocol Protocol) *Emitter {
	return &Emitter{transport: transport, protocol: protocol}
}

// EmitTick encodes emissions (in the order supplied) and sends them.
// Nil-template emissions are skipped (mirrors Filter.emit's own nil
// guard, defensive against a future emission source that doesn't filter
// them out itself).
func (e *Emitter) EmitTick(emissions []trigger.Emission) {
	packets := make([][]byte, 0, len(emissions))
	for _, em := range emissions {
		if em.Template == nil {
			continue
		}
		msg := Message{
			Address: em.Template.Address,
			Args:    []Arg{FloatArg(float32(em.Value))},
		}
		packets = append(packets, msg.Encode())
	}
	if len(packets) == 0 {
		return
	}

	if e.protocol == Protocol11 || len(packets) == 1 {
		for _, p := range packets {
			e.transport.Send(p)
		}
		return
	}

	bundle := Bundle{Timetag: ImmediateTimetag, Elements: packets}
	e.transport.Send(bundle.Encode())
}

// Close shuts down the underlying transport.
func (e *Emitter) Close() error {
	return e.transport.Close()
}
