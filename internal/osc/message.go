// Package osc implements the OSC 1.0/1.1 binary wire protocol, SLIP
// framing, UDP/TCP transports, and the emitter that turns trigger/tempo
// events into outgoing packets (spec §4.8).
package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ArgType is an OSC type-tag character.
type ArgType byte

const (
	TypeInt32  ArgType = 'i'
	TypeFloat  ArgType = 'f'
	TypeString ArgType = 's'
	TypeBlob   ArgType = 'b'
)

// Arg is one OSC argument; exactly one of the value fields is meaningful,
// selected by Type.
type Arg struct {
	Type  ArgType
	Int   int32
	Float float32
	Str   string
	Blob  []byte
}

func Int32Arg(v int32) Arg   { return Arg{Type: TypeInt32, Int: v} }
func FloatArg(v float32) Arg { return Arg{Type: TypeFloat, Float: v} }
func StringArg(v string) Arg { return Arg{Type: TypeString, Str: v} }
func BlobArg(v []byte) Arg   { return Arg{Type: TypeBlob, Blob: v} }

// Message is a single OSC message: an address pattern plus arguments.
type Message struct {
	Address string
	Args    []Arg
}

// ErrMalformedPacket is returned by Decode when a packet cannot be parsed
// (spec §7 ProtocolDecode).
var ErrMalformedPacket = errors.New("osc: malformed packet")

// Encode renders m into its OSC 1.0 binary wire form.
func (m Message) Encode() []byte {
	var buf bytes.Buffer
	writePaddedString(&buf, m.Address)

	tags := make([]byte, 0, len(m.Args)+1)
	tags = append(tags, ',')
	for _, a := range m.Args {
		tags = append(tags, byte(a.Type))
	}
	writePaddedString(&buf, string(tags))

	for _, a := range m.Args {
		switch a.Type {
		case TypeInt32:
			_ = binary.Write(&buf, binary.BigEndian, a.Int)
		case TypeFloat:
			_ = binary.Write(&buf, binary.BigEndian, a.Float)
		case TypeString:
			writePaddedString(&buf, a.Str)
		case TypeBlob:
			_ = binary.Write(&buf, binary.BigEndian, int32(len(a.Blob)))
			buf.Write(a.Blob)
			writePadding(&buf, len(a.Blob))
		}
	}
	return buf.Bytes()
}

// Decode parses a single OSC message from data (spec §8 property 5: every
// emitted packet must parse back to the same address and argument list).
func Decode(data []byte) (Message, error) {
	addr, rest, err := readPaddedString(data)
	if err != nil {
		return Message{}, fmt.Errorf("%w: address: %v", ErrMalformedPacket, err)
	}

	tags, rest, err := readPaddedString(rest)
	if err != nil {
		return Message{}, fmt.Errorf("%w: type tags: %v", ErrMalformedPacket, err)
	}
	if len(tags) == 0 || tags[0] != ',' {
		return Message{}, fmt.Errorf("%w: type tag string missing leading ','", ErrMalformedPacket)
	}

	var args []Arg
	for _, tag := range []byte(tags[1:]) {
		switch ArgType(tag) {
		case TypeInt32:
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("%w: truncated int32 arg", ErrMalformedPacket)
			}
			args = append(args, Int32Arg(int32(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		case TypeFloat:
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("%w: truncated float arg", ErrMalformedPacket)
			}
			bits := binary.BigEndian.Uint32(rest[:4])
			args = append(args, FloatArg(math.Float32frombits(bits)))
			rest = rest[4:]
		case TypeString:
			var s string
			s, rest, err = readPaddedString(rest)
			if err != nil {
				return Message{}, fmt.Errorf("%w: string arg: %v", ErrMalformedPacket, err)
			}
			args = append(args, StringArg(s))
		case TypeBlob:
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("%w: truncated blob length", ErrMalformedPacket)
			}
			n := int(int32(binary.BigEndian.Uint32(rest[:4])))
			rest = rest[4:]
			if n < 0 || len(rest) < n {
				return Message{}, fmt.Errorf("%w: truncated blob data", ErrMalformedPacket)
			}
			blob := make([]byte, n)
			copy(blob, rest[:n])
			rest = rest[paddedLen(n):]
			args = append(args, BlobArg(blob))
		default:
			return Message{}, fmt.Errorf("%w: unsupported type tag %q", ErrMalformedPacket, tag)
		}
	}

	return Message{Address: addr, Args: args}, nil
}

func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
	writePadding(buf, len(s)+1)
}

// writePadding appends zero bytes so that n bytes already written bring
// the total to a multiple of 4.
func writePadding(buf *bytes.Buffer, n int) {
	if rem := n % 4; rem != 0 {
		for i := 0; i < 4-rem; i++ {
			buf.WriteByte(0)
		}
	}
}

func paddedLen(n int) int {
	if rem := n % 4; rem != 0 {
		return n + (4 - rem)
	}
	return n
}

func readPaddedString(data []byte) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, errors.New("unterminated string")
	}
	total := paddedLen(idx + 1)
	if total > len(data) {
		return "", nil, errors.New("string padding runs past end of packet")
	}
	return string(data[:idx]), data[total:], nil
}
