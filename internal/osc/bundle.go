package osc

import (
	"bytes"
	"encoding/binary"
	"time"
)

// bundleTag is the OSC bundle magic string; already 8 bytes, a multiple
// of 4, so it needs no additional padding.
const bundleTag = "#bundle\x00"

// ImmediateTimetag is the reserved OSC "apply now" timetag value.
const ImmediateTimetag uint64 = 1

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// Bundle is an OSC bundle: a timetag plus an ordered list of pre-encoded
// elements (each itself a Message.Encode() or nested Bundle.Encode()).
type Bundle struct {
	Timetag  uint64
	Elements [][]byte
}

// NTPTimetag converts t to the 64-bit NTP-style timetag OSC bundles use.
func NTPTimetag(t time.Time) uint64 {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := uint64(float64(t.Nanosecond()) / 1e9 * (1 << 32))
	return secs<<32 | frac
}

// Encode renders the bundle to its wire form: "#bundle\0" + big-endian
// timetag + repeated (int32 size, element bytes).
func (b Bundle) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(bundleTag)
	_ = binary.Write(&buf, binary.BigEndian, b.Timetag)
	for _, el := range b.Elements {
		_ = binary.Write(&buf, binary.BigEndian, int32(len(el)))
		buf.Write(el)
	}
	return buf.Bytes()
}

// IsBundle reports whether data begins with the bundle magic tag.
func IsBundle(data []byte) bool {
	return len(data) >= len(bundleTag) && string(data[:len(bundleTag)]) == bundleTag
}
