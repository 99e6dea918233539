package osc

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		{Address: "/sound2osc/bass", Args: []Arg{FloatArg(0.5)}},
		{Address: "/sound2osc/preset/load", Args: []Arg{StringArg("default.json")}},
		{Address: "/sound2osc/bpm/mute", Args: []Arg{Int32Arg(1)}},
		{Address: "/x", Args: []Arg{BlobArg([]byte{1, 2, 3, 4, 5})}},
		{Address: "/empty", Args: nil},
		{
			Address: "/multi",
			Args:    []Arg{Int32Arg(-7), FloatArg(3.25), StringArg("hi"), BlobArg([]byte{0xff})},
		},
	}

	for _, want := range cases {
		encoded := want.Encode()
		if len(encoded)%4 != 0 {
			t.Fatalf("Encode(%q) length %d is not 4-byte aligned", want.Address, len(encoded))
		}
		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)): %v", want.Address, err)
		}
		if got.Address != want.Address {
			t.Fatalf("Address = %q, want %q", got.Address, want.Address)
		}
		if len(got.Args) != len(want.Args) {
			t.Fatalf("len(Args) = %d, want %d", len(got.Args), len(want.Args))
		}
		for i, a := range want.Args {
			b := got.Args[i]
			if a.Type != b.Type {
				t.Fatalf("arg %d: Type = %q, want %q", i, b.Type, a.Type)
			}
			switch a.Type {
			case TypeInt32:
				if a.Int != b.Int {
					t.Fatalf("arg %d: Int = %d, want %d", i, b.Int, a.Int)
				}
			case TypeFloat:
				if a.Float != b.Float {
					t.Fatalf("arg %d: Float = %v, want %v", i, b.Float, a.Float)
				}
			case TypeString:
				if a.Str != b.Str {
					t.Fatalf("arg %d: Str = %q, want %q", i, b.Str, a.Str)
				}
			case TypeBlob:
				if !bytes.Equal(a.Blob, b.Blob) {
					t.Fatalf("arg %d: Blob = %v, want %v", i, b.Blob, a.Blob)
				}
			}
		}
	}
}

func TestAddressPaddingExactlyFourWhenAlreadyAligned(t *testing.T) {
	// "/abc" is 4 bytes; the padded form must still carry a null
	// terminator plus 3 more to reach the next boundary (8 bytes total).
	m := Message{Address: "/abc", Args: nil}
	encoded := m.Encode()
	// address(4)+nul(1)+pad(3) = 8, then type-tag "," -> 4 bytes.
	if len(encoded) != 12 {
		t.Fatalf("len(encoded) = %d, want 12", len(encoded))
	}
	for i := 4; i < 8; i++ {
		if encoded[i] != 0 {
			t.Fatalf("byte %d = %d, want 0 (padding)", i, encoded[i])
		}
	}
}

func TestDecodeRejectsUnterminatedAddress(t *testing.T) {
	_, err := Decode([]byte{'/', 'a', 'b', 'c'})
	if err == nil {
		t.Fatalf("Decode(unterminated): want error, got nil")
	}
}

func TestDecodeRejectsMissingTypeTagComma(t *testing.T) {
	m := Message{Address: "/x", Args: nil}
	encoded := m.Encode()
	// Corrupt the leading ',' of the type tag string.
	encoded[4] = 'z'
	_, err := Decode(encoded)
	if err == nil {
		t.Fatalf("Decode(corrupted type tag): want error, got nil")
	}
}

func TestDecodeRejectsTruncatedInt32(t *testing.T) {
	m := Message{Address: "/x", Args: []Arg{Int32Arg(42)}}
	encoded := m.Encode()
	_, err := Decode(encoded[:len(encoded)-4])
	if err == nil {
		t.Fatalf("Decode(truncated int32): want error, got nil")
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	m := Message{Address: "/x", Args: []Arg{BlobArg([]byte{1, 2, 3, 4, 5, 6, 7, 8})}}
	encoded := m.Encode()
	_, err := Decode(encoded[:len(encoded)-4])
	if err == nil {
		t.Fatalf("Decode(truncated blob): want error, got nil")
	}
}
