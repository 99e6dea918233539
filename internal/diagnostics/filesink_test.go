package diagnostics

import (
	"path/filepath"
	"testing"
)

func TestFileSinkRoundTripsEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagnostics.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	sink.Emit(New(LevelWarn, CodeTransportOverflow, "send queue overflowed"))
	sink.Emit(New(LevelError, CodeTickOverrun, "missed tick"))
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, hasMore, err := ReadLast(path, 10, 0, "")
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if hasMore {
		t.Fatalf("hasMore = true, want false for only 2 events")
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	// Newest first.
	if events[0].Code != CodeTickOverrun {
		t.Fatalf("events[0].Code = %v, want %v", events[0].Code, CodeTickOverrun)
	}
	if events[1].Code != CodeTransportOverflow {
		t.Fatalf("events[1].Code = %v, want %v", events[1].Code, CodeTransportOverflow)
	}
}

func TestReadLastFiltersByCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagnostics.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	sink.Emit(New(LevelWarn, CodeTransportOverflow, "a"))
	sink.Emit(New(LevelError, CodeTickOverrun, "b"))
	sink.Emit(New(LevelWarn, CodeTransportOverflow, "c"))
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, _, err := ReadLast(path, 10, 0, CodeTransportOverflow)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2 for filtered read", len(events))
	}
	for _, e := range events {
		if e.Code != CodeTransportOverflow {
			t.Fatalf("unexpected code in filtered results: %v", e.Code)
		}
	}
}

func TestReadLastOnMissingFileReturnsEmpty(t *testing.T) {
	events, hasMore, err := ReadLast(filepath.Join(t.TempDir(), "missing.jsonl"), 10, 0, "")
	if err != nil {
		t.Fatalf("ReadLast on missing file: %v", err)
	}
	if len(events) != 0 || hasMore {
		t.Fatalf("got events=%v hasMore=%v, want empty/false", events, hasMore)
	}
}

func TestLevelJSONRoundTrip(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		data, err := lvl.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v): %v", lvl, err)
		}
		var got Level
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%q): %v", data, err)
		}
		if got != lvl {
			t.Fatalf("round trip: got %v, want %v", got, lvl)
		}
	}
}
