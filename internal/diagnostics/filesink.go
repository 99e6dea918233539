package diagnostics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends diagnostic events to a JSON-lines file, one Event per
// line, adapted from the teacher's eventlog.Logger.
type FileSink struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewFileSink opens (creating if necessary) the JSONL file at filePath for
// appending.
func NewFileSink(filePath string) (*FileSink, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostics log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics log file: %w", err)
	}

	return &FileSink{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Emit implements Sink. Write failures are swallowed rather than routed
// back through the sink chain, to avoid a failing sink recursively
// generating diagnostics about itself.
func (s *FileSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.encoder.Encode(e)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Path returns the path to the log file.
func (s *FileSink) Path() string {
	return s.filePath
}

// MaxReadLimit bounds ReadLast's n parameter, defending against excessive
// memory allocation from a caller-supplied count.
const MaxReadLimit = 500

// ReadLast reads up to n diagnostic events from filePath, newest first,
// skipping offset matching events and optionally filtering to a single
// Code (empty filter matches everything). The second return value reports
// whether more matching events remain beyond what was returned.
func ReadLast(filePath string, n, offset int, filter Code) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	matches := func(e Event) bool {
		return filter == "" || e.Code == filter
	}

	events := make([]Event, 0, n)
	skipped := 0
	lastMatchedIdx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		var e Event
		if err := json.Unmarshal([]byte(lines[i]), &e); err != nil {
			continue
		}
		if !matches(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		events = append(events, e)
		lastMatchedIdx = i
		if len(events) >= n {
			break
		}
	}

	hasMore := false
	if len(events) == n && lastMatchedIdx > 0 {
		for i := lastMatchedIdx - 1; i >= 0; i-- {
			var e Event
			if err := json.Unmarshal([]byte(lines[i]), &e); err != nil {
				continue
			}
			if matches(e) {
				hasMore = true
				break
			}
		}
	}

	return events, hasMore, nil
}
