// Package ringbuf provides the lock-free single-producer/single-consumer
// sample ring that bridges the real-time audio callback to the 44 Hz
// processing tick.
package ringbuf

import "sync/atomic"

// Capacity is the fixed number of float32 samples the ring holds (4x the
// FFT frame size, per spec).
const Capacity = 16384

// Buffer is a fixed-capacity circular sequence of float32 samples.
//
// Push is called from the audio context: it never blocks, never
// allocates, and is safe to call concurrently with at most one other
// goroutine calling SnapshotLast. SnapshotLast is called from the
// processing context only.
//
// On overrun (the producer writes more than Capacity samples between two
// consumer snapshots) the oldest samples are silently discarded; the
// producer is canonical and is never slowed down by a slow consumer.
type Buffer struct {
	data    [Capacity]float32
	written atomic.Uint64 // monotonic count of samples ever pushed
}

// New returns an empty ring buffer.
func New() *Buffer {
	return &Buffer{}
}

// Push appends samples to the ring. Wait-free, zero allocation.
func (b *Buffer) Push(samples []float32) {
	w := b.written.Load()
	for _, s := range samples {
		b.data[w%Capacity] = s
		w++
	}
	// Single store, after all samples are visible, so a concurrent
	// SnapshotLast never observes a torn write window.
	b.written.Store(w)
}

// SnapshotLast copies the n most recent samples into dst (len(dst) must be
// n) in chronological order (oldest first). If fewer than n samples have
// ever been pushed, the prefix of dst is zero-filled.
//
// SnapshotLast always returns the most recent n samples as of the moment
// it is called, even if Push has appended more since the previous call:
// it is a sliding window over the live stream, not a queue that must be
// drained.
func (b *Buffer) SnapshotLast(dst []float32) {
	n := len(dst)
	w := b.written.Load()

	if w < uint64(n) {
		zeroed := n - int(w)
		for i := range dst[:zeroed] {
			dst[i] = 0
		}
		dst = dst[zeroed:]
		n = len(dst)
	}

	start := w - uint64(n)
	for i := 0; i < n; i++ {
		dst[i] = b.data[(start+uint64(i))%Capacity]
	}
}

// Written reports the total number of samples ever pushed, for callers
// that need to detect whether new data has arrived since a previous tick.
func (b *Buffer) Written() uint64 {
	return b.written.Load()
}
