package gateway

import "sync"

type replayEntry struct {
	seq  int64
	data []byte // envelope JSON
}

// ReplayBuffer keeps the most recent envelopes of one channel.
// Safe for concurrent use.
type ReplayBuffer struct {
	mu    sync.RWMutex
	buf   []replayEntry
	next  int // next write position
	count int
}

// NewReplayBuffer creates a replay buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest when full. data is not
// copied; callers must not modify it afterwards.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.next] = replayEntry{seq: seq, data: data}
	rb.next = (rb.next + 1) % len(rb.buf)
	if rb.count < len(rb.buf) {
		rb.count++
	}
}

// Range returns envelopes with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	start := (rb.next - rb.count + len(rb.buf)) % len(rb.buf)
	for i := 0; i < rb.count; i++ {
		e := rb.buf[(start+i)%len(rb.buf)]
		if e.seq >= fromSeq && e.seq <= toSeq {
			out = append(out, e.data)
		}
	}
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
