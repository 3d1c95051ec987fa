package frame

import (
	"hash/fnv"
	"time"
)

// DefaultDupWindow and DefaultDupAge are the duplicate-filter defaults from
// spec.md §3: a 16-entry FIFO window and a 100ms age limit.
const (
	DefaultDupWindow = 16
	DefaultDupAge    = 100 * time.Millisecond
)

type dupEntry struct {
	hash uint64
	at   time.Time
	live bool
}

// DupFilter rejects frames seen recently, keyed by an FNV-1a fingerprint over
// (unit ID, function code, first 4 payload bytes) per spec.md §3/§4.2. It
// keeps a fixed-size FIFO of recent fingerprints; an entry older than the
// configured age limit is treated as expired even if still physically
// present in the window.
type DupFilter struct {
	window []dupEntry
	next   int // insertion cursor, wraps
	maxAge time.Duration
}

// NewDupFilter builds a filter with the given window size and age limit.
// window <= 0 defaults to DefaultDupWindow; maxAge <= 0 defaults to
// DefaultDupAge.
func NewDupFilter(window int, maxAge time.Duration) *DupFilter {
	if window <= 0 {
		window = DefaultDupWindow
	}
	if maxAge <= 0 {
		maxAge = DefaultDupAge
	}
	return &DupFilter{window: make([]dupEntry, window), maxAge: maxAge}
}

func fingerprint(unitID, functionCode byte, payload []byte) uint64 {
	h := fnv.New64a()
	h.Write([]byte{unitID, functionCode})
	n := len(payload)
	if n > 4 {
		n = 4
	}
	h.Write(payload[:n])
	return h.Sum64()
}

// Check reports whether the frame (unitID, functionCode, payload) arriving
// at now is a duplicate of a still-live entry in the window. If it is not a
// duplicate, the frame's fingerprint is recorded and Check returns false.
//
// Two entries inserted at the exact same timestamp are never considered
// duplicates of each other by age alone — age-out is judged strictly
// (an entry expires only once now.Sub(at) > maxAge, not >=), so a same-
// instant re-check of a genuinely new frame is never starved by its
// predecessor's insert. This resolves spec.md §9's flagged ambiguity around
// same-timestamp inserts by dropping the teacher-shaped "has_last_added"
// guard entirely in favor of an unconditional FIFO overwrite.
func (f *DupFilter) Check(unitID, functionCode byte, payload []byte, now time.Time) bool {
	fp := fingerprint(unitID, functionCode, payload)

	for _, e := range f.window {
		if !e.live {
			continue
		}
		if now.Sub(e.at) > f.maxAge {
			continue // expired; does not count as a match
		}
		if e.hash == fp {
			return true
		}
	}

	f.window[f.next] = dupEntry{hash: fp, at: now, live: true}
	f.next = (f.next + 1) % len(f.window)
	return false
}

// Reset clears all recorded entries.
func (f *DupFilter) Reset() {
	for i := range f.window {
		f.window[i] = dupEntry{}
	}
	f.next = 0
}
