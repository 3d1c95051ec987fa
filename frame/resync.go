package frame

import (
	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/crc"
	"github.com/lgili/modbuscore/queue"
)

// Resync recovers RTU frame alignment from a garbled byte stream, per
// spec.md §4.2. Incoming bytes accumulate in a bounded scratch ring; Scan
// advances one byte at a time over plausible start positions (unit IDs in
// [0,247]) and quick-tests CRC alignment at each. A tentative frame that
// passes CRC is promoted to a decoded ADU; bytes before it are discarded and
// counted.
type Resync struct {
	scratch *queue.RingBuffer

	discarded uint64
	attempts  uint64
	recovered uint64
}

// NewResync allocates a resynchronizer with the given scratch capacity
// (rounded up to a power of two).
func NewResync(scratchCapacity int) *Resync {
	return &Resync{scratch: queue.NewRingBuffer(scratchCapacity)}
}

// Feed appends newly-received bytes to the scratch buffer; if the buffer is
// full, the new bytes that do not fit are discarded (and counted).
func (r *Resync) Feed(data []byte) {
	n := r.scratch.Write(data)
	if n < len(data) {
		// Scratch saturated; drop the bytes that didn't fit rather than
		// stall ingestion. They are lost, not merely delayed, so count them
		// as discarded.
		r.discarded += uint64(len(data) - n)
	}
}

// Scan attempts to recover one frame from the scratch buffer. It returns the
// decoded ADU and true on success, having discarded all bytes up to and
// including the recovered frame. On failure (no valid frame found yet) it
// returns false, having discarded bytes that can provably never start a
// valid frame (implausible unit IDs) but keeping the rest for the next Scan
// once more bytes arrive.
func (r *Resync) Scan() (modbuscore.ADU, bool) {
	buf := make([]byte, r.scratch.Len())
	r.scratch.Peek(buf)

	deadPrefix := 0
	for offset := 0; offset+RTUMinSize <= len(buf); offset++ {
		unit := buf[offset]
		if unit > 247 {
			// Not a plausible unit id (broadcast 0 included); this byte can
			// never start a valid frame. Only count it toward the dead
			// prefix if every offset before it has already been ruled dead
			// too, so the eventual single Discard retires a contiguous run.
			if offset == deadPrefix {
				deadPrefix++
			}
			continue
		}
		r.attempts++
		if adu, n, ok := tryDecodeAt(buf[offset:]); ok {
			r.scratch.Discard(offset + n)
			r.discarded += uint64(offset)
			r.recovered++
			return adu, true
		}
	}
	// No frame recovered from the data on hand. Retire the leading run of
	// bytes that can provably never start a valid frame, keeping the
	// remainder buffered in case more bytes complete a pending match.
	if deadPrefix > 0 {
		r.scratch.Discard(deadPrefix)
		r.discarded += uint64(deadPrefix)
	}
	return modbuscore.ADU{}, false
}

// tryDecodeAt tests successive candidate frame lengths starting at buf[0],
// returning the first length at which the CRC verifies.
func tryDecodeAt(buf []byte) (modbuscore.ADU, int, bool) {
	maxLen := len(buf)
	if maxLen > RTUMaxSize {
		maxLen = RTUMaxSize
	}
	for length := RTUMinSize; length <= maxLen; length++ {
		candidate := buf[:length]
		if crc.Verify(candidate) {
			unitID, fc, data, err := DecodeRTU(candidate)
			if err == nil {
				return modbuscore.ADU{UnitID: unitID, FunctionCode: fc, Data: append([]byte(nil), data...)}, length, true
			}
		}
	}
	return modbuscore.ADU{}, 0, false
}

// Stats reports the resynchronizer's recovery counters.
type Stats struct {
	Discarded uint64
	Attempts  uint64
	Recovered uint64
}

// Stats returns a snapshot of the resynchronizer's counters.
func (r *Resync) Stats() Stats {
	return Stats{Discarded: r.discarded, Attempts: r.attempts, Recovered: r.recovered}
}
