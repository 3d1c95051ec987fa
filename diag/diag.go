// Package diag implements the diagnostic snapshot described in spec.md §3/
// §6/§7: counters per function code, counters per error-taxonomy slot, and
// an optional fixed-depth trace ring.
package diag

import (
	"sync"
	"time"

	"github.com/lgili/modbuscore"
)

// Status is one slot of the error taxonomy from spec.md §7. Exactly one
// Status terminates every transaction or request.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusTimeout
	StatusTransport
	StatusCRC
	StatusInvalidRequest
	// StatusOtherUnit is a frame addressed to a different unit — the single
	// spelling chosen in place of the spec's ambiguous "OTHER_REQUESTS" vs
	// "OTHER" naming; see DESIGN.md.
	StatusOtherUnit
	StatusCancelled
	StatusNoResources
	// StatusBusy is exception 0x06 (slave device busy), broken out of the
	// generic exception bucket because it is the one code integrators most
	// want to watch on its own; see DESIGN.md.
	StatusBusy
	// StatusException is any server-returned exception other than BUSY;
	// the originating code is carried in client.Result.Exception.
	StatusException

	statusCount
)

// String names a Status for logging.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusTimeout:
		return "timeout"
	case StatusTransport:
		return "transport"
	case StatusCRC:
		return "crc"
	case StatusInvalidRequest:
		return "invalid_request"
	case StatusOtherUnit:
		return "other_unit"
	case StatusCancelled:
		return "cancelled"
	case StatusNoResources:
		return "no_resources"
	case StatusBusy:
		return "busy"
	case StatusException:
		return "exception"
	default:
		return "unknown"
	}
}

// StatusForException classifies a server exception code into its diagnostic
// slot: ExServerDeviceBusy gets its own StatusBusy slot, every other
// exception code falls into StatusException.
func StatusForException(code modbuscore.Exception) Status {
	if code == modbuscore.ExServerDeviceBusy {
		return StatusBusy
	}
	return StatusException
}

// TraceEntry is one record in the trace ring: a timestamped status for a
// given function code.
type TraceEntry struct {
	At           time.Time
	FunctionCode byte
	Status       Status
}

// TurnaroundStats summarizes the RX-completion-to-TX-start latency spec.md
// §4.5 requires servers and clients to expose: min/max/avg over every
// measured turnaround.
type TurnaroundStats struct {
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	Count uint64
}

// Snapshot is a point-in-time copy of the diagnostics: per-FC counters
// indexed by function code, per-status counters, the trace ring's current
// contents oldest-first, and turnaround-latency stats.
type Snapshot struct {
	ByFunctionCode map[byte]uint64
	ByStatus       [int(statusCount)]uint64
	Trace          []TraceEntry
	Turnaround     TurnaroundStats
}

// Diag accumulates per-FC and per-status counters, turnaround-latency
// stats, plus an optional fixed-depth trace ring. Safe for concurrent use.
type Diag struct {
	mu sync.Mutex

	byFC     map[byte]uint64
	byStatus [int(statusCount)]uint64

	trace     []TraceEntry
	traceCap  int
	traceNext int
	traceLen  int

	turnaroundMin   time.Duration
	turnaroundMax   time.Duration
	turnaroundSum   time.Duration
	turnaroundCount uint64
}

// New builds a Diag. traceDepth <= 0 disables the trace ring.
func New(traceDepth int) *Diag {
	d := &Diag{byFC: make(map[byte]uint64)}
	if traceDepth > 0 {
		d.trace = make([]TraceEntry, traceDepth)
		d.traceCap = traceDepth
	}
	return d
}

// Record increments the function-code and status counters for one completed
// transaction/request and appends a trace entry (if a trace ring is
// configured).
func (d *Diag) Record(functionCode byte, status Status, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.byFC[functionCode]++
	if int(status) < len(d.byStatus) {
		d.byStatus[status]++
	}

	if d.traceCap > 0 {
		d.trace[d.traceNext] = TraceEntry{At: at, FunctionCode: functionCode, Status: status}
		d.traceNext = (d.traceNext + 1) % d.traceCap
		if d.traceLen < d.traceCap {
			d.traceLen++
		}
	}
}

// RecordTurnaround folds one RX-completion-to-TX-start measurement into the
// running min/max/avg, per spec.md §4.5.
func (d *Diag) RecordTurnaround(elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.turnaroundCount == 0 || elapsed < d.turnaroundMin {
		d.turnaroundMin = elapsed
	}
	if elapsed > d.turnaroundMax {
		d.turnaroundMax = elapsed
	}
	d.turnaroundSum += elapsed
	d.turnaroundCount++
}

// Snapshot returns a copy of the current counters, turnaround stats, and
// trace ring, oldest trace entry first.
func (d *Diag) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	byFC := make(map[byte]uint64, len(d.byFC))
	for k, v := range d.byFC {
		byFC[k] = v
	}

	s := Snapshot{ByFunctionCode: byFC}
	s.ByStatus = d.byStatus

	if d.turnaroundCount > 0 {
		s.Turnaround = TurnaroundStats{
			Min:   d.turnaroundMin,
			Max:   d.turnaroundMax,
			Avg:   d.turnaroundSum / time.Duration(d.turnaroundCount),
			Count: d.turnaroundCount,
		}
	}

	if d.traceCap > 0 && d.traceLen > 0 {
		s.Trace = make([]TraceEntry, d.traceLen)
		start := (d.traceNext - d.traceLen + d.traceCap) % d.traceCap
		for i := 0; i < d.traceLen; i++ {
			s.Trace[i] = d.trace[(start+i)%d.traceCap]
		}
	}
	return s
}
