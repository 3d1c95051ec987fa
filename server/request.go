package server

import "time"

// request is a server request record per spec.md §3 "Server request
// record": unit ID, function code, decoded arguments, broadcast flag, and
// an error accumulator, pooled across the pipeline's lifetime via
// pool.FixedPool (see pipeline.go). receivedAt marks RX completion — the
// start of the turnaround window spec.md §4.5 measures to TX start.
type request struct {
	unitID        byte
	functionCode  byte
	data          []byte
	transactionID uint16
	broadcast     bool
	err           error
	receivedAt    time.Time
}

func (r *request) reset() {
	r.unitID = 0
	r.functionCode = 0
	r.data = r.data[:0]
	r.transactionID = 0
	r.broadcast = false
	r.err = nil
	r.receivedAt = time.Time{}
}
