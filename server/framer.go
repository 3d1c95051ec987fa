package server

import (
	"time"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/frame"
	"github.com/lgili/modbuscore/queue"
)

// Framer encodes outgoing responses and incrementally decodes inbound bytes
// into ADUs — the server-side counterpart of client.Framer, per spec.md
// §4.4 "Ingress". Feed appends freshly received bytes; Next returns the
// next fully decoded frame, if any. RTUFramer also drops frames its
// duplicate filter flags; MBAPFramer applies no duplicate filtering.
type Framer interface {
	Encode(buf []byte, unitID, functionCode byte, data []byte, transactionID uint16) (int, error)
	Feed(data []byte)
	Next() (modbuscore.ADU, bool)
}

// RTUFramer frames over a serial line: CRC-guarded, resynchronizing on
// garbled input via frame.Resync, and suppressing replayed frames via
// frame.DupFilter per spec.md §3 "Duplicate-frame filter".
type RTUFramer struct {
	resync *frame.Resync
	dup    *frame.DupFilter
	now    func() time.Time
}

// NewRTUFramer builds an RTU server framer. scratchCapacity sizes the
// resync scratch buffer; dupWindow/dupAge size the duplicate filter (zero
// values fall back to frame.DefaultDupWindow/DefaultDupAge); now supplies
// the clock the duplicate filter ages entries against.
func NewRTUFramer(scratchCapacity, dupWindow int, dupAge time.Duration, now func() time.Time) *RTUFramer {
	if now == nil {
		now = time.Now
	}
	return &RTUFramer{
		resync: frame.NewResync(scratchCapacity),
		dup:    frame.NewDupFilter(dupWindow, dupAge),
		now:    now,
	}
}

// Encode implements Framer; transactionID is ignored (RTU has none).
func (f *RTUFramer) Encode(buf []byte, unitID, functionCode byte, data []byte, _ uint16) (int, error) {
	return frame.EncodeRTU(buf, unitID, functionCode, data)
}

// Feed implements Framer.
func (f *RTUFramer) Feed(data []byte) { f.resync.Feed(data) }

// Next implements Framer, dropping frames the duplicate filter recognizes
// as a recent replay.
func (f *RTUFramer) Next() (modbuscore.ADU, bool) {
	for {
		adu, ok := f.resync.Scan()
		if !ok {
			return modbuscore.ADU{}, false
		}
		if f.dup.Check(adu.UnitID, adu.FunctionCode, adu.Data, f.now()) {
			continue // duplicate; keep scanning for the next frame
		}
		return adu, true
	}
}

// Stats exposes the underlying resynchronizer's recovery counters.
func (f *RTUFramer) Stats() frame.Stats { return f.resync.Stats() }

// MBAPFramer frames over a TCP stream: length-prefixed, transaction-ID
// correlated, one connection per Pipeline.
type MBAPFramer struct {
	rx *queue.RingBuffer
}

// NewMBAPFramer builds an MBAP server framer with the given receive-buffer
// capacity.
func NewMBAPFramer(rxCapacity int) *MBAPFramer {
	return &MBAPFramer{rx: queue.NewRingBuffer(rxCapacity)}
}

// Encode implements Framer.
func (f *MBAPFramer) Encode(buf []byte, unitID, functionCode byte, data []byte, transactionID uint16) (int, error) {
	return frame.EncodeMBAP(buf, transactionID, unitID, functionCode, data)
}

// Feed implements Framer.
func (f *MBAPFramer) Feed(data []byte) { f.rx.Write(data) }

// Next implements Framer, waiting for a complete MBAP header-plus-body
// before decoding, exactly as client.MBAPFramer does.
func (f *MBAPFramer) Next() (modbuscore.ADU, bool) {
	if f.rx.Len() < 6 {
		return modbuscore.ADU{}, false
	}
	header := make([]byte, 6)
	f.rx.Peek(header)

	total, err := frame.MBAPFrameLength(header)
	if err != nil {
		f.rx.Discard(1)
		return modbuscore.ADU{}, false
	}
	if f.rx.Len() < total {
		return modbuscore.ADU{}, false
	}

	full := make([]byte, total)
	f.rx.Peek(full)
	f.rx.Discard(total)

	adu, err := frame.DecodeMBAPADU(full)
	if err != nil {
		return modbuscore.ADU{}, false
	}
	return adu, true
}
