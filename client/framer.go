package client

import (
	"bytes"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/frame"
	"github.com/lgili/modbuscore/queue"
)

// Framer encodes outgoing requests and incrementally decodes inbound bytes
// into ADUs. Feed appends freshly received bytes; Next returns the next
// fully decoded frame, if any, consuming it from the internal buffer.
type Framer interface {
	Encode(buf []byte, unitID, functionCode byte, data []byte, transactionID uint16) (int, error)
	Feed(data []byte)
	Next() (modbuscore.ADU, bool)
}

// RTUFramer frames over a serial line: no transaction ID, CRC-guarded,
// resynchronizing on garbled input via frame.Resync.
type RTUFramer struct {
	resync *frame.Resync
}

// NewRTUFramer builds an RTU framer with the given scratch-buffer capacity.
func NewRTUFramer(scratchCapacity int) *RTUFramer {
	return &RTUFramer{resync: frame.NewResync(scratchCapacity)}
}

// Encode implements Framer; transactionID is ignored (RTU has none).
func (f *RTUFramer) Encode(buf []byte, unitID, functionCode byte, data []byte, _ uint16) (int, error) {
	return frame.EncodeRTU(buf, unitID, functionCode, data)
}

// Feed implements Framer.
func (f *RTUFramer) Feed(data []byte) { f.resync.Feed(data) }

// Next implements Framer.
func (f *RTUFramer) Next() (modbuscore.ADU, bool) { return f.resync.Scan() }

// Stats exposes the underlying resynchronizer's recovery counters.
func (f *RTUFramer) Stats() frame.Stats { return f.resync.Stats() }

// MBAPFramer frames over a TCP stream: length-prefixed, transaction-ID
// correlated.
type MBAPFramer struct {
	rx *queue.RingBuffer
}

// NewMBAPFramer builds an MBAP framer with the given receive-buffer
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

// Next implements Framer. It waits for at least the 6-byte length-bearing
// prefix, computes the declared total frame length, and waits again if the
// body has not fully arrived.
func (f *MBAPFramer) Next() (modbuscore.ADU, bool) {
	if f.rx.Len() < 6 {
		return modbuscore.ADU{}, false
	}
	header := make([]byte, 6)
	f.rx.Peek(header)

	total, err := frame.MBAPFrameLength(header)
	if err != nil {
		// A declared length of zero can never be valid; drop one byte and
		// let the next Feed realign rather than stall forever on garbage.
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

// ASCIIFramer frames over a serial line in hex-encoded ASCII mode,
// delimited by ':' ... CRLF.
type ASCIIFramer struct {
	rx *queue.RingBuffer
}

// NewASCIIFramer builds an ASCII framer with the given receive-buffer
// capacity.
func NewASCIIFramer(rxCapacity int) *ASCIIFramer {
	return &ASCIIFramer{rx: queue.NewRingBuffer(rxCapacity)}
}

// Encode implements Framer; transactionID is ignored (ASCII has none).
func (f *ASCIIFramer) Encode(buf []byte, unitID, functionCode byte, data []byte, _ uint16) (int, error) {
	return frame.EncodeASCII(buf, unitID, functionCode, data)
}

// Feed implements Framer.
func (f *ASCIIFramer) Feed(data []byte) { f.rx.Write(data) }

// Next implements Framer, scanning for a ':'-delimited, CRLF-terminated
// frame and discarding any bytes before the first ':' as noise.
func (f *ASCIIFramer) Next() (modbuscore.ADU, bool) {
	buf := make([]byte, f.rx.Len())
	f.rx.Peek(buf)

	start := bytes.IndexByte(buf, frame.ASCIIStart)
	if start < 0 {
		if len(buf) > 0 {
			f.rx.Discard(len(buf))
		}
		return modbuscore.ADU{}, false
	}
	if start > 0 {
		f.rx.Discard(start)
		buf = buf[start:]
	}

	end := bytes.Index(buf, []byte(frame.ASCIIEnd))
	if end < 0 {
		return modbuscore.ADU{}, false // frame incomplete; wait for more bytes
	}
	frm := buf[:end+len(frame.ASCIIEnd)]
	f.rx.Discard(len(frm))

	unitID, fc, data, err := frame.DecodeASCII(frm)
	if err != nil {
		return modbuscore.ADU{}, false
	}
	return modbuscore.ADU{UnitID: unitID, FunctionCode: fc, Data: append([]byte(nil), data...)}, true
}
