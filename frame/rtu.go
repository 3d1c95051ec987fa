// Package frame implements the RTU and MBAP/TCP frame codecs, RTU stream
// resynchronization, ASCII framing, and duplicate-frame filtering described
// in spec.md §4.2.
package frame

import (
	"fmt"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/crc"
)

// RTU frame size bounds, spec.md §6.
const (
	RTUMinSize = 4 // unit id + function code + 2-byte CRC
	RTUMaxSize = 256
)

// Error reports a frame-level failure: CRC mismatch, malformed header, or a
// capacity violation.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "frame: " + e.Reason }

func errf(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// EncodeRTU writes unitID, functionCode, data, and a little-endian CRC-16
// into buf, returning the number of bytes written. Fails if data exceeds the
// PDU maximum or buf lacks capacity.
func EncodeRTU(buf []byte, unitID, functionCode byte, data []byte) (int, error) {
	if len(data) > modbuscore.MaxPDUData {
		return 0, errf("payload length %d exceeds PDU max %d", len(data), modbuscore.MaxPDUData)
	}
	total := 2 + len(data) + 2
	if total > RTUMaxSize {
		return 0, errf("frame length %d exceeds RTU max %d", total, RTUMaxSize)
	}
	if len(buf) < total {
		return 0, errf("buffer too small: need %d, have %d", total, len(buf))
	}
	buf[0] = unitID
	buf[1] = functionCode
	copy(buf[2:], data)
	sum := crc.Checksum(buf[:2+len(data)])
	buf[2+len(data)] = byte(sum)
	buf[2+len(data)+1] = byte(sum >> 8)
	return total, nil
}

// DecodeRTU requires at least RTUMinSize bytes, verifies the trailing CRC,
// and returns the unit ID, function code, and payload view (aliasing frm).
func DecodeRTU(frm []byte) (unitID, functionCode byte, data []byte, err error) {
	if len(frm) < RTUMinSize {
		return 0, 0, nil, errf("frame length %d below minimum %d", len(frm), RTUMinSize)
	}
	if !crc.Verify(frm) {
		return 0, 0, nil, errf("crc mismatch")
	}
	return frm[0], frm[1], frm[2 : len(frm)-2], nil
}

// DecodeRTUADU is DecodeRTU wrapped into a modbuscore.ADU, the shape used by
// client/server correlation logic.
func DecodeRTUADU(frm []byte) (modbuscore.ADU, error) {
	unitID, fc, data, err := DecodeRTU(frm)
	if err != nil {
		return modbuscore.ADU{}, err
	}
	return modbuscore.ADU{UnitID: unitID, FunctionCode: fc, Data: data}, nil
}
