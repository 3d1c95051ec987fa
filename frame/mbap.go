package frame

import (
	"encoding/binary"

	"github.com/lgili/modbuscore"
)

// MBAP frame size bounds, spec.md §6.
const (
	MBAPHeaderSize = 7
	MBAPMaxSize    = 260
	mbapProtocolID = 0x0000
)

// EncodeMBAP composes the 7-byte MBAP header (transaction ID, protocol ID=0,
// length, unit ID) followed by functionCode+data, into buf.
func EncodeMBAP(buf []byte, transactionID uint16, unitID, functionCode byte, data []byte) (int, error) {
	if len(data) > modbuscore.MaxPDUData {
		return 0, errf("payload length %d exceeds PDU max %d", len(data), modbuscore.MaxPDUData)
	}
	total := MBAPHeaderSize + 1 + len(data)
	if total > MBAPMaxSize {
		return 0, errf("frame length %d exceeds MBAP max %d", total, MBAPMaxSize)
	}
	if len(buf) < total {
		return 0, errf("buffer too small: need %d, have %d", total, len(buf))
	}
	length := uint16(1 + 1 + len(data)) // unit id + function code + data
	binary.BigEndian.PutUint16(buf[0:], transactionID)
	binary.BigEndian.PutUint16(buf[2:], mbapProtocolID)
	binary.BigEndian.PutUint16(buf[4:], length)
	buf[6] = unitID
	buf[7] = functionCode
	copy(buf[8:], data)
	return total, nil
}

// DecodeMBAP validates the protocol ID and declared length against the
// actual remaining bytes, returning the transaction ID, unit ID, function
// code, and payload view (aliasing frm).
func DecodeMBAP(frm []byte) (transactionID uint16, unitID, functionCode byte, data []byte, err error) {
	if len(frm) < MBAPHeaderSize+1 {
		return 0, 0, 0, nil, errf("frame length %d below minimum %d", len(frm), MBAPHeaderSize+1)
	}
	protocolID := binary.BigEndian.Uint16(frm[2:])
	if protocolID != mbapProtocolID {
		return 0, 0, 0, nil, errf("protocol id 0x%04X must be zero", protocolID)
	}
	length := binary.BigEndian.Uint16(frm[4:])
	remaining := len(frm) - 6
	if int(length) != remaining {
		return 0, 0, 0, nil, errf("declared length %d does not match remaining bytes %d", length, remaining)
	}
	transactionID = binary.BigEndian.Uint16(frm[0:])
	unitID = frm[6]
	functionCode = frm[7]
	return transactionID, unitID, functionCode, frm[8:], nil
}

// DecodeMBAPADU is DecodeMBAP wrapped into a modbuscore.ADU.
func DecodeMBAPADU(frm []byte) (modbuscore.ADU, error) {
	tid, unitID, fc, data, err := DecodeMBAP(frm)
	if err != nil {
		return modbuscore.ADU{}, err
	}
	return modbuscore.ADU{TransactionID: tid, UnitID: unitID, FunctionCode: fc, Data: data}, nil
}

// MBAPFrameLength reports the total frame length declared by an MBAP header
// once its first 6 bytes (transaction id, protocol id, length) are known —
// used by stream transports to know how many more bytes to read before a
// frame is complete, per spec.md §4.4 "Ingress".
func MBAPFrameLength(header6 []byte) (int, error) {
	if len(header6) < 6 {
		return 0, errf("need at least 6 header bytes, have %d", len(header6))
	}
	length := binary.BigEndian.Uint16(header6[4:])
	if length == 0 {
		return 0, errf("declared length must not be zero")
	}
	return 6 + int(length), nil
}
