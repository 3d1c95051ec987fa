package pdu

import "encoding/binary"

// BuildMaskWriteRegisterRequest encodes a mask-write-register (FC 0x16)
// request/response body: address, AND mask, OR mask. The two share wire
// shape.
func BuildMaskWriteRegisterRequest(buf []byte, address, andMask, orMask uint16) (int, error) {
	if len(buf) < 6 {
		return 0, errInvalid("buffer too small: need 6, have %d", len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	binary.BigEndian.PutUint16(buf[2:], andMask)
	binary.BigEndian.PutUint16(buf[4:], orMask)
	return 6, nil
}

// ParseMaskWriteRegisterRequest decodes a mask-write-register body.
func ParseMaskWriteRegisterRequest(data []byte) (address, andMask, orMask uint16, err error) {
	if len(data) != 6 {
		return 0, 0, 0, errMalformed("mask-write-register length %d, want 6", len(data))
	}
	return binary.BigEndian.Uint16(data[0:]), binary.BigEndian.Uint16(data[2:]), binary.BigEndian.Uint16(data[4:]), nil
}

// ApplyMask computes V' = (V AND andMask) OR (orMask AND NOT andMask), the
// mask-write-register update rule from spec.md §4.4.
func ApplyMask(current, andMask, orMask uint16) uint16 {
	return (current & andMask) | (orMask &^ andMask)
}
