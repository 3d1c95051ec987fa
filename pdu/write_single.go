package pdu

import "encoding/binary"

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// BuildWriteSingleCoilRequest encodes a write-single-coil request/response
// body (the two share wire shape: address + coil value).
func BuildWriteSingleCoilRequest(buf []byte, address uint16, value bool) (int, error) {
	if len(buf) < 4 {
		return 0, errInvalid("buffer too small: need 4, have %d", len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	v := coilOff
	if value {
		v = coilOn
	}
	binary.BigEndian.PutUint16(buf[2:], v)
	return 4, nil
}

// ParseWriteSingleCoilRequest decodes a write-single-coil body, rejecting any
// coil value other than the two wire-defined constants 0xFF00/0x0000.
func ParseWriteSingleCoilRequest(data []byte) (address uint16, value bool, err error) {
	if len(data) != 4 {
		return 0, false, errMalformed("write-single-coil length %d, want 4", len(data))
	}
	address = binary.BigEndian.Uint16(data[0:])
	switch v := binary.BigEndian.Uint16(data[2:]); v {
	case coilOn:
		value = true
	case coilOff:
		value = false
	default:
		return 0, false, errMalformed("invalid coil value 0x%04X", v)
	}
	return address, value, nil
}

// BuildWriteSingleRegisterRequest encodes a write-single-register
// request/response body.
func BuildWriteSingleRegisterRequest(buf []byte, address, value uint16) (int, error) {
	if len(buf) < 4 {
		return 0, errInvalid("buffer too small: need 4, have %d", len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	binary.BigEndian.PutUint16(buf[2:], value)
	return 4, nil
}

// ParseWriteSingleRegisterRequest decodes a write-single-register body.
func ParseWriteSingleRegisterRequest(data []byte) (address, value uint16, err error) {
	if len(data) != 4 {
		return 0, 0, errMalformed("write-single-register length %d, want 4", len(data))
	}
	return binary.BigEndian.Uint16(data[0:]), binary.BigEndian.Uint16(data[2:]), nil
}
