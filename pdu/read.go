package pdu

import "encoding/binary"

// Quantity bounds per spec.md §4.1.
const (
	MaxReadBitsQuantity  = 2000
	MaxReadRegsQuantity  = 125
	MaxWriteRegsQuantity = 123
	MaxWriteBitsQuantity = 1968
)

// BuildReadRequest encodes a read-coils/discrete-inputs/holding/input
// registers request (FC 0x01/0x02/0x03/0x04) into buf, returning the number
// of bytes written. maxQuantity bounds the caller's declared quantity (2000
// for bit access, 125 for register access).
func BuildReadRequest(buf []byte, address, quantity uint16, maxQuantity uint16) (int, error) {
	if quantity < 1 || quantity > maxQuantity {
		return 0, errInvalid("quantity %d out of range [1,%d]", quantity, maxQuantity)
	}
	if len(buf) < 4 {
		return 0, errInvalid("buffer too small: need 4, have %d", len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	binary.BigEndian.PutUint16(buf[2:], quantity)
	return 4, nil
}

// ParseReadRequest decodes a read request body, validating the declared
// quantity against maxQuantity and rejecting trailing bytes.
func ParseReadRequest(data []byte, maxQuantity uint16) (address, quantity uint16, err error) {
	if len(data) != 4 {
		return 0, 0, errMalformed("read request length %d, want 4", len(data))
	}
	address = binary.BigEndian.Uint16(data[0:])
	quantity = binary.BigEndian.Uint16(data[2:])
	if quantity < 1 || quantity > maxQuantity {
		return 0, 0, errMalformed("quantity %d out of range [1,%d]", quantity, maxQuantity)
	}
	if int(address)+int(quantity) > 0xFFFF {
		return 0, 0, errMalformed("address range overflows 16 bits: %d+%d", address, quantity)
	}
	return address, quantity, nil
}

// BuildReadBitsResponse encodes a read-coils/discrete-inputs response: byte
// count followed by packed bits, LSB-first.
func BuildReadBitsResponse(buf []byte, bits []bool) (int, error) {
	quantity := uint16(len(bits))
	n := byteCount(quantity)
	if n > 255 {
		return 0, errInvalid("too many bits for one response: %d", quantity)
	}
	if len(buf) < 1+n {
		return 0, errInvalid("buffer too small: need %d, have %d", 1+n, len(buf))
	}
	buf[0] = byte(n)
	for i := 1; i < 1+n; i++ {
		buf[i] = 0
	}
	packBits(buf[1:1+n], bits)
	return 1 + n, nil
}

// ParseReadBitsResponse decodes a read-coils/discrete-inputs response,
// validating that the byte-count field equals ceil(quantity/8) and that no
// trailing bytes remain.
func ParseReadBitsResponse(data []byte, quantity uint16) ([]bool, error) {
	want := byteCount(quantity)
	if len(data) < 1 {
		return nil, errMalformed("empty read-bits response")
	}
	n := int(data[0])
	if n != want {
		return nil, errMalformed("byte count %d does not match quantity %d (want %d)", n, quantity, want)
	}
	if len(data) != 1+n {
		return nil, errMalformed("trailing bytes: response length %d, want %d", len(data), 1+n)
	}
	return unpackBits(data[1:], quantity), nil
}

// BuildReadRegistersResponse encodes a read-holding/input-registers response:
// byte count (quantity*2) followed by big-endian 16-bit values.
func BuildReadRegistersResponse(buf []byte, values []uint16) (int, error) {
	n := len(values) * 2
	if n > 255 {
		return 0, errInvalid("too many registers for one response: %d", len(values))
	}
	if len(buf) < 1+n {
		return 0, errInvalid("buffer too small: need %d, have %d", 1+n, len(buf))
	}
	buf[0] = byte(n)
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[1+2*i:], v)
	}
	return 1 + n, nil
}

// ParseReadRegistersResponse decodes a read-holding/input-registers response,
// validating that the byte-count field equals quantity*2 and that no
// trailing bytes remain.
func ParseReadRegistersResponse(data []byte, quantity uint16) ([]uint16, error) {
	want := int(quantity) * 2
	if len(data) < 1 {
		return nil, errMalformed("empty read-registers response")
	}
	n := int(data[0])
	if n != want {
		return nil, errMalformed("byte count %d does not match quantity*2 %d", n, want)
	}
	if len(data) != 1+n {
		return nil, errMalformed("trailing bytes: response length %d, want %d", len(data), 1+n)
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[1+2*i:])
	}
	return out, nil
}
