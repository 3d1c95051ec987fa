package pdu

import "encoding/binary"

// BuildWriteMultipleCoilsRequest encodes a write-multiple-coils request body:
// address, quantity, byte count, packed bits.
func BuildWriteMultipleCoilsRequest(buf []byte, address uint16, bits []bool) (int, error) {
	quantity := uint16(len(bits))
	if quantity < 1 || quantity > MaxWriteBitsQuantity {
		return 0, errInvalid("quantity %d out of range [1,%d]", quantity, MaxWriteBitsQuantity)
	}
	n := byteCount(quantity)
	total := 5 + n
	if len(buf) < total {
		return 0, errInvalid("buffer too small: need %d, have %d", total, len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	binary.BigEndian.PutUint16(buf[2:], quantity)
	buf[4] = byte(n)
	for i := 5; i < total; i++ {
		buf[i] = 0
	}
	packBits(buf[5:total], bits)
	return total, nil
}

// ParseWriteMultipleCoilsRequest decodes a write-multiple-coils request,
// validating quantity bounds and that the byte-count field agrees with both
// the derived value and the actual trailing length.
func ParseWriteMultipleCoilsRequest(data []byte) (address uint16, bits []bool, err error) {
	if len(data) < 5 {
		return 0, nil, errMalformed("write-multiple-coils request too short: %d", len(data))
	}
	address = binary.BigEndian.Uint16(data[0:])
	quantity := binary.BigEndian.Uint16(data[2:])
	n := int(data[4])
	switch {
	case quantity < 1 || quantity > MaxWriteBitsQuantity:
		return 0, nil, errMalformed("quantity %d out of range [1,%d]", quantity, MaxWriteBitsQuantity)
	case n != byteCount(quantity):
		return 0, nil, errMalformed("byte count %d does not match quantity %d", n, quantity)
	case len(data) != 5+n:
		return 0, nil, errMalformed("trailing bytes: length %d, want %d", len(data), 5+n)
	case int(address)+int(quantity) > 0xFFFF:
		return 0, nil, errMalformed("address range overflows 16 bits: %d+%d", address, quantity)
	}
	return address, unpackBits(data[5:], quantity), nil
}

// BuildWriteMultipleResponse encodes the echoed start-address/quantity
// response shared by write-multiple-coils and write-multiple-registers.
func BuildWriteMultipleResponse(buf []byte, address, quantity uint16) (int, error) {
	if len(buf) < 4 {
		return 0, errInvalid("buffer too small: need 4, have %d", len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	binary.BigEndian.PutUint16(buf[2:], quantity)
	return 4, nil
}

// ParseWriteMultipleResponse decodes the echoed start-address/quantity
// response.
func ParseWriteMultipleResponse(data []byte) (address, quantity uint16, err error) {
	if len(data) != 4 {
		return 0, 0, errMalformed("write-multiple response length %d, want 4", len(data))
	}
	return binary.BigEndian.Uint16(data[0:]), binary.BigEndian.Uint16(data[2:]), nil
}

// BuildWriteMultipleRegistersRequest encodes a write-multiple-registers
// request body: address, quantity, byte count, big-endian values.
func BuildWriteMultipleRegistersRequest(buf []byte, address uint16, values []uint16) (int, error) {
	quantity := uint16(len(values))
	if quantity < 1 || quantity > MaxWriteRegsQuantity {
		return 0, errInvalid("quantity %d out of range [1,%d]", quantity, MaxWriteRegsQuantity)
	}
	n := int(quantity) * 2
	total := 5 + n
	if len(buf) < total {
		return 0, errInvalid("buffer too small: need %d, have %d", total, len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], address)
	binary.BigEndian.PutUint16(buf[2:], quantity)
	buf[4] = byte(n)
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[5+2*i:], v)
	}
	return total, nil
}

// ParseWriteMultipleRegistersRequest decodes a write-multiple-registers
// request, validating quantity bounds and byte-count consistency.
func ParseWriteMultipleRegistersRequest(data []byte) (address uint16, values []uint16, err error) {
	if len(data) < 5 {
		return 0, nil, errMalformed("write-multiple-registers request too short: %d", len(data))
	}
	address = binary.BigEndian.Uint16(data[0:])
	quantity := binary.BigEndian.Uint16(data[2:])
	n := int(data[4])
	switch {
	case quantity < 1 || quantity > MaxWriteRegsQuantity:
		return 0, nil, errMalformed("quantity %d out of range [1,%d]", quantity, MaxWriteRegsQuantity)
	case n != int(quantity)*2:
		return 0, nil, errMalformed("byte count %d does not match quantity*2 %d", n, int(quantity)*2)
	case len(data) != 5+n:
		return 0, nil, errMalformed("trailing bytes: length %d, want %d", len(data), 5+n)
	case int(address)+int(quantity) > 0xFFFF:
		return 0, nil, errMalformed("address range overflows 16 bits: %d+%d", address, quantity)
	}
	values = make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[5+2*i:])
	}
	return address, values, nil
}
