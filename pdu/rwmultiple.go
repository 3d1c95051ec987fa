package pdu

import "encoding/binary"

// MaxRWWriteQuantity bounds the write-portion quantity of a
// read/write-multiple-registers (FC 0x17) request.
const MaxRWWriteQuantity = 121

// BuildReadWriteMultipleRequest encodes a read/write-multiple-registers
// request: read address/quantity, write address/quantity, byte count, write
// values.
func BuildReadWriteMultipleRequest(buf []byte, readAddress, readQuantity, writeAddress uint16, writeValues []uint16) (int, error) {
	writeQuantity := uint16(len(writeValues))
	switch {
	case readQuantity < 1 || readQuantity > MaxReadRegsQuantity:
		return 0, errInvalid("read quantity %d out of range [1,%d]", readQuantity, MaxReadRegsQuantity)
	case writeQuantity < 1 || writeQuantity > MaxRWWriteQuantity:
		return 0, errInvalid("write quantity %d out of range [1,%d]", writeQuantity, MaxRWWriteQuantity)
	}
	n := int(writeQuantity) * 2
	total := 9 + n
	if len(buf) < total {
		return 0, errInvalid("buffer too small: need %d, have %d", total, len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:], readAddress)
	binary.BigEndian.PutUint16(buf[2:], readQuantity)
	binary.BigEndian.PutUint16(buf[4:], writeAddress)
	binary.BigEndian.PutUint16(buf[6:], writeQuantity)
	buf[8] = byte(n)
	for i, v := range writeValues {
		binary.BigEndian.PutUint16(buf[9+2*i:], v)
	}
	return total, nil
}

// ParseReadWriteMultipleRequest decodes a read/write-multiple-registers
// request.
func ParseReadWriteMultipleRequest(data []byte) (readAddress, readQuantity, writeAddress uint16, writeValues []uint16, err error) {
	if len(data) < 9 {
		return 0, 0, 0, nil, errMalformed("read/write-multiple request too short: %d", len(data))
	}
	readAddress = binary.BigEndian.Uint16(data[0:])
	readQuantity = binary.BigEndian.Uint16(data[2:])
	writeAddress = binary.BigEndian.Uint16(data[4:])
	writeQuantity := binary.BigEndian.Uint16(data[6:])
	n := int(data[8])
	switch {
	case readQuantity < 1 || readQuantity > MaxReadRegsQuantity:
		return 0, 0, 0, nil, errMalformed("read quantity %d out of range [1,%d]", readQuantity, MaxReadRegsQuantity)
	case writeQuantity < 1 || writeQuantity > MaxRWWriteQuantity:
		return 0, 0, 0, nil, errMalformed("write quantity %d out of range [1,%d]", writeQuantity, MaxRWWriteQuantity)
	case n != int(writeQuantity)*2:
		return 0, 0, 0, nil, errMalformed("byte count %d does not match write quantity*2 %d", n, int(writeQuantity)*2)
	case len(data) != 9+n:
		return 0, 0, 0, nil, errMalformed("trailing bytes: length %d, want %d", len(data), 9+n)
	case int(readAddress)+int(readQuantity) > 0xFFFF || int(writeAddress)+int(writeQuantity) > 0xFFFF:
		return 0, 0, 0, nil, errMalformed("address range overflows 16 bits")
	}
	writeValues = make([]uint16, writeQuantity)
	for i := range writeValues {
		writeValues[i] = binary.BigEndian.Uint16(data[9+2*i:])
	}
	return readAddress, readQuantity, writeAddress, writeValues, nil
}

// BuildReadWriteMultipleResponse encodes the read-portion response: byte
// count followed by big-endian register values, same shape as
// BuildReadRegistersResponse.
func BuildReadWriteMultipleResponse(buf []byte, values []uint16) (int, error) {
	return BuildReadRegistersResponse(buf, values)
}

// ParseReadWriteMultipleResponse decodes the read-portion response.
func ParseReadWriteMultipleResponse(data []byte, readQuantity uint16) ([]uint16, error) {
	return ParseReadRegistersResponse(data, readQuantity)
}
