package crc

import "encoding/binary"

// GetUint16 reads a big-endian uint16 at offset, reporting ok=false instead
// of panicking when the read would run past buf.
func GetUint16(buf []byte, offset int) (v uint16, ok bool) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, false
	}
	return binary.BigEndian.Uint16(buf[offset:]), true
}

// PutUint16 writes v as big-endian at offset, reporting ok=false instead of
// panicking when the write would run past buf.
func PutUint16(buf []byte, offset int, v uint16) (ok bool) {
	if offset < 0 || offset+2 > len(buf) {
		return false
	}
	binary.BigEndian.PutUint16(buf[offset:], v)
	return true
}

// ByteCount returns the number of bytes needed to hold bitCount bits,
// ceil(bitCount/8), as required for coil/discrete-input byte counts.
func ByteCount(bitCount uint16) int {
	return int((bitCount + 7) / 8)
}
