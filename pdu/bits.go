package pdu

import "github.com/lgili/modbuscore/crc"

// packBits writes quantity bools into buf (which must be at least
// ByteCount(quantity) bytes), bit i of byte j holding item j*8+i, LSB-first.
func packBits(buf []byte, bits []bool) {
	for i, b := range bits {
		if b {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
}

// unpackBits reads quantity bools from data, LSB-first.
func unpackBits(data []byte, quantity uint16) []bool {
	out := make([]bool, quantity)
	for i := range out {
		byteIdx, bitIdx := i/8, uint(i%8)
		if byteIdx < len(data) {
			out[i] = data[byteIdx]&(1<<bitIdx) != 0
		}
	}
	return out
}

func byteCount(quantity uint16) int {
	return crc.ByteCount(quantity)
}
