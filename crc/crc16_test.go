package crc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore/crc"
)

func TestChecksumKnownVector(t *testing.T) {
	// Request: slave 1, FC 0x03, start 0, quantity 10 -> CRC C5 CD.
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	sum := crc.Checksum(frame)
	require.Equal(t, byte(0xC5), byte(sum))
	require.Equal(t, byte(0xCD), byte(sum>>8))
}

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte{0x11, 0x06, 0x00, 0x20, 0x12, 0x34}
	full := crc.AppendLE(append([]byte{}, body...), body)
	require.True(t, crc.Verify(full))

	full[0] ^= 0xFF
	require.False(t, crc.Verify(full))
}

func TestLRC(t *testing.T) {
	body := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	sum := crc.LRCChecksum(body)
	var total uint8
	for _, b := range body {
		total += b
	}
	total += sum
	require.Equal(t, uint8(0), total)
}
