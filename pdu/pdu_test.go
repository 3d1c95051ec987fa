package pdu_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lgili/modbuscore/pdu"
)

func TestReadHoldingRegistersRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(buf, 0, 10, pdu.MaxReadRegsQuantity)
	require.NoError(t, err)
	address, quantity, err := pdu.ParseReadRequest(buf[:n], pdu.MaxReadRegsQuantity)
	require.NoError(t, err)
	require.Equal(t, uint16(0), address)
	require.Equal(t, uint16(10), quantity)
}

func TestReadHoldingRegistersResponseKnownVector(t *testing.T) {
	values := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	buf := make([]byte, 1+2*len(values))
	n, err := pdu.BuildReadRegistersResponse(buf, values)
	require.NoError(t, err)
	require.Equal(t, byte(20), buf[0])

	got, err := pdu.ParseReadRegistersResponse(buf[:n], uint16(len(values)))
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestParseReadRegistersResponseRejectsBadByteCount(t *testing.T) {
	_, err := pdu.ParseReadRegistersResponse([]byte{4, 0, 1}, 2)
	require.Error(t, err)
}

func TestWriteSingleCoilRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	n, err := pdu.BuildWriteSingleCoilRequest(buf, 0x20, true)
	require.NoError(t, err)
	addr, val, err := pdu.ParseWriteSingleCoilRequest(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint16(0x20), addr)
	require.True(t, val)
}

func TestMaskWriteApply(t *testing.T) {
	// Example from the Modbus application protocol spec.
	require.Equal(t, uint16(0x17), pdu.ApplyMask(0x12, 0xF2, 0x25))
}

func TestBuildExceptionRejectsAlreadySetBit(t *testing.T) {
	_, err := pdu.BuildException(make([]byte, 2), 0x83, 0x02)
	require.Error(t, err)
}

func TestExceptionRoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	n, err := pdu.BuildException(buf, 0x06, 0x02)
	require.NoError(t, err)
	fc, code, err := pdu.ParseException(buf[:n])
	require.NoError(t, err)
	require.Equal(t, byte(0x06), fc)
	require.Equal(t, byte(0x02), byte(code))
}

// TestReadRegistersRoundTripProperty implements spec.md §8's
// parse(build(x)) = x round-trip law for every valid quantity in domain.
func TestReadRegistersRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quantity := rapid.IntRange(1, pdu.MaxReadRegsQuantity).Draw(t, "quantity")
		values := make([]uint16, quantity)
		for i := range values {
			values[i] = uint16(rapid.IntRange(0, 0xFFFF).Draw(t, "value"))
		}
		buf := make([]byte, 1+2*quantity)
		n, err := pdu.BuildReadRegistersResponse(buf, values)
		require.NoError(t, err)
		got, err := pdu.ParseReadRegistersResponse(buf[:n], uint16(quantity))
		require.NoError(t, err)
		require.Equal(t, values, got)
	})
}

// TestReadBitsRoundTripProperty covers the LSB-first bit-packing law.
func TestReadBitsRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quantity := rapid.IntRange(1, pdu.MaxReadBitsQuantity).Draw(t, "quantity")
		bits := make([]bool, quantity)
		for i := range bits {
			bits[i] = rapid.Boolean().Draw(t, "bit")
		}
		buf := make([]byte, 1+(quantity+7)/8)
		n, err := pdu.BuildReadBitsResponse(buf, bits)
		require.NoError(t, err)
		got, err := pdu.ParseReadBitsResponse(buf[:n], uint16(quantity))
		require.NoError(t, err)
		require.Equal(t, bits, got)
	})
}

// TestWriteMultipleRegistersNeverOverflowsCapacity is the bounds property
// from spec.md §8: a too-small buffer must fail, never write past capacity.
func TestWriteMultipleRegistersNeverOverflowsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quantity := rapid.IntRange(1, pdu.MaxWriteRegsQuantity).Draw(t, "quantity")
		values := make([]uint16, quantity)
		need := 5 + 2*quantity
		cap := rapid.IntRange(0, need+4).Draw(t, "capacity")
		buf := make([]byte, cap)
		n, err := pdu.BuildWriteMultipleRegistersRequest(buf, 0, values)
		if cap < need {
			require.Error(t, err)
			return
		}
		require.NoError(t, err)
		require.LessOrEqual(t, n, cap)
	})
}
