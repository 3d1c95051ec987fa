package server_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/frame"
	"github.com/lgili/modbuscore/pdu"
	"github.com/lgili/modbuscore/server"
	"github.com/lgili/modbuscore/transport"
)

func newTestMapping() *server.Mapping {
	m := server.NewMapping()
	m.AddRegion(&server.Region{
		Kind:      server.KindHoldingRegister,
		Start:     0,
		Count:     10,
		Registers: make([]uint16, 10),
	})
	m.AddRegion(&server.Region{
		Kind:  server.KindCoil,
		Start: 0,
		Count: 8,
		Bits:  make([]bool, 8),
	})
	return m
}

// driveUntil polls the pipeline and lets the simulated client read whatever
// response shows up, up to maxSteps times, advancing the shared mock clock
// between each step the way client_test.go drives client.Engine.
func driveUntil(t *testing.T, p *server.Pipeline, clientSide, serverSide *transport.Mock, maxSteps int) []byte {
	t.Helper()
	resp := make([]byte, 256)
	for i := 0; i < maxSteps; i++ {
		serverSide.Advance(time.Millisecond)
		p.Poll()
		n, _ := clientSide.Recv(resp)
		if n > 0 {
			return resp[:n]
		}
	}
	return nil
}

func TestPipelineReadHoldingRegisters(t *testing.T) {
	clientSide, serverSide := transport.NewMockPair(256)
	mapping := newTestMapping()
	mapping.WriteRegisters(server.KindHoldingRegister, 2, []uint16{0x1234, 0x5678})

	framer := server.NewRTUFramer(128, 0, 0, serverSide.Now)
	p := server.New(serverSide, framer, 0x11, mapping)

	reqBuf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(reqBuf, 2, 2, pdu.MaxReadRegsQuantity)
	require.NoError(t, err)
	frm := make([]byte, frame.RTUMaxSize)
	fn, err := frame.EncodeRTU(frm, 0x11, modbuscore.FuncReadHoldingRegisters, reqBuf[:n])
	require.NoError(t, err)
	_, err = clientSide.Send(frm[:fn])
	require.NoError(t, err)

	resp := driveUntil(t, p, clientSide, serverSide, 10)
	require.NotNil(t, resp, "expected a response frame")

	unitID, functionCode, data, err := frame.DecodeRTU(resp)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), unitID)
	require.Equal(t, byte(modbuscore.FuncReadHoldingRegisters), functionCode)

	values, err := pdu.ParseReadRegistersResponse(data, 2)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x1234, 0x5678}, values)

	turnaround := p.Diag().Snapshot().Turnaround
	require.Equal(t, uint64(1), turnaround.Count, "responding to a non-broadcast request must record a turnaround sample")
}

func TestPipelineWriteSingleRegisterEcho(t *testing.T) {
	clientSide, serverSide := transport.NewMockPair(256)
	mapping := newTestMapping()

	framer := server.NewRTUFramer(128, 0, 0, serverSide.Now)
	p := server.New(serverSide, framer, 0x11, mapping)

	reqBuf := make([]byte, 4)
	n, err := pdu.BuildWriteSingleRegisterRequest(reqBuf, 5, 0xBEEF)
	require.NoError(t, err)
	frm := make([]byte, frame.RTUMaxSize)
	fn, err := frame.EncodeRTU(frm, 0x11, modbuscore.FuncWriteSingleRegister, reqBuf[:n])
	require.NoError(t, err)
	_, err = clientSide.Send(frm[:fn])
	require.NoError(t, err)

	resp := driveUntil(t, p, clientSide, serverSide, 10)
	require.NotNil(t, resp)

	unitID, functionCode, data, err := frame.DecodeRTU(resp)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), unitID)
	require.Equal(t, byte(modbuscore.FuncWriteSingleRegister), functionCode)
	require.Equal(t, reqBuf[:n], data)

	values, rerr := mapping.ReadRegisters(server.KindHoldingRegister, 5, 1)
	require.NoError(t, rerr)
	require.Equal(t, []uint16{0xBEEF}, values)
}

func TestPipelineIllegalDataAddressException(t *testing.T) {
	clientSide, serverSide := transport.NewMockPair(256)
	mapping := newTestMapping()

	framer := server.NewRTUFramer(128, 0, 0, serverSide.Now)
	p := server.New(serverSide, framer, 0x11, mapping)

	reqBuf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(reqBuf, 100, 2, pdu.MaxReadRegsQuantity)
	require.NoError(t, err)
	frm := make([]byte, frame.RTUMaxSize)
	fn, err := frame.EncodeRTU(frm, 0x11, modbuscore.FuncReadHoldingRegisters, reqBuf[:n])
	require.NoError(t, err)
	_, err = clientSide.Send(frm[:fn])
	require.NoError(t, err)

	resp := driveUntil(t, p, clientSide, serverSide, 10)
	require.NotNil(t, resp)

	unitID, functionCode, data, err := frame.DecodeRTU(resp)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), unitID)
	require.Equal(t, byte(modbuscore.FuncReadHoldingRegisters|0x80), functionCode)

	_, code, perr := pdu.ParseException(data)
	require.NoError(t, perr)
	require.Equal(t, modbuscore.ExIllegalDataAddress, code)
}

func TestPipelineBroadcastSuppressesResponse(t *testing.T) {
	clientSide, serverSide := transport.NewMockPair(256)
	mapping := newTestMapping()

	framer := server.NewRTUFramer(128, 0, 0, serverSide.Now)
	p := server.New(serverSide, framer, 0x11, mapping)

	reqBuf := make([]byte, 4)
	n, err := pdu.BuildWriteSingleRegisterRequest(reqBuf, 1, 0x0042)
	require.NoError(t, err)
	frm := make([]byte, frame.RTUMaxSize)
	fn, err := frame.EncodeRTU(frm, modbuscore.Broadcast, modbuscore.FuncWriteSingleRegister, reqBuf[:n])
	require.NoError(t, err)
	_, err = clientSide.Send(frm[:fn])
	require.NoError(t, err)

	resp := driveUntil(t, p, clientSide, serverSide, 5)
	require.Nil(t, resp, "broadcast requests must not produce a response")

	values, rerr := mapping.ReadRegisters(server.KindHoldingRegister, 1, 1)
	require.NoError(t, rerr)
	require.Equal(t, []uint16{0x0042}, values)

	require.Equal(t, uint64(0), p.Diag().Snapshot().Turnaround.Count, "broadcast requests send nothing, so no turnaround sample")
}

func TestPipelineUnknownFunctionCodeException(t *testing.T) {
	clientSide, serverSide := transport.NewMockPair(256)
	mapping := newTestMapping()

	framer := server.NewRTUFramer(128, 0, 0, serverSide.Now)
	p := server.New(serverSide, framer, 0x11, mapping)

	frm := make([]byte, frame.RTUMaxSize)
	fn, err := frame.EncodeRTU(frm, 0x11, 0x55, []byte{0x00})
	require.NoError(t, err)
	_, err = clientSide.Send(frm[:fn])
	require.NoError(t, err)

	resp := driveUntil(t, p, clientSide, serverSide, 10)
	require.NotNil(t, resp)

	_, functionCode, data, err := frame.DecodeRTU(resp)
	require.NoError(t, err)
	require.Equal(t, byte(0x55|0x80), functionCode)

	_, code, perr := pdu.ParseException(data)
	require.NoError(t, perr)
	require.Equal(t, modbuscore.ExIllegalFunction, code)
}
