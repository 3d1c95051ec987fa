package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore/client"
	"github.com/lgili/modbuscore/diag"
	"github.com/lgili/modbuscore/frame"
	"github.com/lgili/modbuscore/pdu"
	"github.com/lgili/modbuscore/transport"
)

// TestEngineReadHoldingRegistersRoundTrip drives the engine and a simulated
// peer from a single goroutine (Submit + manual Poll loop, not the blocking
// Call helper) so the mock transport's shared clock and buffers are never
// touched concurrently.
func TestEngineReadHoldingRegistersRoundTrip(t *testing.T) {
	clientSide, serverSide := transport.NewMockPair(256)
	framer := client.NewRTUFramer(128)
	e := client.New(clientSide, framer, true, client.WithSeed(1))

	buf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(buf, 0x006B, 2, pdu.MaxReadRegsQuantity)
	require.NoError(t, err)

	var result client.Result
	require.NoError(t, e.Submit(client.Request{
		UnitID:       0x11,
		FunctionCode: 0x03,
		Data:         buf[:n],
		Callback:     func(r client.Result) { result = r },
	}))

	for i := 0; i < 10 && result.Data == nil && result.Status == 0; i++ {
		clientSide.Advance(time.Millisecond)
		e.Poll()

		req := make([]byte, 16)
		if rn, _ := serverSide.Recv(req); rn > 0 {
			resp := make([]byte, frame.RTUMaxSize)
			respN, _ := frame.EncodeRTU(resp, 0x11, 0x03, []byte{0x04, 0x00, 0x0A, 0x00, 0x0B})
			serverSide.Send(resp[:respN])
		}
	}
	clientSide.Advance(time.Millisecond)
	e.Poll()

	require.Equal(t, []byte{0x04, 0x00, 0x0A, 0x00, 0x0B}, result.Data)
	require.Equal(t, diag.StatusOK, result.Status)

	turnaround := e.Diag().Snapshot().Turnaround
	require.Equal(t, uint64(1), turnaround.Count, "a completed request must record a turnaround sample")
	require.GreaterOrEqual(t, turnaround.Max, turnaround.Min)
}

func TestEngineSubmitRejectsBeyondQueueCapacity(t *testing.T) {
	clientSide, _ := transport.NewMockPair(64)
	framer := client.NewRTUFramer(64)
	e := client.New(clientSide, framer, true, client.WithQueueCapacity(1))

	err1 := e.Submit(client.Request{UnitID: 1, FunctionCode: 0x03, Data: []byte{0, 0, 0, 1}})
	require.NoError(t, err1)

	err2 := e.Submit(client.Request{UnitID: 1, FunctionCode: 0x03, Data: []byte{0, 0, 0, 1}})
	require.Error(t, err2)
}

func TestEngineQueueCapacityResizesBackingPool(t *testing.T) {
	clientSide, _ := transport.NewMockPair(64)
	framer := client.NewRTUFramer(64)
	e := client.New(clientSide, framer, true, client.WithQueueCapacity(100))

	for i := 0; i < 100; i++ {
		err := e.Submit(client.Request{UnitID: 1, FunctionCode: 0x03, Data: []byte{0, 0, 0, 1}})
		require.NoError(t, err, "submit %d within WithQueueCapacity(100) must not fail on pool exhaustion", i)
	}

	err := e.Submit(client.Request{UnitID: 1, FunctionCode: 0x03, Data: []byte{0, 0, 0, 1}})
	require.Error(t, err, "the 101st submit must still be rejected by the queue-capacity gate")
}

func TestEnginePoisonAdmittedPastQueueCapacity(t *testing.T) {
	clientSide, _ := transport.NewMockPair(64)
	framer := client.NewRTUFramer(64)
	e := client.New(clientSide, framer, true, client.WithQueueCapacity(1))

	require.NoError(t, e.Submit(client.Request{UnitID: 1, FunctionCode: 0x03, Data: []byte{0, 0, 0, 1}}))

	var got client.Result
	err := e.Submit(client.Request{
		UnitID:   1,
		Poison:   true,
		Callback: func(r client.Result) { got = r },
	})
	require.NoError(t, err, "poison requests bypass the queue-capacity gate and must still find a pool slot")

	// The poison waits at the head of the queue behind the in-flight
	// request and runs once that request terminates (here via the watchdog).
	clientSide.Advance(client.DefaultWatchdogTimeout)
	e.Poll()
	require.Equal(t, diag.StatusCancelled, got.Status)
}

func TestEngineTimeoutRetriesThenFails(t *testing.T) {
	clientSide, _ := transport.NewMockPair(64)
	framer := client.NewRTUFramer(64)
	e := client.New(clientSide, framer, true, client.WithSeed(7))

	var results []client.Result
	err := e.Submit(client.Request{
		UnitID:       1,
		FunctionCode: 0x03,
		Data:         []byte{0, 0, 0, 1},
		Timeout:      10 * time.Millisecond,
		MaxRetries:   1,
		Callback:     func(r client.Result) { results = append(results, r) },
	})
	require.NoError(t, err)

	// No server ever responds; advance the clock well past timeout+retry+
	// watchdog so the transaction eventually fails terminally.
	for i := 0; i < 2000; i++ {
		clientSide.Advance(5 * time.Millisecond)
		e.Poll()
		if len(results) > 0 {
			break
		}
	}

	require.Len(t, results, 1)
	require.Contains(t, []diag.Status{diag.StatusTimeout, diag.StatusTransport}, results[0].Status)
	require.GreaterOrEqual(t, e.Metrics().Retries, uint64(1))
}

func TestEnginePoisonFinalizesCancelled(t *testing.T) {
	clientSide, _ := transport.NewMockPair(64)
	framer := client.NewRTUFramer(64)
	e := client.New(clientSide, framer, true)

	var got client.Result
	err := e.Submit(client.Request{
		UnitID:   1,
		Poison:   true,
		Callback: func(r client.Result) { got = r },
	})
	require.NoError(t, err)
	require.Equal(t, diag.StatusCancelled, got.Status)
}
