package diag_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/diag"
)

func TestRecordAccumulatesCounters(t *testing.T) {
	d := diag.New(4)
	now := time.Unix(0, 0)

	d.Record(0x03, diag.StatusOK, now)
	d.Record(0x03, diag.StatusTimeout, now.Add(time.Second))
	d.Record(0x10, diag.StatusOK, now.Add(2*time.Second))

	snap := d.Snapshot()
	require.Equal(t, uint64(2), snap.ByFunctionCode[0x03])
	require.Equal(t, uint64(1), snap.ByFunctionCode[0x10])
	require.Equal(t, uint64(2), snap.ByStatus[diag.StatusOK])
	require.Equal(t, uint64(1), snap.ByStatus[diag.StatusTimeout])
}

func TestTraceRingKeepsMostRecentInOrder(t *testing.T) {
	d := diag.New(2)
	base := time.Unix(0, 0)

	d.Record(0x01, diag.StatusOK, base)
	d.Record(0x02, diag.StatusTimeout, base.Add(time.Second))
	d.Record(0x03, diag.StatusCRC, base.Add(2*time.Second))

	snap := d.Snapshot()
	require.Len(t, snap.Trace, 2)
	require.Equal(t, byte(0x02), snap.Trace[0].FunctionCode)
	require.Equal(t, byte(0x03), snap.Trace[1].FunctionCode)
}

func TestStatusForExceptionSeparatesBusy(t *testing.T) {
	require.Equal(t, diag.StatusBusy, diag.StatusForException(modbuscore.ExServerDeviceBusy))
	require.Equal(t, diag.StatusException, diag.StatusForException(modbuscore.ExIllegalFunction))
}

func TestRecordTurnaroundTracksMinMaxAvg(t *testing.T) {
	d := diag.New(0)

	snap := d.Snapshot()
	require.Equal(t, uint64(0), snap.Turnaround.Count)

	d.RecordTurnaround(30 * time.Millisecond)
	d.RecordTurnaround(10 * time.Millisecond)
	d.RecordTurnaround(20 * time.Millisecond)

	snap = d.Snapshot()
	require.Equal(t, uint64(3), snap.Turnaround.Count)
	require.Equal(t, 10*time.Millisecond, snap.Turnaround.Min)
	require.Equal(t, 30*time.Millisecond, snap.Turnaround.Max)
	require.Equal(t, 20*time.Millisecond, snap.Turnaround.Avg)
}
