package observer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore/diag"
	"github.com/lgili/modbuscore/observer"
)

func TestFuncObserverReceivesEvent(t *testing.T) {
	var got any
	o := observer.Func(func(e any) { got = e })

	o.Notify(observer.ClientTxComplete{FunctionCode: 0x03, Status: diag.StatusOK})

	evt, ok := got.(observer.ClientTxComplete)
	require.True(t, ok)
	require.Equal(t, byte(0x03), evt.FunctionCode)
	require.Equal(t, diag.StatusOK, evt.Status)
}

func TestMultiFansOutInOrder(t *testing.T) {
	var calls []int
	m := observer.Multi{
		observer.Func(func(any) { calls = append(calls, 1) }),
		observer.Func(func(any) { calls = append(calls, 2) }),
	}
	m.Notify(observer.ServerRequestAccept{FunctionCode: 0x10, UnitID: 1})
	require.Equal(t, []int{1, 2}, calls)
}
