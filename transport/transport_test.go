package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore/transport"
)

func TestMockPairSendRecv(t *testing.T) {
	a, b := transport.NewMockPair(64)

	n, err := a.Send([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	buf := make([]byte, 8)
	n, err = b.Recv(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{1, 2, 3}, buf[:n])

	// Nothing more available.
	n, err = b.Recv(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMockSharedClock(t *testing.T) {
	a, b := transport.NewMockPair(16)
	t0 := a.Now()
	require.Equal(t, t0, b.Now())

	a.Advance(5 * time.Second)
	require.Equal(t, t0.Add(5*time.Second), b.Now())
}

func TestMockInjectedErrors(t *testing.T) {
	a, _ := transport.NewMockPair(16)
	a.SetSendError(assertErr{})
	_, err := a.Send([]byte{1})
	require.Error(t, err)

	a.SetSendError(nil)
	_, err = a.Send([]byte{1})
	require.NoError(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
