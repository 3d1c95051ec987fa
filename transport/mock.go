package transport

import (
	"time"

	"github.com/lgili/modbuscore/queue"
)

// Mock is an in-memory Transport for tests: two Mocks created by
// NewMockPair are connected back to back, each backed by a
// queue.RingBuffer, with a caller-advanced clock so Poll-driven timeout and
// backoff logic can be exercised deterministically.
type Mock struct {
	out *queue.RingBuffer // bytes written by this side, read by the peer
	in  *queue.RingBuffer // bytes written by the peer, read by this side

	clock *time.Time

	sendErr error
	recvErr error
}

// NewMockPair returns two transports wired to each other, each with the
// given per-direction buffer capacity (rounded up to a power of two). Both
// share one clock; Advance on either moves both.
func NewMockPair(bufCap int) (a, b *Mock) {
	ab := queue.NewRingBuffer(bufCap)
	ba := queue.NewRingBuffer(bufCap)
	now := time.Unix(0, 0)
	a = &Mock{out: ab, in: ba, clock: &now}
	b = &Mock{out: ba, in: ab, clock: &now}
	return a, b
}

// Send implements Transport.
func (m *Mock) Send(data []byte) (int, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	return m.out.Write(data), nil
}

// Recv implements Transport.
func (m *Mock) Recv(buf []byte) (int, error) {
	if m.recvErr != nil {
		return 0, m.recvErr
	}
	n := m.in.Peek(buf)
	m.in.Discard(n)
	return n, nil
}

// Now implements Transport, returning the pair's shared mock clock.
func (m *Mock) Now() time.Time { return *m.clock }

// Yield implements Transport as a no-op; there is no real scheduler to hand
// off to in a test.
func (m *Mock) Yield() {}

// Advance moves the shared clock forward by d.
func (m *Mock) Advance(d time.Duration) { *m.clock = m.clock.Add(d) }

// SetSendError makes subsequent Send calls fail with err. Pass nil to clear.
func (m *Mock) SetSendError(err error) { m.sendErr = err }

// SetRecvError makes subsequent Recv calls fail with err. Pass nil to clear.
func (m *Mock) SetRecvError(err error) { m.recvErr = err }

// Close implements Closer; a mock transport owns no real resource.
func (m *Mock) Close() error { return nil }
