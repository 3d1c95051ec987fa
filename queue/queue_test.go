package queue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore/queue"
)

func TestSPSCFIFOOrder(t *testing.T) {
	q := queue.NewSPSC[int](8)
	for i := 0; i < 8; i++ {
		require.True(t, q.Enqueue(i))
	}
	require.False(t, q.Enqueue(99), "full ring must reject and count a drop")
	require.Equal(t, uint64(1), q.Drops())

	for i := 0; i < 8; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	require.False(t, ok, "empty ring must not spuriously dequeue")
}

// TestSPSCConcurrentProducerConsumer is the SPSC concurrency property from
// spec.md §8: one producer, one consumer, no lost enqueues while not full,
// FIFO order preserved.
func TestSPSCConcurrentProducerConsumer(t *testing.T) {
	const n = 100_000
	q := queue.NewSPSC[int](1024)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !q.Enqueue(i) {
				// ring momentarily full; retry, as a real ISR producer would
				// spin briefly or drop — here we retry since this test
				// asserts no lost enqueues.
			}
		}
	}()

	received := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			if v, ok := q.Dequeue(); ok {
				received = append(received, v)
			}
		}
	}()

	wg.Wait()
	require.Len(t, received, n)
	for i, v := range received {
		require.Equal(t, i, v)
	}
}

func TestMPSCManyProducersOneConsumer(t *testing.T) {
	const producers = 8
	const perProducer = 1000
	q := queue.NewMPSC[int](16)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.Enqueue(1) {
				}
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		for total < producers*perProducer {
			if _, ok := q.Dequeue(); ok {
				total++
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done
	require.Equal(t, producers*perProducer, total)
}

func TestRingBufferWriteDiscardPeek(t *testing.T) {
	r := queue.NewRingBuffer(8)
	n := r.Write([]byte{1, 2, 3, 4})
	require.Equal(t, 4, n)
	require.Equal(t, 4, r.Len())

	b, ok := r.PeekByte(0)
	require.True(t, ok)
	require.Equal(t, byte(1), b)

	r.Discard(2)
	require.Equal(t, 2, r.Len())
	b, ok = r.PeekByte(0)
	require.True(t, ok)
	require.Equal(t, byte(3), b)
}

func TestRingBufferWriteStopsAtCapacity(t *testing.T) {
	r := queue.NewRingBuffer(4)
	n := r.Write([]byte{1, 2, 3, 4, 5, 6})
	require.Equal(t, 4, n)
	require.Equal(t, 0, r.Free())
}
