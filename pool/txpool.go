package pool

// TxPool wraps a FixedPool with the leak/high-water diagnostics spec.md §3/
// §8 require of the client engine's transaction pool: current in-use count,
// high-water mark, total acquired/released, and failed-acquire count.
type TxPool[T any] struct {
	pool *FixedPool[T]

	inUse         int
	highWater     int
	totalAcquired uint64
	totalReleased uint64
	failedAcquire uint64
}

// NewTxPool preallocates capacity blocks of T.
func NewTxPool[T any](capacity int) *TxPool[T] {
	return &TxPool[T]{pool: NewFixedPool[T](capacity)}
}

// Cap returns the pool's fixed block count.
func (p *TxPool[T]) Cap() int { return p.pool.Cap() }

// Acquire returns the index of a free block, tracking high-water and
// failed-acquire statistics.
func (p *TxPool[T]) Acquire() (idx int32, ok bool) {
	idx, ok = p.pool.Acquire()
	if !ok {
		p.failedAcquire++
		return 0, false
	}
	p.inUse++
	p.totalAcquired++
	if p.inUse > p.highWater {
		p.highWater = p.inUse
	}
	return idx, true
}

// At returns a pointer to the block at idx.
func (p *TxPool[T]) At(idx int32) *T { return p.pool.At(idx) }

// Release returns idx to the free list.
func (p *TxPool[T]) Release(idx int32) error {
	if err := p.pool.Release(idx); err != nil {
		return err
	}
	p.inUse--
	p.totalReleased++
	return nil
}

// InUse returns the current number of acquired-but-not-released blocks.
func (p *TxPool[T]) InUse() int { return p.inUse }

// HighWater returns the largest InUse has ever been.
func (p *TxPool[T]) HighWater() int { return p.highWater }

// TotalAcquired returns the lifetime count of successful Acquire calls.
func (p *TxPool[T]) TotalAcquired() uint64 { return p.totalAcquired }

// TotalReleased returns the lifetime count of successful Release calls.
func (p *TxPool[T]) TotalReleased() uint64 { return p.totalReleased }

// FailedAcquires returns the lifetime count of Acquire calls made against an
// exhausted pool.
func (p *TxPool[T]) FailedAcquires() uint64 { return p.failedAcquire }

// Leaked reports whether any block remains in use — callers drain a pool
// between requests/transactions and check this at a point where InUse
// should be zero, e.g. in a test's teardown or a diagnostic sweep.
func (p *TxPool[T]) Leaked() bool { return p.inUse != 0 }
