package client

import "time"

// backoffRNG is a small xorshift64 PRNG seeded once at Engine construction
// from a caller-supplied seed or a time-derived default — never from a
// transaction's memory address — resolving spec.md §9's "backoff jitter
// determinism" question. Seeding from a fixed or caller-chosen value makes
// retry timing reproducible in tests without ever reading pointer bits.
type backoffRNG struct {
	state uint64
}

func newBackoffRNG(seed uint64) *backoffRNG {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) | 1
	}
	return &backoffRNG{state: seed}
}

func (r *backoffRNG) next() uint64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.state = x
	return x
}

// jitterFactor returns a value in [0.5, 1.5), the ±50% jitter spec.md §4.3
// calls for.
func (r *backoffRNG) jitterFactor() float64 {
	frac := float64(r.next()%1_000_000) / 1_000_000.0
	return 0.5 + frac
}

// computeBackoff is base·2^(retry-1), capped, with ±50% jitter applied.
// retry must be >= 1.
func computeBackoff(base time.Duration, retry int, cap time.Duration, rng *backoffRNG) time.Duration {
	if retry < 1 {
		retry = 1
	}
	shift := retry - 1
	if shift > 16 {
		shift = 16 // guard against overflow; cap below makes this moot anyway
	}
	d := base * time.Duration(uint64(1)<<uint(shift))
	if d <= 0 || d > cap {
		d = cap
	}
	return time.Duration(float64(d) * rng.jitterFactor())
}
