package client

import (
	"time"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/diag"
	"github.com/lgili/modbuscore/fsm"
	"github.com/lgili/modbuscore/observer"
	"github.com/lgili/modbuscore/pdu"
	"github.com/lgili/modbuscore/pool"
	"github.com/lgili/modbuscore/transport"
)

// EngineState is one of the three states spec.md §4.3 names for the client
// transaction engine.
type EngineState int

const (
	StateIdle EngineState = iota
	StateWaiting
	StateBackoff
)

// String implements observer.ClientState.
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

type engineEvent int

const (
	evStarted engineEvent = iota
	evSettled
	evDeferred
	evResumed
)

// Metrics accumulates the lifetime counters spec.md §4.3 requires.
type Metrics struct {
	Submitted      uint64
	Completed      uint64
	Errors         uint64
	Timeouts       uint64
	Cancelled      uint64
	Retries        uint64
	PoisonTriggers uint64
	BytesTX        uint64
	BytesRX        uint64

	latencySum   time.Duration
	latencyCount uint64
}

// MeanLatency returns the mean response latency across every completed
// transaction that received a response (zero if none have).
func (m Metrics) MeanLatency() time.Duration {
	if m.latencyCount == 0 {
		return 0
	}
	return m.latencySum / time.Duration(m.latencyCount)
}

// Default tuning values, overridable per Request or via Option.
const (
	DefaultTimeout         = 1 * time.Second
	DefaultWatchdogTimeout = 5 * time.Second
	DefaultBackoffBase     = 100 * time.Millisecond
	DefaultBackoffCap      = 2 * time.Second
	DefaultMaxRetries      = 3
	DefaultQueueCapacity   = 32
	DefaultRXBufferSize    = 512
	DefaultTimeoutCap      = 30 * time.Second
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithQueueCapacity bounds total in-flight (current + pending, non-poison)
// transactions; Submit returns StatusNoResources beyond it.
func WithQueueCapacity(n int) Option { return func(e *Engine) { e.queueCapacity = n } }

// WithObserver attaches a lifecycle event sink.
func WithObserver(o observer.Observer) Option { return func(e *Engine) { e.obs = o } }

// WithDiag attaches a diagnostics sink; New creates one with no trace ring
// if this is not supplied.
func WithDiag(d *diag.Diag) Option { return func(e *Engine) { e.diag = d } }

// WithSeed fixes the backoff jitter PRNG's seed for reproducible retry
// timing in tests.
func WithSeed(seed uint64) Option { return func(e *Engine) { e.rng = newBackoffRNG(seed) } }

// WithBackoffCap overrides the default backoff ceiling.
func WithBackoffCap(d time.Duration) Option { return func(e *Engine) { e.backoffCap = d } }

// WithRXBufferSize overrides the per-Poll transport read buffer size.
func WithRXBufferSize(n int) Option { return func(e *Engine) { e.rxBuf = make([]byte, n) } }

// Engine is the poll-driven client transaction engine of spec.md §4.3: one
// "current" transaction at a time, a FIFO pending queue with priority
// insertion at the head, retry with jittered backoff, an independent
// watchdog, and exactly-once callback completion.
type Engine struct {
	transport transport.Transport
	framer    Framer
	isRTU     bool

	pool    *pool.TxPool[txSlot]
	pending []int32 // pool indices, FIFO with priority entries unshifted to the front

	current int32 // pool index of the in-flight transaction, -1 if none

	queueCapacity int
	backoffCap    time.Duration
	timeoutCap    time.Duration
	nextTID       uint16

	state *fsm.FSM[EngineState, engineEvent]

	diag *diag.Diag
	obs  observer.Observer
	rng  *backoffRNG

	rxBuf   []byte
	metrics Metrics
}

// New builds an Engine over the given transport and framer. isRTU selects
// correlation strategy: RTU has no transaction ID and matches the single
// current transaction; TCP/MBAP correlates by transaction ID.
func New(t transport.Transport, framer Framer, isRTU bool, opts ...Option) *Engine {
	e := &Engine{
		transport:     t,
		framer:        framer,
		isRTU:         isRTU,
		current:       -1,
		queueCapacity: DefaultQueueCapacity,
		backoffCap:    DefaultBackoffCap,
		timeoutCap:    DefaultTimeoutCap,
		nextTID:       1,
		diag:          diag.New(0),
		rng:           newBackoffRNG(0),
		rxBuf:         make([]byte, DefaultRXBufferSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	// Sized from queueCapacity (after options, so WithQueueCapacity is
	// honored by the backing storage, not just the admission gate in
	// Submit) plus one spare slot for a poison request, which bypasses the
	// gate and must never fail on pool exhaustion alone.
	e.pool = pool.NewTxPool[txSlot](e.queueCapacity + 1)
	e.state = fsm.New([]fsm.StateDef[EngineState, engineEvent]{
		{
			State:       StateIdle,
			Transitions: []fsm.Transition[EngineState, engineEvent]{{Event: evStarted, Next: StateWaiting}},
		},
		{
			State: StateWaiting,
			Transitions: []fsm.Transition[EngineState, engineEvent]{
				{Event: evSettled, Next: StateIdle},
				{Event: evDeferred, Next: StateBackoff},
			},
		},
		{
			State: StateBackoff,
			Transitions: []fsm.Transition[EngineState, engineEvent]{
				{Event: evResumed, Next: StateWaiting},
				{Event: evSettled, Next: StateIdle},
			},
		},
	}, StateIdle, 8, nil)
	return e
}

// State reports the engine's current Idle/Waiting/Backoff state.
func (e *Engine) State() EngineState { return e.state.State() }

// Metrics returns a copy of the engine's lifetime counters.
func (e *Engine) Metrics() Metrics { return e.metrics }

// Diag returns the engine's diagnostics sink.
func (e *Engine) Diag() *diag.Diag { return e.diag }

func (e *Engine) notify(event any) {
	if e.obs != nil {
		e.obs.Notify(event)
	}
}

func (e *Engine) inFlightCount() int {
	n := len(e.pending)
	if e.current >= 0 {
		n++
	}
	return n
}

// Submit queues req. It returns an error immediately if the engine's
// capacity is exhausted (unless req.Poison) or the transaction pool has no
// free slots; in either case req.Callback is never invoked, matching
// spec.md §4.3's synchronous-rejection contract for the caller to act on.
func (e *Engine) Submit(req Request) error {
	if !req.Poison && e.inFlightCount() >= e.queueCapacity {
		return &EngineError{Status: diag.StatusNoResources}
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}
	if req.WatchdogTimeout <= 0 {
		req.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if req.BackoffBase <= 0 {
		req.BackoffBase = DefaultBackoffBase
	}
	if req.MaxRetries <= 0 && !req.Poison {
		req.MaxRetries = DefaultMaxRetries
	}

	idx, ok := e.pool.Acquire()
	if !ok {
		return &EngineError{Status: diag.StatusNoResources}
	}
	// The slot owns its own copy of the payload, so the caller may reuse
	// Data once Submit returns.
	req.Data = append([]byte(nil), req.Data...)
	*e.pool.At(idx) = txSlot{req: req, timeout: req.Timeout}

	if req.Priority || req.Poison {
		e.pending = append([]int32{idx}, e.pending...)
	} else {
		e.pending = append(e.pending, idx)
	}

	e.metrics.Submitted++
	e.notify(observer.ClientTxSubmit{FunctionCode: req.FunctionCode})

	if e.state.State() == StateIdle {
		e.startNext()
	}
	return nil
}

// EngineError is returned by Submit when a request is rejected
// synchronously (queue or pool exhaustion).
type EngineError struct {
	Status diag.Status
}

func (e *EngineError) Error() string { return "client: " + e.Status.String() }

// startNext pops the head of the pending queue (if any) and attempts to
// send it, per spec.md §4.3's "Start attempt".
func (e *Engine) startNext() {
	if len(e.pending) == 0 {
		return
	}
	idx := e.pending[0]
	e.pending = e.pending[1:]
	e.current = idx
	e.attempt()
}

// attempt (re)sends the current transaction — used both for the first send
// and for a retry after backoff.
func (e *Engine) attempt() {
	slot := e.pool.At(e.current)
	if !e.isRTU {
		slot.transactionID = e.nextTID
		e.nextTID++
		if e.nextTID == 0 {
			e.nextTID = 1
		}
	}
	if slot.startedAt.IsZero() {
		slot.startedAt = e.transport.Now()
	}

	buf := make([]byte, modbuscore.MaxPDUSize+8)
	n, err := e.framer.Encode(buf, slot.req.UnitID, slot.req.FunctionCode, slot.req.Data, slot.transactionID)
	if err != nil {
		e.finalize(e.current, Result{Status: diag.StatusInvalidArgument})
		return
	}
	sent, err := e.transport.Send(buf[:n])
	e.metrics.BytesTX += uint64(sent)
	if err != nil {
		e.finalize(e.current, Result{Status: diag.StatusTransport})
		return
	}

	if slot.req.Poison {
		e.metrics.PoisonTriggers++
		e.finalize(e.current, Result{Status: diag.StatusCancelled})
		return
	}
	if slot.req.NoResponse {
		e.finalize(e.current, Result{Status: diag.StatusOK})
		return
	}

	now := e.transport.Now()
	slot.deadline = now.Add(slot.timeout)
	slot.watchdogDeadline = now.Add(slot.req.WatchdogTimeout)
	e.transitionTo(StateWaiting)
}

func (e *Engine) transitionTo(next EngineState) {
	cur := e.state.State()
	if cur == next {
		return
	}
	e.notify(observer.ClientStateExit{State: cur})
	switch {
	case cur == StateIdle && next == StateWaiting:
		e.state.Enqueue(evStarted)
	case cur == StateWaiting && next == StateBackoff:
		e.state.Enqueue(evDeferred)
	case cur == StateBackoff && next == StateWaiting:
		e.state.Enqueue(evResumed)
	case next == StateIdle:
		e.state.Enqueue(evSettled)
	}
	e.state.Step()
	e.notify(observer.ClientStateEnter{State: e.state.State()})
}

// finalize invokes idx's callback exactly once, records diagnostics and
// metrics, releases its slot, and — if idx was the current transaction —
// returns to Idle and starts the next pending entry.
func (e *Engine) finalize(idx int32, result Result) {
	slot := e.pool.At(idx)
	req := slot.req

	switch result.Status {
	case diag.StatusOK:
		e.metrics.Completed++
	case diag.StatusTimeout:
		e.metrics.Timeouts++
		e.metrics.Errors++
	case diag.StatusCancelled:
		e.metrics.Cancelled++
	default:
		e.metrics.Errors++
	}
	if e.diag != nil {
		e.diag.Record(req.FunctionCode, result.Status, e.transport.Now())
	}
	e.notify(observer.ClientTxComplete{FunctionCode: req.FunctionCode, Status: result.Status})

	e.pool.Release(idx)

	wasCurrent := idx == e.current
	if wasCurrent {
		e.current = -1
		e.transitionTo(StateIdle)
	}

	if req.Callback != nil {
		req.Callback(result)
	}

	if wasCurrent {
		e.startNext()
	}
}

// Cancel removes a queued transaction, or finalizes the current one, with
// StatusCancelled. The callback always fires.
func (e *Engine) Cancel(idx int32) {
	for i, p := range e.pending {
		if p == idx {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			e.finalize(idx, Result{Status: diag.StatusCancelled})
			return
		}
	}
	if idx == e.current {
		e.finalize(idx, Result{Status: diag.StatusCancelled})
	}
}

// Poll drives the transport once: it reads available bytes, feeds them to
// the framer, dispatches any decoded response to the current transaction,
// checks deadlines, and finally invokes the transport's Yield hook. Poll
// never blocks and must be called repeatedly by the application's main
// loop.
func (e *Engine) Poll() {
	n, err := e.transport.Recv(e.rxBuf)
	if n > 0 {
		e.metrics.BytesRX += uint64(n)
		e.framer.Feed(e.rxBuf[:n])
	}
	if err != nil && e.current >= 0 {
		e.finalize(e.current, Result{Status: diag.StatusTransport})
	}

	for {
		adu, ok := e.framer.Next()
		if !ok {
			break
		}
		e.onFrame(adu)
	}

	e.checkDeadlines()
	e.transport.Yield()
}

func (e *Engine) onFrame(adu modbuscore.ADU) {
	if e.current < 0 {
		return
	}
	slot := e.pool.At(e.current)
	if !e.isRTU && adu.TransactionID != slot.transactionID {
		return // stale or foreign response; ignore per spec.md §5 cancellation semantics
	}

	result := Result{Status: diag.StatusOK}
	if modbuscore.IsException(adu.FunctionCode) && len(adu.Data) >= 1 {
		_, code, err := pdu.ParseException([]byte{adu.FunctionCode, adu.Data[0]})
		if err == nil {
			result.Status = diag.StatusForException(code)
			result.Exception = code
		} else {
			result.Status = diag.StatusInvalidRequest
		}
	} else {
		result.Data = adu.Data
	}
	if !slot.startedAt.IsZero() {
		elapsed := e.transport.Now().Sub(slot.startedAt)
		e.metrics.latencySum += elapsed
		e.metrics.latencyCount++
		// The client's side of spec.md §4.5's turnaround metric: request
		// sent -> response received, the mirror of the server's RX->TX
		// window. Only meaningful when a response actually arrived.
		if e.diag != nil && result.Status == diag.StatusOK {
			e.diag.RecordTurnaround(elapsed)
		}
	}
	e.finalize(e.current, result)
}

func (e *Engine) checkDeadlines() {
	if e.current < 0 {
		return
	}
	slot := e.pool.At(e.current)
	now := e.transport.Now()

	switch e.state.State() {
	case StateWaiting:
		if !slot.watchdogDeadline.IsZero() && !now.Before(slot.watchdogDeadline) {
			e.finalize(e.current, Result{Status: diag.StatusTransport})
			return
		}
		if !now.Before(slot.deadline) {
			if slot.retryCount < slot.req.MaxRetries {
				slot.retryCount++
				e.metrics.Retries++
				slot.timeout *= 2
				if slot.timeout > e.timeoutCap {
					slot.timeout = e.timeoutCap
				}
				slot.nextAttempt = now.Add(computeBackoff(slot.req.BackoffBase, slot.retryCount, e.backoffCap, e.rng))
				e.transitionTo(StateBackoff)
			} else {
				e.finalize(e.current, Result{Status: diag.StatusTimeout})
			}
		}
	case StateBackoff:
		if !slot.watchdogDeadline.IsZero() && !now.Before(slot.watchdogDeadline) {
			e.finalize(e.current, Result{Status: diag.StatusTransport})
			return
		}
		if !now.Before(slot.nextAttempt) {
			e.attempt()
		}
	}
}
