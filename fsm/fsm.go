// Package fsm implements the reusable finite state machine described in
// spec.md §4.6: states are data (an id plus a transition table and an
// optional default action); transitions are (event, next-state, optional
// action, optional guard) tuples; a bounded event queue is fed by an
// ISR-safe enqueue guarded by a configurable critical section. Step pops one
// event per call and dispatches it through the current state's transition
// table, or — if no event is pending — runs the current state's default
// action, used for timeouts and polling.
//
// client/engine.go and server/pipeline.go are both built on top of this
// rather than as bespoke switch statements.
package fsm

import "github.com/lgili/modbuscore/queue"

// CriticalSection brackets the producer side of Enqueue, matching spec.md
// §4.6's "ISR-safe enqueue protected by a configurable critical section".
// NoOpCriticalSection and MutexCriticalSection cover the single-threaded and
// multi-goroutine cases respectively.
type CriticalSection interface {
	Enter()
	Exit()
}

// NoOpCriticalSection is the default: a single-threaded cooperative caller
// (spec.md §5) needs no locking around Enqueue.
type NoOpCriticalSection struct{}

// Enter implements CriticalSection.
func (NoOpCriticalSection) Enter() {}

// Exit implements CriticalSection.
func (NoOpCriticalSection) Exit() {}

// Transition is one (event, next-state) edge out of a state, with an
// optional guard and action. A nil Guard always fires; a nil Action is a
// pure state change.
type Transition[S comparable, E comparable] struct {
	Event  E
	Next   S
	Guard  func() bool
	Action func()
}

// StateDef describes one state's outgoing transitions and its default
// action, run when Step finds no pending event.
type StateDef[S comparable, E comparable] struct {
	State       S
	Transitions []Transition[S, E]
	Default     func()
}

// FSM is a generic state machine over comparable state and event types.
type FSM[S comparable, E comparable] struct {
	states  map[S]StateDef[S, E]
	current S

	events *queue.SPSC[E]
	cs     CriticalSection
}

// New builds an FSM from its state table, starting in initial. eventCap is
// the bounded event queue's capacity (rounded up to a power of two). cs may
// be nil, in which case NoOpCriticalSection is used.
func New[S comparable, E comparable](defs []StateDef[S, E], initial S, eventCap int, cs CriticalSection) *FSM[S, E] {
	states := make(map[S]StateDef[S, E], len(defs))
	for _, d := range defs {
		states[d.State] = d
	}
	if cs == nil {
		cs = NoOpCriticalSection{}
	}
	return &FSM[S, E]{
		states:  states,
		current: initial,
		events:  queue.NewSPSC[E](eventCap),
		cs:      cs,
	}
}

// State returns the current state.
func (f *FSM[S, E]) State() S { return f.current }

// Enqueue submits an event for the next Step call, guarded by the
// configured critical section. Returns false if the event queue is full.
func (f *FSM[S, E]) Enqueue(e E) bool {
	f.cs.Enter()
	defer f.cs.Exit()
	return f.events.Enqueue(e)
}

// Step pops one event and dispatches it through the current state's
// transition table: the first transition whose Event matches and whose
// Guard (if any) returns true fires its Action and moves to Next. If no
// event is pending, the current state's Default action runs instead. Step
// reports whether an event was consumed.
func (f *FSM[S, E]) Step() bool {
	ev, ok := f.events.Dequeue()
	if !ok {
		if def, found := f.states[f.current]; found && def.Default != nil {
			def.Default()
		}
		return false
	}

	def, found := f.states[f.current]
	if !found {
		return true
	}
	for _, t := range def.Transitions {
		if t.Event != ev {
			continue
		}
		if t.Guard != nil && !t.Guard() {
			continue
		}
		if t.Action != nil {
			t.Action()
		}
		f.current = t.Next
		return true
	}
	return true
}
