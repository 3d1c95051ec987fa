// Package observer defines the typed event taxonomy integrators can attach
// to the client engine and server pipeline, per spec.md §4.3/§6:
// client state transitions, client transaction lifecycle, and server
// request lifecycle.
package observer

import "github.com/lgili/modbuscore/diag"

// ClientState identifies a client engine state for ClientStateEnter/Exit
// events; the engine's own state type satisfies this via its String method.
type ClientState interface {
	String() string
}

// ClientStateEnter fires when the client engine enters a new state.
type ClientStateEnter struct {
	State ClientState
}

// ClientStateExit fires when the client engine leaves a state.
type ClientStateExit struct {
	State ClientState
}

// ClientTxSubmit fires when a transaction is accepted into the client's
// submission queue.
type ClientTxSubmit struct {
	FunctionCode byte
}

// ClientTxComplete fires exactly once per transaction, when it terminates
// with its final status.
type ClientTxComplete struct {
	FunctionCode byte
	Status       diag.Status
}

// ServerRequestAccept fires when the server pipeline accepts a parsed
// request for dispatch.
type ServerRequestAccept struct {
	FunctionCode byte
	UnitID       byte
}

// ServerRequestComplete fires exactly once per accepted request, when its
// response (or silent drop, for a broadcast frame) has been decided. Frames
// addressed to another unit are dropped without any event.
type ServerRequestComplete struct {
	FunctionCode byte
	UnitID       byte
	Status       diag.Status
}

// Observer receives the event types above. Implementations only need to
// handle the events they care about, typically via a type switch with a
// default case. The client engine and server pipeline send no events when
// no Observer is configured.
type Observer interface {
	Notify(event any)
}

// Func adapts a plain function into an Observer.
type Func func(event any)

// Notify implements Observer.
func (f Func) Notify(event any) { f(event) }

// Multi fans one event out to several observers, in order.
type Multi []Observer

// Notify implements Observer.
func (m Multi) Notify(event any) {
	for _, o := range m {
		o.Notify(event)
	}
}
