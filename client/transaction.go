// Package client implements the poll-driven transaction engine described in
// spec.md §4.3, built on top of fsm.FSM for its Idle/Waiting/Backoff state
// tracking, pool.TxPool for transaction slots, diag.Diag for outcome
// counters, and observer.Observer for lifecycle events. Its synchronous
// facade (sync.go) mirrors grid-x-modbus/client.go's Client interface,
// implemented here by queuing a Request and blocking on its completion.
package client

import (
	"time"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/diag"
)

// Request is one submission to the engine: target, payload, policy.
type Request struct {
	UnitID       byte
	FunctionCode byte
	Data         []byte // PDU payload after the function code

	Callback func(Result)

	Timeout         time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	WatchdogTimeout time.Duration

	// Priority submissions are inserted at the head of the pending queue.
	Priority bool
	// NoResponse requests finalize with StatusOK as soon as they are sent
	// (e.g. a Modbus broadcast write).
	NoResponse bool
	// Poison bypasses queue-capacity checks, runs high-priority, expects
	// no response, and finalizes with StatusCancelled when reached.
	Poison bool
}

// Result is delivered to a Request's Callback exactly once.
type Result struct {
	Status    diag.Status
	Exception modbuscore.Exception
	Data      []byte
}

// txSlot is the pooled, in-flight representation of a Request.
type txSlot struct {
	req Request

	transactionID uint16
	retryCount    int
	timeout       time.Duration

	deadline         time.Time
	watchdogDeadline time.Time
	nextAttempt      time.Time
	startedAt        time.Time
}
