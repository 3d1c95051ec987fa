package fsm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lgili/modbuscore/fsm"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateDone
)

type event int

const (
	evStart event = iota
	evFinish
)

func TestFSMDispatchesMatchingTransition(t *testing.T) {
	var entered []state
	defs := []fsm.StateDef[state, event]{
		{
			State: stateIdle,
			Transitions: []fsm.Transition[state, event]{
				{Event: evStart, Next: stateRunning, Action: func() { entered = append(entered, stateRunning) }},
			},
		},
		{
			State: stateRunning,
			Transitions: []fsm.Transition[state, event]{
				{Event: evFinish, Next: stateDone, Action: func() { entered = append(entered, stateDone) }},
			},
		},
		{State: stateDone},
	}

	m := fsm.New(defs, stateIdle, 4, nil)
	require.Equal(t, stateIdle, m.State())

	require.True(t, m.Enqueue(evStart))
	require.True(t, m.Step())
	require.Equal(t, stateRunning, m.State())

	require.True(t, m.Enqueue(evFinish))
	require.True(t, m.Step())
	require.Equal(t, stateDone, m.State())

	require.Equal(t, []state{stateRunning, stateDone}, entered)
}

func TestFSMGuardBlocksTransition(t *testing.T) {
	allowed := false
	defs := []fsm.StateDef[state, event]{
		{
			State: stateIdle,
			Transitions: []fsm.Transition[state, event]{
				{Event: evStart, Next: stateRunning, Guard: func() bool { return allowed }},
			},
		},
		{State: stateRunning},
	}
	m := fsm.New(defs, stateIdle, 4, nil)

	m.Enqueue(evStart)
	m.Step()
	require.Equal(t, stateIdle, m.State(), "guard false must block the transition")
}

func TestFSMRunsDefaultActionWhenNoEventPending(t *testing.T) {
	ticks := 0
	defs := []fsm.StateDef[state, event]{
		{State: stateIdle, Default: func() { ticks++ }},
	}
	m := fsm.New(defs, stateIdle, 4, nil)

	consumed := m.Step()
	require.False(t, consumed)
	require.Equal(t, 1, ticks)
}

func TestFSMEnqueueRejectsWhenQueueFull(t *testing.T) {
	defs := []fsm.StateDef[state, event]{{State: stateIdle}}
	m := fsm.New(defs, stateIdle, 2, nil)

	require.True(t, m.Enqueue(evStart))
	require.True(t, m.Enqueue(evStart))
	require.False(t, m.Enqueue(evStart))
}

func TestFSMMutexCriticalSectionSerializesEnqueue(t *testing.T) {
	defs := []fsm.StateDef[state, event]{{State: stateIdle}}
	cs := &fsm.MutexCriticalSection{}
	m := fsm.New(defs, stateIdle, 64, cs)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			m.Enqueue(evStart)
		}
		close(done)
	}()
	for i := 0; i < 32; i++ {
		m.Enqueue(evFinish)
	}
	<-done
}
