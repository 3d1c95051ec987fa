package fsm

import "sync"

// MutexCriticalSection guards Enqueue with a mutex, for FSMs fed from more
// than one goroutine (e.g. a real ISR handler running concurrently with the
// poll loop in a hosted, non-bare-metal build).
type MutexCriticalSection struct {
	mu sync.Mutex
}

// Enter implements CriticalSection.
func (m *MutexCriticalSection) Enter() { m.mu.Lock() }

// Exit implements CriticalSection.
func (m *MutexCriticalSection) Exit() { m.mu.Unlock() }
