package module

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// goid returns the current goroutine id. The module lock has to be re-entrant
// because a synchronous order round-trip may deliver a transaction event back
// into the same module before the submission call returns.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// The stack header is "goroutine <id> [<state>]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}

	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}

	return id
}

// ReentrantMutex is a mutual-exclusion lock that may be re-acquired by the
// goroutine that already holds it. It serializes event processing per module:
// two events for the same module never execute concurrently.
type ReentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Uint64
	depth int
}

// Lock acquires the mutex, or increases the hold depth when the calling
// goroutine already owns it.
func (m *ReentrantMutex) Lock() {
	id := goid()
	if m.owner.Load() == id {
		m.depth++

		return
	}

	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

// Unlock releases one hold. The mutex is released to other goroutines once
// the depth reaches zero. Unlocking from a non-owning goroutine panics: that
// is a programming error, not a runtime condition.
func (m *ReentrantMutex) Unlock() {
	if m.owner.Load() != goid() {
		panic("module: unlock of re-entrant mutex by non-owning goroutine")
	}

	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}
