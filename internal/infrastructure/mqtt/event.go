package mqtt

import "sync"

// connectedEvent is the connected-condition: a flag that goroutines can
// wait on. The zero value is clear.
type connectedEvent struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// Set marks the condition and releases all waiters.
func (e *connectedEvent) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.set = true
	if e.ch != nil {
		close(e.ch)
	}
}

// Clear resets the condition. Later calls to Wait block until the next Set.
func (e *connectedEvent) Clear() {
	e.mu.Lock()
	e.set = false
	e.ch = nil
	e.mu.Unlock()
}

// IsSet reports the current state.
func (e *connectedEvent) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Wait returns a channel that is closed once the condition is set.
func (e *connectedEvent) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		e.ch = make(chan struct{})
		if e.set {
			close(e.ch)
		}
	}
	return e.ch
}
