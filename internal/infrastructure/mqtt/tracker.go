package mqtt

import "sync"

// PublishCallback is invoked once per publish: with nil when the broker
// acknowledged it, or with the failure otherwise.
type PublishCallback func(err error)

type ackState int

const (
	ackPending ackState = iota + 1
	ackDone
)

// ackEntry is the per-identifier slot. No entry means the identifier is
// unknown; pending holds the caller's callback; done holds the outcome of
// a completion that arrived before the callback was registered.
type ackEntry struct {
	state    ackState
	callback PublishCallback
	err      error
}

// PublishTracker pairs publish completions with caller callbacks.
//
// The completion (from the transport) and the registration (from the
// publishing caller) may arrive in either order. Whichever comes second
// fires the callback and removes the entry, so each callback runs exactly
// once and no entry outlives its publish.
//
// Thread Safety:
//   - One mutex covers the entries and the published counter. Callbacks
//     run after the mutex is released.
type PublishTracker struct {
	mu        sync.Mutex
	entries   map[uint64]ackEntry
	published uint64
}

// NewPublishTracker returns an empty tracker.
func NewPublishTracker() *PublishTracker {
	return &PublishTracker{entries: make(map[uint64]ackEntry)}
}

// RegisterOrInvoke attaches callback to publish id. If the publish already
// completed the callback runs now, on the caller's goroutine.
func (t *PublishTracker) RegisterOrInvoke(id uint64, callback PublishCallback) {
	t.mu.Lock()
	entry, ok := t.entries[id]
	if ok && entry.state == ackDone {
		delete(t.entries, id)
		t.mu.Unlock()
		invoke(callback, entry.err)
		return
	}
	t.entries[id] = ackEntry{state: ackPending, callback: callback}
	t.mu.Unlock()
}

// Acknowledge records a successful publish and counts it.
func (t *PublishTracker) Acknowledge(id uint64) {
	t.complete(id, nil)
}

// Fail records a failed publish. Failures are not counted as published.
func (t *PublishTracker) Fail(id uint64, err error) {
	t.complete(id, err)
}

func (t *PublishTracker) complete(id uint64, err error) {
	t.mu.Lock()
	if err == nil {
		t.published++
	}
	entry, ok := t.entries[id]
	if ok && entry.state == ackPending {
		delete(t.entries, id)
		t.mu.Unlock()
		invoke(entry.callback, err)
		return
	}
	t.entries[id] = ackEntry{state: ackDone, err: err}
	t.mu.Unlock()
}

// Reset drops all entries without invoking callbacks and returns how many
// callbacks were still pending.
func (t *PublishTracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := 0
	for _, e := range t.entries {
		if e.state == ackPending {
			pending++
		}
	}
	t.entries = make(map[uint64]ackEntry)
	return pending
}

// Published returns the lifetime count of acknowledged publishes.
func (t *PublishTracker) Published() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.published
}

// Len returns the number of unresolved entries.
func (t *PublishTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func invoke(callback PublishCallback, err error) {
	if callback != nil {
		callback(err)
	}
}
