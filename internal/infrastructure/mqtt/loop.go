package mqtt

import "sync"

// callbackLoop gates delivery of paho callbacks (connect, connection lost,
// incoming messages, publish completion) into client code.
//
// Between start and stop callbacks are delivered; stop blocks until every
// delivery in progress has returned, and nothing is delivered afterwards.
// stop must not be called from inside a delivery.
type callbackLoop struct {
	mu   sync.RWMutex
	done chan struct{}
	wg   sync.WaitGroup
}

// start opens the loop. Starting a running loop is a no-op.
func (l *callbackLoop) start() {
	l.mu.Lock()
	if l.done == nil {
		l.done = make(chan struct{})
	}
	l.mu.Unlock()
}

// stop closes the loop and waits for in-progress deliveries.
func (l *callbackLoop) stop() {
	l.mu.Lock()
	if l.done != nil {
		close(l.done)
		l.done = nil
	}
	l.mu.Unlock()

	l.wg.Wait()
}

// running reports whether the loop is open.
func (l *callbackLoop) running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.done != nil
}

// stopped returns a channel closed when the current run ends. When the loop
// is not running the returned channel is already closed.
func (l *callbackLoop) stopped() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return l.done
}

// enter admits one delivery. It returns false once the loop is stopped;
// otherwise the caller must call exit when done.
func (l *callbackLoop) enter() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.done == nil {
		return false
	}
	l.wg.Add(1)
	return true
}

// exit marks a delivery finished.
func (l *callbackLoop) exit() {
	l.wg.Done()
}
