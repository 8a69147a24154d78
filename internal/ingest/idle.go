package ingest

import (
	"sync"
	"time"
)

// idleWatch fires onIdle once no Touch has happened for timeout. A nil
// idleWatch never fires, which is what a zero timeout yields.
type idleWatch struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	stopped bool
}

func newIdleWatch(timeout time.Duration, onIdle func()) *idleWatch {
	if timeout <= 0 {
		return nil
	}
	return &idleWatch{
		timeout: timeout,
		timer:   time.AfterFunc(timeout, onIdle),
	}
}

// Touch pushes the deadline out by another timeout.
func (w *idleWatch) Touch() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.stopped {
		w.timer.Reset(w.timeout)
	}
}

// Stop disarms the watch. Safe to call more than once.
func (w *idleWatch) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.timer.Stop()
	w.stopped = true
}
