package core

import (
	"sync"
	"time"
)

// watchdog tracks the motion deadline. It is armed when the robot starts in
// watchdog mode and fed by every motion command and heartbeat.
type watchdog struct {
	deadline time.Duration

	mu       sync.Mutex
	armed    bool
	lastFeed time.Time
}

func newWatchdog(deadline time.Duration) *watchdog {
	return &watchdog{deadline: deadline}
}

// Arm starts supervision from now. It returns true if the watchdog was disarmed.
func (w *watchdog) Arm(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.armed
	w.armed = true
	w.lastFeed = now
	return !was
}

func (w *watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
}

func (w *watchdog) Feed(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastFeed = now
}

func (w *watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Expired reports whether an armed watchdog has not been fed within the deadline.
func (w *watchdog) Expired(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed && now.Sub(w.lastFeed) > w.deadline
}
