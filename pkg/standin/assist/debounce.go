// Package assist – debounce.go coordinates per-sender reply timing. Each
// incoming message restarts the sender's timer for the full delay, so a
// burst of messages produces a single callback once the sender goes quiet.
package assist

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultReplyDelay is how long a sender must stay quiet before the reply
// cycle fires.
const DefaultReplyDelay = 8 * time.Second

// Debouncer holds one pending timer per sender. All state is owned by the
// struct; callers inject it where needed instead of sharing globals.
type Debouncer struct {
	delay  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates a debouncer with the given quiet-period delay.
func NewDebouncer(delay time.Duration, logger *slog.Logger) *Debouncer {
	if delay <= 0 {
		delay = DefaultReplyDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		delay:  delay,
		logger: logger.With("component", "debounce"),
		timers: make(map[string]*time.Timer),
	}
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Arm schedules fn to run after the quiet period. Any timer already pending
// for the sender is cancelled first, so every message restarts the full
// delay. fn runs on the timer goroutine exactly once per armed cycle.
func (d *Debouncer) Arm(sender string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[sender]; ok {
		t.Stop()
		d.logger.Debug("timer restarted", "sender", sender, "delay", d.delay)
	}

	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		// Stop in a later Arm is a no-op once this timer has fired; if the
		// map no longer points here the cycle was superseded and fn must
		// not run.
		d.mu.Lock()
		live := d.timers[sender] == t
		if live {
			delete(d.timers, sender)
		}
		d.mu.Unlock()
		if live {
			fn()
		}
	})
	d.timers[sender] = t
}

// CancelIfArmed stops any pending timer for the sender. Returns true if a
// timer was pending.
func (d *Debouncer) CancelIfArmed(sender string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.timers[sender]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.timers, sender)
	return true
}

// Stop cancels every pending timer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for sender, t := range d.timers {
		t.Stop()
		delete(d.timers, sender)
	}
}
