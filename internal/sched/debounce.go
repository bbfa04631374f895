package sched

import (
	"sync"
	"time"
)

const DefaultDelay = 500 * time.Millisecond

// Debouncer coalesces bursts of Trigger calls into a single fn run
// after the configured quiet period. FlushNow runs a pending fn
// immediately, Stop drops it. fn always runs on a timer goroutine,
// never inside Trigger.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	pending bool
	stopped bool
}

func New(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay, fn: fn}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.fn == nil {
		return
	}
	d.pending = true
	if d.timer != nil {
		d.timer.Reset(d.delay)
		return
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	fn := d.fn
	d.mu.Unlock()
	fn()
}

// FlushNow runs the pending call synchronously, if any.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	fn := d.fn
	d.mu.Unlock()
	fn()
}

// Pending reports whether a call is scheduled and not yet run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
