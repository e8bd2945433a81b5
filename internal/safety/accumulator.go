// Package safety implements the Safety Manager: the fixed, ordered list
// of interlock checks that preempt normal control (spec §4.5).
package safety

import "sync"

// Debounce counts consecutive scans a predicate has held true (or false),
// standing in for the "N consecutive scans" timers each interlock check
// specifies. One Debounce instance is owned per check.
type Debounce struct {
	mu        sync.Mutex
	trueRun   int
	falseRun  int
}

// NewDebounce returns a zeroed debounce counter.
func NewDebounce() *Debounce {
	return &Debounce{}
}

// Update advances the counter by one scan given the predicate's current
// reading and returns the updated consecutive-true and consecutive-false
// run lengths.
func (d *Debounce) Update(predicateTrue bool) (trueRun, falseRun int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if predicateTrue {
		d.trueRun++
		d.falseRun = 0
	} else {
		d.falseRun++
		d.trueRun = 0
	}
	return d.trueRun, d.falseRun
}

// Reset zeroes both run counters, used when a check's owning state is
// exited (e.g. leaving Startup/Running clears the valve-not-open timers).
func (d *Debounce) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trueRun = 0
	d.falseRun = 0
}
