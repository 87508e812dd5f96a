package stepgen

import "sync/atomic"

// Endstop is a simulated minimum-travel switch. It reads triggered once
// the stepper position reaches the trigger point.
type Endstop struct {
	triggerAt int64
	hits      atomic.Int64
}

// NewEndstop creates an endstop that triggers at or below triggerAt steps
func NewEndstop(triggerAt int64) *Endstop {
	return &Endstop{triggerAt: triggerAt}
}

// Triggered reports whether the switch is pressed at pos
func (e *Endstop) Triggered(pos int64) bool {
	return pos <= e.triggerAt
}

// Hits returns how many steps the switch has blocked
func (e *Endstop) Hits() int64 {
	return e.hits.Load()
}
