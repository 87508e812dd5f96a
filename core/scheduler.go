package core

import (
	"context"
	"time"
)

// Scheduler keeps timers sorted by wake time and runs the due ones each
// time the timer interrupt fires. Handlers run with the list unlocked so
// they may schedule or cancel other timers.
type Scheduler struct {
	irq      irqLock
	list     *Timer
	now      uint64
	freq     uint32
	disabled bool
}

// NewScheduler creates a scheduler clocked at freq ticks per second
func NewScheduler(freq uint32) *Scheduler {
	if freq == 0 {
		freq = DefaultTimerFreq
	}
	return &Scheduler{freq: freq}
}

// Now returns the current scheduler time in ticks
func (s *Scheduler) Now() uint64 {
	s.irq.lock()
	defer s.irq.unlock()
	return s.now
}

// Schedule adds a timer to the schedule. A timer that is already
// pending is moved to its new wake time.
func (s *Scheduler) Schedule(t *Timer) {
	s.irq.lock()
	defer s.irq.unlock()

	s.removeTimer(t)
	s.insertTimer(t)
}

// Cancel removes a timer if it is still pending
func (s *Scheduler) Cancel(t *Timer) {
	s.irq.lock()
	defer s.irq.unlock()

	s.removeTimer(t)
}

func (s *Scheduler) removeTimer(t *Timer) {
	if s.list == t {
		s.list = t.Next
		t.Next = nil
		return
	}
	for cur := s.list; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// Pending returns the number of scheduled timers
func (s *Scheduler) Pending() int {
	s.irq.lock()
	defer s.irq.unlock()

	n := 0
	for cur := s.list; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// insertTimer inserts a timer in sorted order by WakeTime
func (s *Scheduler) insertTimer(t *Timer) {
	if s.list == nil || t.WakeTime < s.list.WakeTime {
		t.Next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// DisableTimerInterrupt stops timer dispatch. Pending timers stay queued
// but never fire until the interrupt is enabled again.
func (s *Scheduler) DisableTimerInterrupt() {
	s.irq.lock()
	defer s.irq.unlock()
	s.disabled = true
}

// EnableTimerInterrupt resumes timer dispatch
func (s *Scheduler) EnableTimerInterrupt() {
	s.irq.lock()
	defer s.irq.unlock()
	s.disabled = false
}

// TimerInterruptEnabled reports whether Advance dispatches timers
func (s *Scheduler) TimerInterruptEnabled() bool {
	s.irq.lock()
	defer s.irq.unlock()
	return !s.disabled
}

// Advance moves the clock forward and dispatches every due timer.
// It is the body of the timer interrupt.
func (s *Scheduler) Advance(ticks uint64) {
	s.irq.lock()
	if s.disabled {
		s.irq.unlock()
		return
	}
	s.now += ticks
	s.irq.unlock()

	s.dispatch()
}

// dispatch processes due timers
func (s *Scheduler) dispatch() {
	for {
		s.irq.lock()
		timer := s.list
		if s.disabled || timer == nil || timer.WakeTime > s.now {
			s.irq.unlock()
			return
		}
		s.list = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references
		s.irq.unlock()

		if timer.Handler(timer) == SF_RESCHEDULE {
			s.Schedule(timer)
		}
	}
}

// Run fires the timer interrupt every period until ctx is done, advancing
// the clock by the wall time elapsed since the previous tick.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	var carry time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last) + carry
			last = now
			ticks := uint64(elapsed) * uint64(s.freq) / uint64(time.Second)
			carry = elapsed - time.Duration(ticks*uint64(time.Second)/uint64(s.freq))
			s.Advance(ticks)
		}
	}
}
