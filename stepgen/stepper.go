package stepgen

import (
	"sync"

	"r2c2/core"
	"r2c2/machine"
)

// Stepper represents a single simulated stepper motor
type Stepper struct {
	mu    sync.Mutex
	axis  machine.Axis
	sched *core.Scheduler

	// Current state
	position  int64  // Current position in steps
	remaining int64  // Steps left in the current move
	direction int64  // +1 or -1
	interval  uint64 // Ticks between steps
	active    bool   // Is stepper currently moving

	stepTimer core.Timer
	endstop   *Endstop // nil when the axis has no switch
	onDone    func()
}

// NewStepper creates a new stepper motor on the scheduler
func NewStepper(axis machine.Axis, sched *core.Scheduler, endstop *Endstop) *Stepper {
	s := &Stepper{
		axis:      axis,
		sched:     sched,
		direction: 1,
		endstop:   endstop,
	}
	s.stepTimer.Handler = s.stepHandler
	return s
}

// Move schedules a relative move of steps at stepsPerSecond. onDone runs
// from the timer interrupt once the move completes or hits the endstop.
// It returns false, without calling onDone, when there is nothing to do.
func (s *Stepper) Move(steps int64, stepsPerSecond float64, onDone func()) bool {
	if steps == 0 {
		return false
	}

	s.sched.Cancel(&s.stepTimer)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.direction = 1
	if steps < 0 {
		s.direction = -1
		steps = -steps
	}
	s.remaining = steps

	// Very slow if velocity is 0
	s.interval = uint64(s.sched.Freq())
	if stepsPerSecond > 0 {
		s.interval = uint64(float64(s.sched.Freq()) / stepsPerSecond)
	}
	if s.interval == 0 {
		s.interval = 1
	}

	s.active = true
	s.onDone = onDone
	s.stepTimer.WakeTime = s.sched.Now() + s.interval
	s.sched.Schedule(&s.stepTimer)
	return true
}

// stepHandler is called by the scheduler to generate step pulses
func (s *Stepper) stepHandler(t *core.Timer) uint8 {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return core.SF_DONE
	}

	if s.direction < 0 && s.endstop != nil && s.endstop.Triggered(s.position) {
		// Switch cut the drive; the rest of the move is lost
		s.endstop.hits.Add(1)
		s.remaining = 0
	} else {
		s.position += s.direction
		s.remaining--
	}

	if s.remaining > 0 {
		t.WakeTime += s.interval
		s.mu.Unlock()
		return core.SF_RESCHEDULE
	}

	s.active = false
	done := s.onDone
	s.onDone = nil
	s.mu.Unlock()

	if done != nil {
		done()
	}
	return core.SF_DONE
}

// Position returns the current position in steps
func (s *Stepper) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SetPosition sets the current position (for homing, etc.)
func (s *Stepper) SetPosition(steps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = steps
}

// IsActive returns whether the stepper is currently moving
func (s *Stepper) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop immediately stops the stepper without reporting completion
func (s *Stepper) Stop() {
	s.sched.Cancel(&s.stepTimer)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.remaining = 0
	s.onDone = nil
}
