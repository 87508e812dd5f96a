package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// DefaultTimerFreq is the scheduler clock when none is configured
const DefaultTimerFreq = 1000000

// TimerFromUS converts microseconds to timer ticks
func (s *Scheduler) TimerFromUS(us uint64) uint64 {
	return us * uint64(s.freq) / 1000000
}

// TimerToUS converts timer ticks to microseconds
func (s *Scheduler) TimerToUS(ticks uint64) uint64 {
	return ticks * 1000000 / uint64(s.freq)
}

// Freq returns the scheduler clock in ticks per second
func (s *Scheduler) Freq() uint32 {
	return s.freq
}
