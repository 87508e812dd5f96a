//go:build tinygo

package core

import "runtime/interrupt"

// irqLock masks interrupts for the duration of a critical section
type irqLock struct {
	state interrupt.State
}

func (l *irqLock) lock() {
	l.state = interrupt.Disable()
}

func (l *irqLock) unlock() {
	interrupt.Restore(l.state)
}
