// Package motion is the boundary between the command interpreter and the
// step generation engine: a bounded move queue consumed asynchronously.
package motion

import (
	"context"

	"r2c2/machine"
)

// Move is one entry of the motion queue
type Move struct {
	// Target holds absolute X, Y, Z, a relative E length and the feedrate F
	Target machine.Position

	// Special moves run a single axis by a relative step count with no
	// acceleration profile. They are used by homing and may be cut short
	// by an endstop.
	Special bool
	Axis    machine.Axis
	Steps   int64
}

// SpecialMove builds a single-axis relative step move
func SpecialMove(axis machine.Axis, steps int64, feedrate float64) *Move {
	return &Move{
		Target:  machine.Position{F: feedrate},
		Special: true,
		Axis:    axis,
		Steps:   steps,
	}
}

// Gateway is the producer-side contract of the motion queue
type Gateway interface {
	// Enqueue appends a move. A nil move is a synchronization barrier
	// consumed without motion. Blocks while the queue is full.
	Enqueue(m *Move)

	// Empty reports, without blocking, that nothing is queued or running
	Empty() bool

	// WaitEmpty blocks until the queue has drained or ctx is done
	WaitEmpty(ctx context.Context) error

	// Flush discards pending and in-flight motion
	Flush()
}

// Tracker is implemented by gateways that count steps themselves. It is
// only consulted once the queue is empty.
type Tracker interface {
	Position() machine.Steps
	SetPosition(a machine.Axis, steps int64)
}

// Interrupter masks the timer interrupt driving motion execution
type Interrupter interface {
	DisableTimerInterrupt()
}
