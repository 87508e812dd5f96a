package stepgen

import (
	"sync"
	"sync/atomic"

	"r2c2/core"
	"r2c2/machine"
)

// Machine is a bank of simulated steppers, one per axis. X, Y and Z carry
// a minimum endstop at step zero; the extruder has none.
type Machine struct {
	steppers [machine.NumAxes]*Stepper
	endstops [machine.NumAxes]*Endstop

	// Relabeling shifts the reported frame, not the switches
	mu     sync.Mutex
	offset machine.Steps
}

// NewMachine builds the stepper bank at the configured power-on position
func NewMachine(config *machine.MachineConfig, sched *core.Scheduler) *Machine {
	m := &Machine{}
	for _, a := range machine.Axes {
		if a != machine.AxisE {
			m.endstops[a] = NewEndstop(0)
		}
		m.steppers[a] = NewStepper(a, sched, m.endstops[a])
		m.steppers[a].SetPosition(config.Sim.StartSteps[a])
	}
	return m
}

// Execute starts every axis of delta at its rate and calls done once
// the last axis finishes. It returns false when delta is empty.
func (m *Machine) Execute(delta machine.Steps, rates [machine.NumAxes]float64, done func()) bool {
	var moving []machine.Axis
	for _, a := range machine.Axes {
		if delta[a] != 0 {
			moving = append(moving, a)
		}
	}
	if len(moving) == 0 {
		return false
	}

	var left atomic.Int32
	left.Store(int32(len(moving)))
	axisDone := func() {
		if left.Add(-1) == 0 {
			done()
		}
	}

	for _, a := range moving {
		m.steppers[a].Move(delta[a], rates[a], axisDone)
	}
	return true
}

// Stop halts every stepper immediately
func (m *Machine) Stop() {
	for _, s := range m.steppers {
		s.Stop()
	}
}

// Position returns every stepper position in the relabeled frame
func (m *Machine) Position() machine.Steps {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pos machine.Steps
	for _, a := range machine.Axes {
		pos[a] = m.steppers[a].Position() - m.offset[a]
	}
	return pos
}

// SetPosition relabels one stepper's position without moving it
func (m *Machine) SetPosition(a machine.Axis, steps int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.offset[a] = m.steppers[a].Position() - steps
}

// RawPosition returns the position of every stepper relative to its switch
func (m *Machine) RawPosition() machine.Steps {
	var pos machine.Steps
	for _, a := range machine.Axes {
		pos[a] = m.steppers[a].Position()
	}
	return pos
}

// Active reports whether any stepper is moving
func (m *Machine) Active() bool {
	for _, s := range m.steppers {
		if s.IsActive() {
			return true
		}
	}
	return false
}

// Endstop returns the simulated switch of an axis, or nil
func (m *Machine) Endstop(a machine.Axis) *Endstop {
	return m.endstops[a]
}
