package kinematics

import "r2c2/machine"

// Kinematics converts logical moves into per-axis stepper motion
type Kinematics interface {
	// CalcSteps returns the step delta that carries the steppers from
	// their current position to target. X, Y and Z are absolute, E is
	// a relative extrusion length.
	CalcSteps(target machine.Position, from machine.Steps) machine.Steps

	// StepRates returns per-axis step rates (steps/s) so that the tool
	// moves along delta at feedrate (units/min)
	StepRates(delta machine.Steps, feedrate float64) [machine.NumAxes]float64
}
