package kinematics

import (
	"errors"
	"math"

	"r2c2/machine"
)

// Cartesian implements basic Cartesian kinematics (XYZ 1:1 mapping)
type Cartesian struct {
	stepsPerUnit [machine.NumAxes]float64
}

// NewCartesian creates a new Cartesian kinematics instance
func NewCartesian(config *machine.MachineConfig) (*Cartesian, error) {
	spu := config.StepsPerUnit()
	for _, a := range machine.Axes {
		if spu[a] <= 0 {
			return nil, errors.New(a.String() + " axis not configured")
		}
	}
	return &Cartesian{stepsPerUnit: spu}, nil
}

// CalcSteps converts a target position to a step delta
func (k *Cartesian) CalcSteps(target machine.Position, from machine.Steps) machine.Steps {
	var delta machine.Steps
	for _, a := range []machine.Axis{machine.AxisX, machine.AxisY, machine.AxisZ} {
		delta[a] = int64(math.Round(target.Get(a)*k.stepsPerUnit[a])) - from[a]
	}
	delta[machine.AxisE] = int64(math.Round(target.E * k.stepsPerUnit[machine.AxisE]))
	return delta
}

// StepRates splits the feedrate over the axes in proportion to their travel.
// Pure extrusion moves run the extruder at the full feedrate.
func (k *Cartesian) StepRates(delta machine.Steps, feedrate float64) [machine.NumAxes]float64 {
	var units [machine.NumAxes]float64
	for _, a := range machine.Axes {
		units[a] = math.Abs(float64(delta[a])) / k.stepsPerUnit[a]
	}

	distance := math.Sqrt(units[0]*units[0] + units[1]*units[1] + units[2]*units[2])
	if distance == 0 {
		distance = units[machine.AxisE]
	}

	var rates [machine.NumAxes]float64
	if distance == 0 || feedrate <= 0 {
		return rates
	}

	seconds := distance / (feedrate / 60.0)
	for _, a := range machine.Axes {
		rates[a] = math.Abs(float64(delta[a])) / seconds
	}
	return rates
}
