package interp

import (
	"r2c2/gcode"
	"r2c2/machine"
	"r2c2/motion"
)

// Selection is the set of axes whose letters appeared on a command
type Selection uint8

// SelectAll selects every axis
const SelectAll Selection = 1<<machine.NumAxes - 1

// SelectionOf returns the axes present on cmd
func SelectionOf(cmd *gcode.Command) Selection {
	var sel Selection
	for _, a := range machine.Axes {
		if cmd.HasAxis(a) {
			sel |= 1 << a
		}
	}
	return sel
}

// Select returns a selection of the given axes
func Select(axes ...machine.Axis) Selection {
	var sel Selection
	for _, a := range axes {
		sel |= 1 << a
	}
	return sel
}

// Has reports whether a is selected
func (s Selection) Has(a machine.Axis) bool {
	return s&(1<<a) != 0
}

// Axes returns the selected axes in X, Y, Z, E order, or every axis
// when the selection is empty
func (s Selection) Axes() []machine.Axis {
	if s == 0 {
		s = SelectAll
	}
	axes := make([]machine.Axis, 0, machine.NumAxes)
	for _, a := range machine.Axes {
		if s.Has(a) {
			axes = append(axes, a)
		}
	}
	return axes
}

// Context is the coordinate frame owned by one interpreter: where it
// believes the machine is, in logical units and in steps, and the sticky
// modes of the command stream.
type Context struct {
	// Logical position in mm plus the feedrate register F. E is not
	// accumulated; it stays at its zeroed base.
	Logical machine.Position

	// Physical position in steps. Only meaningful right after homing,
	// G92 or a synchronized read.
	Physical machine.Steps

	Config *machine.MachineConfig
	Modes  gcode.Modes

	// Optional step counter of the motion queue
	tracker motion.Tracker
}

// NewContext creates a frame at the origin with the feedrate register at
// the X search feedrate
func NewContext(cfg *machine.MachineConfig, tracker motion.Tracker) *Context {
	c := &Context{
		Config:  cfg,
		tracker: tracker,
	}
	c.Logical.F = cfg.Axis(machine.AxisX).SearchFeedrate
	return c
}

// ToAbsolute adds the logical position to every axis present on a
// relative command, in place
func (c *Context) ToAbsolute(cmd *gcode.Command) {
	if !cmd.Relative {
		return
	}
	for _, a := range machine.Axes {
		if cmd.HasAxis(a) {
			cmd.Target.Set(a, cmd.Target.Get(a)+c.Logical.Get(a))
		}
	}
}

// SetZero declares the current location zero for the selected axes, or
// for all of them when none are selected. Nothing moves.
func (c *Context) SetZero(sel Selection) {
	for _, a := range sel.Axes() {
		c.zeroAxis(a)
	}
}

func (c *Context) zeroAxis(a machine.Axis) {
	c.Logical.Set(a, 0)
	c.Physical[a] = 0
	if c.tracker != nil {
		c.tracker.SetPosition(a, 0)
	}
}

// SyncPhysical reloads Physical from the motion queue's step counters.
// Callers must make sure the queue is empty first.
func (c *Context) SyncPhysical() {
	if c.tracker != nil {
		c.Physical = c.tracker.Position()
	}
}
