package gcode

import "r2c2/machine"

// Seen is a bit set recording which letters were present on a line
type Seen uint16

const (
	SeenG Seen = 1 << iota
	SeenM
	SeenS
	SeenP
	SeenN
	SeenX
	SeenY
	SeenZ
	SeenE
	SeenF
	SeenChecksum
)

// SeenAxes covers every axis letter
const SeenAxes = SeenX | SeenY | SeenZ | SeenE

// SeenAxis returns the flag for an axis letter
func SeenAxis(a machine.Axis) Seen {
	switch a {
	case machine.AxisX:
		return SeenX
	case machine.AxisY:
		return SeenY
	case machine.AxisZ:
		return SeenZ
	case machine.AxisE:
		return SeenE
	}
	return 0
}

// Command is one parsed G-code line
type Command struct {
	G int
	M int
	S float64
	P float64 // Dwell time (ms)
	N int64   // Line number

	// Target holds X, Y, Z, E and F as written, scaled to mm when in inch mode
	Target machine.Position

	Seen     Seen
	Checksum uint8

	// Mode flags in effect when the line was parsed
	Relative bool
	Inches   bool

	Comment string
}

// Modes is the sticky parser state carried from one line to the next
type Modes struct {
	Relative bool  // G91
	Inches   bool  // G20
	NextLine int64 // Expected N of the next numbered line
}

// Has reports whether all flags in f were seen
func (cmd *Command) Has(f Seen) bool {
	return cmd.Seen&f == f
}

// HasAxis reports whether the axis letter was present
func (cmd *Command) HasAxis(a machine.Axis) bool {
	return cmd.Has(SeenAxis(a))
}

// HasParameter checks if a parameter exists in the command
func (cmd *Command) HasParameter(param byte) bool {
	f := letterFlag(toUpper(param))
	return f != 0 && cmd.Has(f)
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *Command) GetParameter(param byte, defaultValue float64) float64 {
	if !cmd.HasParameter(param) {
		return defaultValue
	}
	switch toUpper(param) {
	case 'G':
		return float64(cmd.G)
	case 'M':
		return float64(cmd.M)
	case 'S':
		return cmd.S
	case 'P':
		return cmd.P
	case 'N':
		return float64(cmd.N)
	case 'X':
		return cmd.Target.X
	case 'Y':
		return cmd.Target.Y
	case 'Z':
		return cmd.Target.Z
	case 'E':
		return cmd.Target.E
	case 'F':
		return cmd.Target.F
	}
	return defaultValue
}

func letterFlag(c byte) Seen {
	switch c {
	case 'G':
		return SeenG
	case 'M':
		return SeenM
	case 'S':
		return SeenS
	case 'P':
		return SeenP
	case 'N':
		return SeenN
	case 'X':
		return SeenX
	case 'Y':
		return SeenY
	case 'Z':
		return SeenZ
	case 'E':
		return SeenE
	case 'F':
		return SeenF
	}
	return 0
}
