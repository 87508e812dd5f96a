package machine

// Axis identifies one of the four controlled axes
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisE

	// NumAxes is the number of controlled axes
	NumAxes = 4
)

// Axes lists every axis in homing order
var Axes = [NumAxes]Axis{AxisX, AxisY, AxisZ, AxisE}

var axisLetters = [NumAxes]byte{'X', 'Y', 'Z', 'E'}

// Letter returns the G-code letter of the axis
func (a Axis) Letter() byte {
	if a < 0 || a >= NumAxes {
		return '?'
	}
	return axisLetters[a]
}

func (a Axis) String() string {
	return string(a.Letter())
}

// key is the lower-case name used in configuration maps
func (a Axis) key() string {
	return string(a.Letter() + ('a' - 'A'))
}

// Position is a location in the logical frame (units) plus the feedrate register
type Position struct {
	X float64
	Y float64
	Z float64
	E float64 // Extruder
	F float64 // Feedrate (units/min)
}

// Get returns the coordinate of one axis
func (p *Position) Get(a Axis) float64 {
	switch a {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	case AxisZ:
		return p.Z
	case AxisE:
		return p.E
	}
	return 0
}

// Set assigns the coordinate of one axis
func (p *Position) Set(a Axis, v float64) {
	switch a {
	case AxisX:
		p.X = v
	case AxisY:
		p.Y = v
	case AxisZ:
		p.Z = v
	case AxisE:
		p.E = v
	}
}

// Steps holds a per-axis position in machine steps
type Steps [NumAxes]int64

// AxisConfig represents configuration for a single axis
type AxisConfig struct {
	StepsPerUnit   float64 `yaml:"steps_per_unit"`  // Steps per millimeter
	MaxFeedrate    float64 `yaml:"max_feedrate"`    // Maximum feedrate (units/min)
	SearchFeedrate float64 `yaml:"search_feedrate"` // Slow homing feedrate (units/min)

	// Homing distances in units, scaled by StepsPerUnit
	RetractUnits  float64 `yaml:"retract"`
	ApproachUnits float64 `yaml:"approach"`
	CreepUnits    float64 `yaml:"creep"`

	EnablePin    int  `yaml:"enable_pin"` // BCM pin, 0 = not wired
	InvertEnable bool `yaml:"invert_enable"`
}

// Heater names used by the M-codes
const (
	HeaterExtruder = "extruder"
	HeaterBed      = "bed"
)

// HeaterConfig represents configuration for a heater
type HeaterConfig struct {
	Pin      int     `yaml:"pin"`       // BCM pin, 0 = not wired
	MaxTemp  float64 `yaml:"max_temp"`  // Targets above this are clamped
	Ambient  float64 `yaml:"ambient"`   // Simulated resting temperature
	HeatRate float64 `yaml:"heat_rate"` // Simulated degrees per second
}

// SerialConfig selects the host transport
type SerialConfig struct {
	Device        string `yaml:"device"` // Empty means stdin/stdout
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// SimConfig tunes the simulated stepper engine
type SimConfig struct {
	TickUs     int   `yaml:"tick_us"`     // Timer interrupt period
	StartSteps Steps `yaml:"start_steps"` // Power-on position, endstops trigger at <= 0
}

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Name      string                  `yaml:"name"`
	Axes      map[string]AxisConfig   `yaml:"axes"`    // "x", "y", "z", "e"
	Heaters   map[string]HeaterConfig `yaml:"heaters"` // "extruder", "bed"
	QueueSize int                     `yaml:"queue_size"`
	TimerFreq uint32                  `yaml:"timer_freq"` // Scheduler ticks per second

	PowerPin    int  `yaml:"power_pin"`
	MockGPIO    bool `yaml:"mock_gpio"`
	IdleTimeout int  `yaml:"idle_timeout_s"` // Disable axes after this many idle seconds, 0 = never

	Serial   SerialConfig `yaml:"serial"`
	Sim      SimConfig    `yaml:"sim"`
	LogLevel string       `yaml:"log_level"`
}

// Axis returns the configuration of one axis
func (c *MachineConfig) Axis(a Axis) AxisConfig {
	return c.Axes[a.key()]
}

// StepsPerUnit returns the steps-per-unit of every axis
func (c *MachineConfig) StepsPerUnit() [NumAxes]float64 {
	var spu [NumAxes]float64
	for _, a := range Axes {
		spu[a] = c.Axis(a).StepsPerUnit
	}
	return spu
}
