package machine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid machine config")

// Load reads a YAML (or JSON) configuration file
func Load(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadConfig(data)
}

// LoadConfig parses a configuration document and returns a MachineConfig.
// JSON input is accepted since it is a subset of YAML.
func LoadConfig(data []byte) (*MachineConfig, error) {
	var config MachineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *MachineConfig) {
	if config.Name == "" {
		config.Name = "Mendel"
	}
	if config.QueueSize == 0 {
		config.QueueSize = 8
	}
	if config.TimerFreq == 0 {
		config.TimerFreq = 1000000
	}
	if config.Serial.Baud == 0 {
		config.Serial.Baud = 115200
	}
	if config.Serial.ReadTimeoutMs == 0 {
		config.Serial.ReadTimeoutMs = 100
	}
	if config.Sim.TickUs == 0 {
		config.Sim.TickUs = 1000
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	for name, axis := range config.Axes {
		if axis.MaxFeedrate == 0 {
			axis.MaxFeedrate = 3000
		}
		if axis.SearchFeedrate == 0 {
			axis.SearchFeedrate = 50
		}
		if axis.RetractUnits == 0 {
			axis.RetractUnits = 250
		}
		if axis.ApproachUnits == 0 {
			axis.ApproachUnits = 3
		}
		if axis.CreepUnits == 0 {
			axis.CreepUnits = 6
		}
		config.Axes[name] = axis
	}

	for name, heater := range config.Heaters {
		if heater.MaxTemp == 0 {
			heater.MaxTemp = 300
		}
		if heater.Ambient == 0 {
			heater.Ambient = 20
		}
		if heater.HeatRate == 0 {
			heater.HeatRate = 2
		}
		config.Heaters[name] = heater
	}
}

// Validate checks that every axis the interpreter drives is usable
func (c *MachineConfig) Validate() error {
	for _, a := range Axes {
		axis, ok := c.Axes[a.key()]
		if !ok {
			return fmt.Errorf("%w: axis %s not configured", ErrInvalidConfig, a)
		}
		if axis.StepsPerUnit <= 0 {
			return fmt.Errorf("%w: axis %s steps_per_unit must be > 0, got %g", ErrInvalidConfig, a, axis.StepsPerUnit)
		}
		if axis.MaxFeedrate <= 0 || axis.SearchFeedrate <= 0 {
			return fmt.Errorf("%w: axis %s feedrates must be > 0", ErrInvalidConfig, a)
		}
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be >= 1, got %d", ErrInvalidConfig, c.QueueSize)
	}
	return nil
}

// DefaultConfig returns the configuration of a stock Mendel with RAMPS-style wiring
func DefaultConfig() *MachineConfig {
	config := &MachineConfig{
		Name: "Mendel",
		Axes: map[string]AxisConfig{
			"x": {
				StepsPerUnit:   80,
				MaxFeedrate:    3000,
				SearchFeedrate: 50,
				EnablePin:      8,
			},
			"y": {
				StepsPerUnit:   80,
				MaxFeedrate:    3000,
				SearchFeedrate: 50,
				EnablePin:      8,
			},
			"z": {
				StepsPerUnit:   400,
				MaxFeedrate:    300,
				SearchFeedrate: 50,
				EnablePin:      8,
			},
			"e": {
				StepsPerUnit:   96,
				MaxFeedrate:    3000,
				SearchFeedrate: 50,
				EnablePin:      8,
			},
		},
		Heaters: map[string]HeaterConfig{
			"extruder": {Pin: 10, MaxTemp: 300},
			"bed":      {Pin: 11, MaxTemp: 150},
		},
		MockGPIO:    true,
		IdleTimeout: 60,
	}
	applyDefaults(config)
	return config
}
