// Package gpio drives the digital outputs of the board: the power supply,
// stepper enables and heater switches.
package gpio

import (
	"fmt"
	"sync"

	"r2c2/logger"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver. A mock driver is returned when mock
// is true, the go-rpio driver otherwise.
func NewDriver(mock bool, log logger.Logger) (Driver, error) {
	if mock {
		log.Info("using mock GPIO driver")
		return NewMockDriver(log), nil
	}
	return NewRPiDriver(log)
}

// MockDriver keeps pin levels in memory. Used off-board and in tests.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	writes map[int]int
	log    logger.Logger
}

// NewMockDriver creates an in-memory driver
func NewMockDriver(log logger.Logger) *MockDriver {
	return &MockDriver{
		modes:  make(map[int]PinMode),
		levels: make(map[int]Level),
		writes: make(map[int]int),
		log:    log,
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	if mode != Input && mode != Output {
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modes[pin] = mode
	m.log.Debug("setup pin", "pin", pin, "mode", mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.modes[pin]; !ok {
		m.modes[pin] = Output
	}
	m.levels[pin] = level
	m.writes[pin]++
	m.log.Debug("write pin", "pin", pin, "level", level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levels = make(map[int]Level)
	return nil
}

// Level returns the last level written to pin
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Writes returns how many times pin was written
func (m *MockDriver) Writes(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[pin]
}

// Mode returns the configured mode of pin and whether it was set up
func (m *MockDriver) Mode(pin int) (PinMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.modes[pin]
	return mode, ok
}
