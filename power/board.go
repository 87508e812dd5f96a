// Package power switches the machine supply and the stepper drivers, and
// powers the machine down after a period without motion.
package power

import (
	"context"
	"fmt"
	"sync"
	"time"

	"r2c2/gpio"
	"r2c2/logger"
	"r2c2/machine"
)

type enablePin struct {
	pin    int
	invert bool
}

// Option configures a Board
type Option func(*Board)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		b.now = now
	}
}

// WithBusy keeps the idle watchdog from firing while busy reports true
func WithBusy(busy func() bool) Option {
	return func(b *Board) {
		b.busy = busy
	}
}

// Board drives the power supply pin and per-axis enable pins
type Board struct {
	mu  sync.Mutex
	drv gpio.Driver
	log logger.Logger

	powerPin int
	enables  [machine.NumAxes]enablePin

	on      bool
	enabled [machine.NumAxes]bool

	idleTimeout time.Duration
	lastActive  time.Time
	now         func() time.Time
	busy        func() bool
}

// NewBoard configures every wired pin as an output and leaves the
// machine powered off
func NewBoard(cfg *machine.MachineConfig, drv gpio.Driver, log logger.Logger, opts ...Option) (*Board, error) {
	b := &Board{
		drv:         drv,
		log:         log,
		powerPin:    cfg.PowerPin,
		idleTimeout: time.Duration(cfg.IdleTimeout) * time.Second,
		now:         time.Now,
	}
	for _, a := range machine.Axes {
		ac := cfg.Axis(a)
		b.enables[a] = enablePin{pin: ac.EnablePin, invert: ac.InvertEnable}
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastActive = b.now()

	if b.powerPin != 0 {
		if err := drv.SetupPin(b.powerPin, gpio.Output); err != nil {
			return nil, fmt.Errorf("power pin %d: %w", b.powerPin, err)
		}
		if err := drv.WritePin(b.powerPin, gpio.Low); err != nil {
			return nil, fmt.Errorf("power pin %d: %w", b.powerPin, err)
		}
	}
	for _, a := range machine.Axes {
		if b.enables[a].pin == 0 {
			continue
		}
		if err := drv.SetupPin(b.enables[a].pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("%s enable pin %d: %w", a, b.enables[a].pin, err)
		}
		if err := b.writeEnable(a, false); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// On switches the supply on
func (b *Board) On() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.powerPin != 0 {
		if err := b.drv.WritePin(b.powerPin, gpio.High); err != nil {
			return fmt.Errorf("power on: %w", err)
		}
	}
	if !b.on {
		b.log.Info("power on")
	}
	b.on = true
	b.lastActive = b.now()
	return nil
}

// Off disables every axis and switches the supply off
func (b *Board) Off() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offLocked()
}

func (b *Board) offLocked() error {
	err := b.disableLocked()
	if b.powerPin != 0 {
		if werr := b.drv.WritePin(b.powerPin, gpio.Low); werr != nil && err == nil {
			err = fmt.Errorf("power off: %w", werr)
		}
	}
	if b.on {
		b.log.Info("power off")
	}
	b.on = false
	return err
}

// EnableAxes energizes every stepper driver
func (b *Board) EnableAxes() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range machine.Axes {
		if err := b.writeEnable(a, true); err != nil {
			return err
		}
	}
	return nil
}

// DisableAxes releases every stepper driver
func (b *Board) DisableAxes() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disableLocked()
}

func (b *Board) disableLocked() error {
	var first error
	for _, a := range machine.Axes {
		if err := b.writeEnable(a, false); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (b *Board) writeEnable(a machine.Axis, enable bool) error {
	b.enabled[a] = enable
	p := b.enables[a]
	if p.pin == 0 {
		return nil
	}
	// Driver enable inputs are active low unless inverted
	level := gpio.Level(enable == p.invert)
	if err := b.drv.WritePin(p.pin, level); err != nil {
		return fmt.Errorf("%s enable pin %d: %w", a, p.pin, err)
	}
	return nil
}

// ResetIdle restarts the idle timeout
func (b *Board) ResetIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActive = b.now()
}

// IsOn reports whether the supply is switched on
func (b *Board) IsOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

// AxisEnabled reports whether an axis driver is energized
func (b *Board) AxisEnabled(a machine.Axis) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled[a]
}

// CheckIdle powers the machine off once it has been idle for longer than
// the idle timeout. It returns true when it did so.
func (b *Board) CheckIdle() bool {
	if b.busy != nil && b.busy() {
		b.ResetIdle()
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.on || b.idleTimeout <= 0 || b.now().Sub(b.lastActive) < b.idleTimeout {
		return false
	}
	b.log.Info("idle timeout", "timeout", b.idleTimeout)
	if err := b.offLocked(); err != nil {
		b.log.Error("idle power off failed", "error", err)
	}
	return true
}

// Run checks the idle timeout every period until ctx is done
func (b *Board) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.CheckIdle()
		}
	}
}
