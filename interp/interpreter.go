// Package interp turns parsed G-code commands into motion requests,
// homing maneuvers and changes to the interpreter's own coordinate frame.
package interp

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"r2c2/gcode"
	"r2c2/logger"
	"r2c2/machine"
	"r2c2/motion"
)

// FirmwareInfo is the M115 identification line
const FirmwareInfo = "FIRMWARE_NAME:Teacup_R2C2 FIRMWARE_URL:http%3A//github.com/bitboxelectronics/R2C2 PROTOCOL_VERSION:1.0 MACHINE_TYPE:Mendel"

// Thermal is the temperature collaborator
type Thermal interface {
	SetTarget(heater string, temp float64) error
	Report(w io.Writer) error
}

// Power is the machine power and stepper driver collaborator
type Power interface {
	On() error
	Off() error
	EnableAxes() error
	DisableAxes() error
	ResetIdle()
}

// SleepFunc waits d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Interpreter
type Option func(*Interpreter)

func WithThermal(t Thermal) Option {
	return func(in *Interpreter) {
		in.thermal = t
	}
}

func WithPower(p Power) Option {
	return func(in *Interpreter) {
		in.power = p
	}
}

// WithStatus sets where reports and diagnostics are written
func WithStatus(w io.Writer) Option {
	return func(in *Interpreter) {
		in.status = w
	}
}

// WithSleep replaces the G4 dwell timer
func WithSleep(sleep SleepFunc) Option {
	return func(in *Interpreter) {
		in.sleep = sleep
	}
}

func WithLogger(l logger.Logger) Option {
	return func(in *Interpreter) {
		in.log = l
	}
}

// Interpreter dispatches one command at a time. Dispatch must be called
// from a single goroutine; EmergencyStop may be called from any.
type Interpreter struct {
	frame *Context
	gw    motion.Gateway
	homer *Homer

	thermal Thermal
	power   Power
	status  io.Writer
	sleep   SleepFunc
	log     logger.Logger

	halted atomic.Bool
}

// New creates an interpreter driving gw. When gw also counts steps the
// frame resynchronizes from it.
func New(cfg *machine.MachineConfig, gw motion.Gateway, opts ...Option) *Interpreter {
	in := &Interpreter{
		gw:      gw,
		thermal: nopThermal{},
		power:   nopPower{},
		status:  io.Discard,
		sleep:   sleepContext,
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(in)
	}

	tracker, _ := gw.(motion.Tracker)
	in.frame = NewContext(cfg, tracker)
	in.homer = NewHomer(in.frame, gw, in.log.With("component", "homing"), in.halted.Load)
	return in
}

// Context returns the interpreter's coordinate frame
func (in *Interpreter) Context() *Context {
	return in.frame
}

// Modes returns the sticky modes used to parse the next line
func (in *Interpreter) Modes() *gcode.Modes {
	return &in.frame.Modes
}

// Halted reports whether an emergency stop has been executed
func (in *Interpreter) Halted() bool {
	return in.halted.Load()
}

// Dispatch executes one command. It never fails: unsupported codes are
// reported on the status writer and change nothing.
func (in *Interpreter) Dispatch(ctx context.Context, cmd *gcode.Command) {
	if in.halted.Load() {
		in.log.Warn("halted, command dropped", "g", cmd.G, "m", cmd.M)
		return
	}

	in.frame.ToAbsolute(cmd)

	switch {
	case cmd.Has(gcode.SeenG):
		in.dispatchG(ctx, cmd)
	case cmd.Has(gcode.SeenM):
		in.dispatchM(ctx, cmd)
	}
}

// EmergencyStop masks the motion interrupt, drops all queued motion and
// cuts power without waiting on anything. The interpreter then ignores
// further commands.
func (in *Interpreter) EmergencyStop() {
	in.halted.Store(true)
	if i, ok := in.gw.(motion.Interrupter); ok {
		i.DisableTimerInterrupt()
	}
	in.gw.Flush()
	if err := in.power.Off(); err != nil {
		in.log.Error("power off failed", "error", err)
	}
	in.log.Error("emergency stop")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopThermal struct{}

func (nopThermal) SetTarget(string, float64) error { return nil }
func (nopThermal) Report(io.Writer) error          { return nil }

type nopPower struct{}

func (nopPower) On() error          { return nil }
func (nopPower) Off() error         { return nil }
func (nopPower) EnableAxes() error  { return nil }
func (nopPower) DisableAxes() error { return nil }
func (nopPower) ResetIdle()         {}
