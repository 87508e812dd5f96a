// Package thermal runs the heaters: targets set by M104/M109/M140,
// bang-bang control of the heater pins against simulated sensors, and the
// M105 temperature report.
package thermal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"r2c2/gpio"
	"r2c2/logger"
	"r2c2/machine"
)

// ErrUnknownHeater is returned for a heater name missing from the config
var ErrUnknownHeater = errors.New("unknown heater")

// Tolerance is how close, in degrees, a heater must be to count as at target
const Tolerance = 2.0

// Heater is one heating element and its simulated sensor
type Heater struct {
	Name string
	cfg  machine.HeaterConfig

	mu     sync.Mutex
	temp   float64
	target float64
	on     bool
}

// Temperature returns the current sensor reading
func (h *Heater) Temperature() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.temp
}

// Target returns the requested temperature, 0 when off
func (h *Heater) Target() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// AtTarget reports whether the heater is off or within Tolerance of target
func (h *Heater) AtTarget() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target == 0 || math.Abs(h.temp-h.target) <= Tolerance
}

// Option configures a Controller
type Option func(*Controller)

// WithPowerSense only lets heaters draw current while powered reports true
func WithPowerSense(powered func() bool) Option {
	return func(c *Controller) {
		c.powered = powered
	}
}

// Controller owns every configured heater
type Controller struct {
	heaters *xsync.MapOf[string, *Heater]
	drv     gpio.Driver
	powered func() bool
	log     logger.Logger
}

// NewController sets up the heater pins as outputs, all switched off
func NewController(heaters map[string]machine.HeaterConfig, drv gpio.Driver, log logger.Logger, opts ...Option) (*Controller, error) {
	c := &Controller{
		heaters: xsync.NewMapOf[string, *Heater](),
		drv:     drv,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}

	for name, cfg := range heaters {
		if cfg.Pin != 0 {
			if err := drv.SetupPin(cfg.Pin, gpio.Output); err != nil {
				return nil, fmt.Errorf("heater %s pin %d: %w", name, cfg.Pin, err)
			}
			if err := drv.WritePin(cfg.Pin, gpio.Low); err != nil {
				return nil, fmt.Errorf("heater %s pin %d: %w", name, cfg.Pin, err)
			}
		}
		c.heaters.Store(name, &Heater{Name: name, cfg: cfg, temp: cfg.Ambient})
	}
	return c, nil
}

// Heater returns a heater by name
func (c *Controller) Heater(name string) (*Heater, bool) {
	return c.heaters.Load(name)
}

// SetTarget requests a temperature. Targets above the heater's maximum
// are clamped, negative targets switch it off.
func (c *Controller) SetTarget(name string, temp float64) error {
	h, ok := c.heaters.Load(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHeater, name)
	}
	if temp < 0 {
		temp = 0
	}
	if temp > h.cfg.MaxTemp {
		c.log.Warn("target clamped", "heater", name, "requested", temp, "max", h.cfg.MaxTemp)
		temp = h.cfg.MaxTemp
	}

	h.mu.Lock()
	h.target = temp
	h.mu.Unlock()

	c.log.Info("heater target", "heater", name, "target", temp)
	return nil
}

// Off sets every target to zero and opens every heater pin
func (c *Controller) Off() {
	c.heaters.Range(func(name string, h *Heater) bool {
		h.mu.Lock()
		h.target = 0
		h.mu.Unlock()
		c.switchHeater(h, false)
		return true
	})
}

// AtTarget reports whether every heater has reached its target
func (c *Controller) AtTarget() bool {
	ready := true
	c.heaters.Range(func(_ string, h *Heater) bool {
		ready = h.AtTarget()
		return ready
	})
	return ready
}

// Report writes the M105 line
func (c *Controller) Report(w io.Writer) error {
	var extruder, bed float64
	if h, ok := c.heaters.Load(machine.HeaterExtruder); ok {
		extruder = h.Temperature()
	}
	if h, ok := c.heaters.Load(machine.HeaterBed); ok {
		bed = h.Temperature()
	}
	_, err := fmt.Fprintf(w, "ok T:%.1f B:%.1f\r\n", extruder, bed)
	return err
}

// Step advances the simulation by dt: each heater warms while its pin is
// on and cools toward ambient while off
func (c *Controller) Step(dt time.Duration) {
	powered := c.powered == nil || c.powered()
	secs := dt.Seconds()

	c.heaters.Range(func(_ string, h *Heater) bool {
		h.mu.Lock()
		want := powered && h.target > 0 && h.temp < h.target
		if h.on {
			h.temp += h.cfg.HeatRate * secs
		} else if h.temp > h.cfg.Ambient {
			h.temp = math.Max(h.cfg.Ambient, h.temp-h.cfg.HeatRate*secs/2)
		}
		changed := want != h.on
		h.mu.Unlock()

		if changed {
			c.switchHeater(h, want)
		}
		return true
	})
}

func (c *Controller) switchHeater(h *Heater, on bool) {
	h.mu.Lock()
	h.on = on
	h.mu.Unlock()

	if h.cfg.Pin == 0 {
		return
	}
	if err := c.drv.WritePin(h.cfg.Pin, gpio.Level(on)); err != nil {
		c.log.Error("heater pin write failed", "heater", h.Name, "error", err)
	}
}

// Run steps the simulation every period until ctx is done
func (c *Controller) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			c.Off()
			return ctx.Err()
		case now := <-ticker.C:
			c.Step(now.Sub(last))
			last = now
		}
	}
}
