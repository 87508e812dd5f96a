package interp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"r2c2/logger"
	"r2c2/machine"
	"r2c2/motion"
)

// Phase is one step of the homing state machine
type Phase int

const (
	PhaseSeek Phase = iota
	PhaseRetract
	PhaseApproach
	PhaseCreepIn
	PhaseZeroed
	phaseDone
)

var phaseNames = [...]string{"seek", "retract", "approach", "creep-in", "zeroed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ErrHalted is returned when an emergency stop interrupts homing
var ErrHalted = errors.New("emergency stop")

// seekSteps is long enough that only the endstop ends the move
const seekSteps = -math.MaxInt32

// axisDescriptor carries everything the state machine needs to home one axis
type axisDescriptor struct {
	axis        machine.Axis
	maxFeedrate float64
	searchFeed  float64
	retract     int64 // steps
	approach    int64
	creep       int64
	endstop     bool
}

func describeAxis(cfg *machine.MachineConfig, a machine.Axis) axisDescriptor {
	ac := cfg.Axis(a)
	return axisDescriptor{
		axis:        a,
		maxFeedrate: ac.MaxFeedrate,
		searchFeed:  ac.SearchFeedrate,
		retract:     int64(math.Round(ac.RetractUnits * ac.StepsPerUnit)),
		approach:    int64(math.Round(ac.ApproachUnits * ac.StepsPerUnit)),
		creep:       int64(math.Round(ac.CreepUnits * ac.StepsPerUnit)),
		endstop:     a != machine.AxisE,
	}
}

// Homer drives axes onto their endstops and declares that point zero
type Homer struct {
	frame  *Context
	gw     motion.Gateway
	log    logger.Logger
	halted func() bool
}

// NewHomer creates a homing sequencer over a frame and a motion gateway.
// halted is checked before every phase; nil means never halted.
func NewHomer(frame *Context, gw motion.Gateway, log logger.Logger, halted func() bool) *Homer {
	if halted == nil {
		halted = func() bool { return false }
	}
	return &Homer{frame: frame, gw: gw, log: log, halted: halted}
}

// Home homes the selected axes, or all of them, in X, Y, Z, E order. A
// failed wait aborts the remaining phases and axes.
func (h *Homer) Home(ctx context.Context, sel Selection) error {
	for _, a := range sel.Axes() {
		if err := h.HomeAxis(ctx, a); err != nil {
			return fmt.Errorf("homing %s: %w", a, err)
		}
	}
	return nil
}

// HomeAxis runs the state machine for a single axis. Axes without an
// endstop are zeroed in place.
func (h *Homer) HomeAxis(ctx context.Context, a machine.Axis) error {
	if h.halted() {
		return ErrHalted
	}
	d := describeAxis(h.frame.Config, a)
	if !d.endstop {
		h.frame.zeroAxis(a)
		return nil
	}

	log := h.log.With("axis", a.String())
	log.Info("homing")

	for phase := PhaseSeek; phase != phaseDone; {
		if h.halted() {
			return fmt.Errorf("%s: %w", phase, ErrHalted)
		}
		log.Debug("homing phase", "phase", phase)
		next, err := h.step(ctx, d, phase)
		if err != nil {
			return fmt.Errorf("%s: %w", phase, err)
		}
		phase = next
	}

	log.Info("homed")
	return nil
}

func (h *Homer) step(ctx context.Context, d axisDescriptor, phase Phase) (Phase, error) {
	switch phase {
	case PhaseSeek:
		h.move(d, seekSteps, d.maxFeedrate)
		if err := h.gw.WaitEmpty(ctx); err != nil {
			return phase, err
		}
		// Sitting on the switch
		h.frame.Physical[d.axis] = 0
		return PhaseRetract, nil

	case PhaseRetract:
		h.move(d, -d.retract, d.maxFeedrate)
		if err := h.gw.WaitEmpty(ctx); err != nil {
			return phase, err
		}
		h.frame.Physical[d.axis] = 0
		return PhaseApproach, nil

	case PhaseApproach:
		h.move(d, d.approach, d.searchFeed)
		return PhaseCreepIn, nil

	case PhaseCreepIn:
		h.move(d, -d.creep, d.searchFeed)
		if err := h.gw.WaitEmpty(ctx); err != nil {
			return phase, err
		}
		return PhaseZeroed, nil

	case PhaseZeroed:
		h.frame.zeroAxis(d.axis)
		return phaseDone, nil
	}
	return phase, fmt.Errorf("unknown homing phase %d", int(phase))
}

// move issues a special move and books it into the physical position
func (h *Homer) move(d axisDescriptor, steps int64, feedrate float64) {
	h.gw.Enqueue(motion.SpecialMove(d.axis, steps, feedrate))
	h.frame.Physical[d.axis] += steps
}
