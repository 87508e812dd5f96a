package interp

import (
	"context"
	"fmt"
	"time"

	"r2c2/gcode"
	"r2c2/machine"
	"r2c2/motion"
)

func (in *Interpreter) dispatchG(ctx context.Context, cmd *gcode.Command) {
	switch cmd.G {
	case 0:
		in.rapid(cmd)

	case 1:
		in.linear(cmd)

	case 4:
		// Dwell
		if err := in.gw.WaitEmpty(ctx); err != nil {
			in.log.Warn("dwell aborted", "error", err)
			return
		}
		if err := in.sleep(ctx, time.Duration(cmd.GetParameter('P', 0)*float64(time.Millisecond))); err != nil {
			in.log.Warn("dwell aborted", "error", err)
		}

	case 20:
		in.frame.Modes.Inches = true

	case 21:
		in.frame.Modes.Inches = false

	case 28:
		in.home(ctx, SelectionOf(cmd))

	case 30:
		in.moveThenHome(ctx, cmd)

	case 90:
		in.frame.Modes.Relative = false

	case 91:
		in.frame.Modes.Relative = true

	case 92:
		if err := in.gw.WaitEmpty(ctx); err != nil {
			in.log.Warn("set position aborted", "error", err)
			return
		}
		in.frame.SetZero(SelectionOf(cmd))

	default:
		in.reportf("E: Bad G-code %d\r\n", cmd.G)
		in.log.Warn("unsupported G-code", "g", cmd.G)
	}
}

// target builds the absolute move for cmd: missing axes stay where they
// are, E is a per-move length and F falls back to the register
func (in *Interpreter) target(cmd *gcode.Command) machine.Position {
	t := in.frame.Logical
	t.E = 0
	for _, a := range machine.Axes {
		if cmd.HasAxis(a) {
			t.Set(a, cmd.Target.Get(a))
		}
	}
	if cmd.Has(gcode.SeenF) {
		t.F = cmd.Target.F
	}
	return t
}

func (in *Interpreter) enqueue(t machine.Position) {
	in.power.ResetIdle()
	in.gw.Enqueue(&motion.Move{Target: t})

	in.frame.Logical.X = t.X
	in.frame.Logical.Y = t.Y
	in.frame.Logical.Z = t.Z
}

// rapid runs at twice the X maximum feedrate. The override lives only on
// the queued move: the command's F and the register are left as they were.
func (in *Interpreter) rapid(cmd *gcode.Command) {
	saved := cmd.Target.F
	cmd.Target.F = 2 * in.frame.Config.Axis(machine.AxisX).MaxFeedrate

	t := in.target(cmd)
	t.F = cmd.Target.F
	register := in.frame.Logical.F
	in.enqueue(t)

	cmd.Target.F = saved
	in.frame.Logical.F = register
}

func (in *Interpreter) linear(cmd *gcode.Command) {
	t := in.target(cmd)
	in.enqueue(t)
	in.frame.Logical.F = t.F
}

func (in *Interpreter) home(ctx context.Context, sel Selection) {
	if err := in.homer.Home(ctx, sel); err != nil {
		in.log.Error("homing aborted", "error", err)
		return
	}
	in.frame.Logical.F = in.frame.Config.Axis(machine.AxisX).SearchFeedrate
}

// moveThenHome queues a move to the commanded target, then homes the
// axes named on the same command
func (in *Interpreter) moveThenHome(ctx context.Context, cmd *gcode.Command) {
	in.linear(cmd)
	in.home(ctx, SelectionOf(cmd))
}

func (in *Interpreter) reportf(format string, args ...any) {
	if _, err := fmt.Fprintf(in.status, format, args...); err != nil {
		in.log.Error("status write failed", "error", err)
	}
}
