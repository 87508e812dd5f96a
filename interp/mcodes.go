package interp

import (
	"context"

	"r2c2/gcode"
	"r2c2/logger"
	"r2c2/machine"
)

func (in *Interpreter) dispatchM(ctx context.Context, cmd *gcode.Command) {
	switch cmd.M {
	// Extruder, fan and PID codes without an effect here
	case 101, 103, 106, 107, 108, 113, 130, 131, 132, 133, 134, 141, 142:
		in.log.Debug("inert M-code", "m", cmd.M)

	case 104:
		in.setTemperature(machine.HeaterExtruder, cmd.GetParameter('S', 0))

	case 105:
		if err := in.thermal.Report(in.status); err != nil {
			in.log.Error("temperature report failed", "error", err)
		}

	case 109:
		in.setTemperature(machine.HeaterExtruder, cmd.GetParameter('S', 0))
		// Moves queued after this wait for the heater
		in.gw.Enqueue(nil)

	case 110:
		in.frame.Modes.NextLine = int64(cmd.GetParameter('S', 0)) - 1

	case 111:
		if cmd.HasParameter('S') {
			in.log.SetLevel(debugLevel(int(cmd.GetParameter('S', 0))))
		}

	case 112:
		in.EmergencyStop()

	case 114:
		in.reportPosition(ctx)

	case 115:
		in.reportf("%s\r\n", FirmwareInfo)

	case 140:
		in.setTemperature(machine.HeaterBed, cmd.GetParameter('S', 0))

	case 190:
		if err := in.power.On(); err != nil {
			in.log.Error("power on failed", "error", err)
		}
		if err := in.power.EnableAxes(); err != nil {
			in.log.Error("enable axes failed", "error", err)
		}
		in.power.ResetIdle()

	case 191:
		if err := in.power.DisableAxes(); err != nil {
			in.log.Error("disable axes failed", "error", err)
		}
		if err := in.power.Off(); err != nil {
			in.log.Error("power off failed", "error", err)
		}

	default:
		in.reportf("E: Bad M-code %d\r\n", cmd.M)
		in.log.Warn("unsupported M-code", "m", cmd.M)
	}
}

func (in *Interpreter) setTemperature(heater string, temp float64) {
	if err := in.thermal.SetTarget(heater, temp); err != nil {
		in.log.Warn("set temperature failed", "heater", heater, "error", err)
	}
}

// reportPosition waits for the queue to drain and writes the physical
// position in units
func (in *Interpreter) reportPosition(ctx context.Context) {
	if err := in.gw.WaitEmpty(ctx); err != nil {
		in.log.Warn("position report aborted", "error", err)
		return
	}
	in.frame.SyncPhysical()

	var pos [machine.NumAxes]float64
	for _, a := range machine.Axes {
		pos[a] = float64(in.frame.Physical[a]) / in.frame.Config.Axis(a).StepsPerUnit
		if in.frame.Modes.Inches {
			pos[a] /= 25.4
		}
	}
	in.reportf("ok C: X:%g Y:%g Z:%g E:%g\r\n",
		pos[machine.AxisX], pos[machine.AxisY], pos[machine.AxisZ], pos[machine.AxisE])
}

// debugLevel maps the M111 S value onto a log level
func debugLevel(s int) logger.Level {
	switch {
	case s <= 0:
		return logger.DebugLevel
	case s == 1:
		return logger.InfoLevel
	case s == 2:
		return logger.WarnLevel
	}
	return logger.ErrorLevel
}
