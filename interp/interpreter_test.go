package interp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"r2c2/gcode"
	"r2c2/logger"
	"r2c2/machine"
	"r2c2/motion"
)

type harness struct {
	in      *Interpreter
	gw      *fakeGateway
	thermal *fakeThermal
	power   *fakePower
	sleep   *fakeSleep
	status  *bytes.Buffer
	log     logger.Logger
}

func newHarness(t *testing.T, gw motion.Gateway, base *fakeGateway) *harness {
	t.Helper()

	h := &harness{
		gw:      base,
		thermal: newFakeThermal(),
		power:   &fakePower{},
		sleep:   &fakeSleep{},
		status:  &bytes.Buffer{},
		log:     logger.NewSlogWriter(io.Discard, logger.InfoLevel, false, false),
	}
	h.in = New(machine.DefaultConfig(), gw,
		WithThermal(h.thermal),
		WithPower(h.power),
		WithStatus(h.status),
		WithSleep(h.sleep.Sleep),
		WithLogger(h.log),
	)
	return h
}

func newTestInterpreter(t *testing.T) *harness {
	gw := newFakeGateway()
	return newHarness(t, gw, gw)
}

func g(code int, seen gcode.Seen, target machine.Position) *gcode.Command {
	return &gcode.Command{G: code, Seen: gcode.SeenG | seen, Target: target}
}

func m(code int, seen gcode.Seen, s float64) *gcode.Command {
	return &gcode.Command{M: code, Seen: gcode.SeenM | seen, S: s}
}

func TestDispatchLinearMove(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()

	h.in.Dispatch(ctx, g(1, gcode.SeenX|gcode.SeenY|gcode.SeenF, machine.Position{X: 100, Y: 50, F: 200}))

	moves := h.gw.Moves()
	require.Len(t, moves, 1)
	assert.Equal(t, machine.Position{X: 100, Y: 50, F: 200}, moves[0].Target)
	assert.False(t, moves[0].Special)

	frame := h.in.Context()
	assert.Equal(t, machine.Position{X: 100, Y: 50, F: 200}, frame.Logical)
	assert.Equal(t, 1, h.power.resets)
}

func TestDispatchLinearMoveDefaults(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()
	h.in.Context().Logical = machine.Position{X: 10, Y: 20, Z: 5, F: 900}

	h.in.Dispatch(ctx, g(1, gcode.SeenZ|gcode.SeenE, machine.Position{Z: 7, E: 1.5}))

	moves := h.gw.Moves()
	require.Len(t, moves, 1)
	assert.Equal(t, machine.Position{X: 10, Y: 20, Z: 7, E: 1.5, F: 900}, moves[0].Target)
	assert.Equal(t, machine.Position{X: 10, Y: 20, Z: 7, F: 900}, h.in.Context().Logical, "E stays at its base")
}

func TestDispatchRelative(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()
	h.in.Context().Logical = machine.Position{X: 10, Y: 20, Z: 5, F: 900}

	h.in.Dispatch(ctx, g(91, 0, machine.Position{}))
	assert.True(t, h.in.Modes().Relative)

	cmd := g(1, gcode.SeenX|gcode.SeenE, machine.Position{X: 5, E: 2})
	cmd.Relative = h.in.Modes().Relative
	h.in.Dispatch(ctx, cmd)

	moves := h.gw.Moves()
	require.Len(t, moves, 1)
	assert.Equal(t, 15.0, moves[0].Target.X)
	assert.Equal(t, 20.0, moves[0].Target.Y)
	assert.Equal(t, 2.0, moves[0].Target.E)

	h.in.Dispatch(ctx, g(90, 0, machine.Position{}))
	assert.False(t, h.in.Modes().Relative)
}

func TestDispatchRapid(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()
	h.in.Context().Logical.F = 1234

	cmd := g(0, gcode.SeenX|gcode.SeenF, machine.Position{X: 10, F: 500})
	h.in.Dispatch(ctx, cmd)

	moves := h.gw.Moves()
	require.Len(t, moves, 1)
	assert.Equal(t, 6000.0, moves[0].Target.F, "twice the X max feedrate")
	assert.Equal(t, 10.0, moves[0].Target.X)

	// Both possible restore targets keep their pre-G0 value
	assert.Equal(t, 500.0, cmd.Target.F)
	assert.Equal(t, 1234.0, h.in.Context().Logical.F)
	assert.Equal(t, 10.0, h.in.Context().Logical.X)

	// A following G1 without F uses the untouched register
	h.in.Dispatch(ctx, g(1, gcode.SeenX, machine.Position{X: 20}))
	moves = h.gw.Moves()
	require.Len(t, moves, 2)
	assert.Equal(t, 1234.0, moves[1].Target.F)
}

func TestDispatchDwell(t *testing.T) {
	h := newTestInterpreter(t)

	cmd := &gcode.Command{G: 4, P: 250, Seen: gcode.SeenG | gcode.SeenP}
	h.in.Dispatch(context.Background(), cmd)

	assert.Equal(t, 1, h.gw.Waits())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, h.sleep.Slept())
}

func TestDispatchDwellWithoutP(t *testing.T) {
	h := newTestInterpreter(t)

	// A stale P field without its letter on the line is ignored
	cmd := &gcode.Command{G: 4, P: 500, Seen: gcode.SeenG}
	h.in.Dispatch(context.Background(), cmd)

	assert.Equal(t, []time.Duration{0}, h.sleep.Slept())
}

func TestDispatchUnits(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()

	h.in.Dispatch(ctx, g(20, 0, machine.Position{}))
	assert.True(t, h.in.Modes().Inches)
	h.in.Dispatch(ctx, g(21, 0, machine.Position{}))
	assert.False(t, h.in.Modes().Inches)
	assert.Empty(t, h.gw.Moves())
}

func TestDispatchSetPosition(t *testing.T) {
	tests := []struct {
		name     string
		seen     gcode.Seen
		logical  machine.Position
		physical machine.Steps
	}{
		{
			name:     "all",
			logical:  machine.Position{F: 50},
			physical: machine.Steps{},
		},
		{
			name:     "z only",
			seen:     gcode.SeenZ,
			logical:  machine.Position{X: 1, Y: 2, E: 4, F: 50},
			physical: machine.Steps{10, 20, 0, 40},
		},
		{
			name:     "x only",
			seen:     gcode.SeenX,
			logical:  machine.Position{Y: 2, Z: 3, E: 4, F: 50},
			physical: machine.Steps{0, 20, 30, 40},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestInterpreter(t)
			frame := h.in.Context()
			frame.Logical = machine.Position{X: 1, Y: 2, Z: 3, E: 4, F: 50}
			frame.Physical = machine.Steps{10, 20, 30, 40}

			h.in.Dispatch(context.Background(), g(92, tt.seen, machine.Position{}))

			assert.Equal(t, 1, h.gw.Waits())
			assert.Equal(t, tt.logical, frame.Logical)
			assert.Equal(t, tt.physical, frame.Physical)
			assert.Empty(t, h.gw.Moves(), "relabel only")
		})
	}
}

func TestDispatchSetPositionX500(t *testing.T) {
	h := newTestInterpreter(t)
	frame := h.in.Context()
	frame.Logical.X = 500
	frame.Logical.Y = 12

	h.in.Dispatch(context.Background(), g(92, gcode.SeenX, machine.Position{}))

	assert.Equal(t, 0.0, frame.Logical.X)
	assert.Equal(t, 12.0, frame.Logical.Y)
}

func TestDispatchHomeAll(t *testing.T) {
	h := newTestInterpreter(t)
	frame := h.in.Context()
	frame.Logical = machine.Position{X: 1, Y: 2, Z: 3, E: 4, F: 777}
	frame.Physical = machine.Steps{10, 20, 30, 40}

	h.in.Dispatch(context.Background(), g(28, 0, machine.Position{}))

	moves := h.gw.Moves()
	require.Len(t, moves, 12)
	for i, a := range []machine.Axis{machine.AxisX, machine.AxisY, machine.AxisZ} {
		for j := 0; j < 4; j++ {
			assert.Equal(t, a, moves[i*4+j].Axis)
		}
		assert.Equal(t, int64(-math.MaxInt32), moves[i*4].Steps)
	}
	assert.Equal(t, 9, h.gw.Waits())

	assert.Equal(t, machine.Position{F: 50}, frame.Logical, "feedrate is the X search feedrate")
	assert.Equal(t, machine.Steps{}, frame.Physical)
}

func TestDispatchHomeSelected(t *testing.T) {
	h := newTestInterpreter(t)

	h.in.Dispatch(context.Background(), g(28, gcode.SeenY, machine.Position{}))

	moves := h.gw.Moves()
	require.Len(t, moves, 4)
	for _, mv := range moves {
		assert.Equal(t, machine.AxisY, mv.Axis)
	}
}

func TestDispatchMoveThenHome(t *testing.T) {
	h := newTestInterpreter(t)

	h.in.Dispatch(context.Background(), g(30, gcode.SeenZ, machine.Position{Z: 5}))

	moves := h.gw.Moves()
	require.Len(t, moves, 5)
	assert.False(t, moves[0].Special)
	assert.Equal(t, 5.0, moves[0].Target.Z)
	for _, mv := range moves[1:] {
		assert.True(t, mv.Special)
		assert.Equal(t, machine.AxisZ, mv.Axis)
	}
	assert.Equal(t, 0.0, h.in.Context().Logical.Z)
}

// newMockLogged builds an interpreter whose log calls are checked
func newMockLogged(t *testing.T) (*Interpreter, *fakeGateway, *bytes.Buffer, *logger.MockLogger) {
	t.Helper()

	log := logger.NewMockLogger()
	log.On("With", "component", "homing").Return(log)

	gw := newFakeGateway()
	var status bytes.Buffer
	in := New(machine.DefaultConfig(), gw, WithStatus(&status), WithLogger(log))
	return in, gw, &status, log
}

func TestDispatchUnsupportedG(t *testing.T) {
	for _, code := range []int{2, 3, 5, 29, 99, 161} {
		in, gw, status, log := newMockLogged(t)
		log.On("Warn", "unsupported G-code", []any{"g", code}).Once()

		frame := in.Context()
		frame.Logical = machine.Position{X: 1, Y: 2, Z: 3, F: 50}
		frame.Physical = machine.Steps{1, 2, 3, 4}
		before := *frame

		in.Dispatch(context.Background(), g(code, gcode.SeenX, machine.Position{X: 9}))

		assert.Equal(t, fmt.Sprintf("E: Bad G-code %d\r\n", code), status.String())
		assert.Empty(t, gw.Moves())
		assert.Equal(t, 0, gw.Waits())
		assert.Equal(t, before, *frame)
		log.AssertExpectations(t)
	}
}

func TestDispatchUnsupportedM(t *testing.T) {
	in, gw, status, log := newMockLogged(t)
	log.On("Warn", "unsupported M-code", []any{"m", 999}).Once()

	in.Dispatch(context.Background(), m(999, 0, 0))

	assert.Equal(t, "E: Bad M-code 999\r\n", status.String())
	assert.Empty(t, gw.Moves())
	log.AssertExpectations(t)
}

func TestDispatchHaltedLogsDrop(t *testing.T) {
	in, gw, _, log := newMockLogged(t)
	log.On("Error", "emergency stop", []any(nil)).Once()
	log.On("Warn", "halted, command dropped", []any{"g", 1, "m", 0}).Once()

	in.EmergencyStop()
	in.Dispatch(context.Background(), g(1, gcode.SeenX, machine.Position{X: 10}))

	assert.Empty(t, gw.Moves())
	log.AssertExpectations(t)
}

func TestDispatchNoCode(t *testing.T) {
	h := newTestInterpreter(t)

	h.in.Dispatch(context.Background(), &gcode.Command{Seen: gcode.SeenX, Target: machine.Position{X: 3}})

	assert.Empty(t, h.status.String())
	assert.Empty(t, h.gw.Moves())
}

func TestDispatchInertM(t *testing.T) {
	for _, code := range []int{101, 103, 106, 107, 108, 113, 130, 131, 132, 133, 134, 141, 142} {
		h := newTestInterpreter(t)
		h.in.Dispatch(context.Background(), m(code, gcode.SeenS, 1))
		assert.Empty(t, h.status.String(), "M%d", code)
		assert.Empty(t, h.gw.Moves(), "M%d", code)
	}
}

func TestDispatchTemperature(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()

	h.in.Dispatch(ctx, m(104, gcode.SeenS, 200))
	h.in.Dispatch(ctx, m(140, gcode.SeenS, 60))
	assert.Equal(t, 200.0, h.thermal.targets[machine.HeaterExtruder])
	assert.Equal(t, 60.0, h.thermal.targets[machine.HeaterBed])
	assert.Empty(t, h.gw.Moves())

	h.in.Dispatch(ctx, m(109, gcode.SeenS, 210))
	assert.Equal(t, 210.0, h.thermal.targets[machine.HeaterExtruder])
	moves := h.gw.Moves()
	require.Len(t, moves, 1)
	assert.Nil(t, moves[0], "barrier")

	h.in.Dispatch(ctx, m(105, 0, 0))
	assert.Equal(t, 1, h.thermal.reports)
	assert.Equal(t, "ok T:0.0 B:0.0\r\n", h.status.String())
}

func TestDispatchLineNumber(t *testing.T) {
	h := newTestInterpreter(t)

	h.in.Dispatch(context.Background(), m(110, gcode.SeenS, 100))
	assert.Equal(t, int64(99), h.in.Modes().NextLine)
}

func TestDispatchDebugLevel(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()

	h.in.Dispatch(ctx, m(111, gcode.SeenS, 0))
	assert.Equal(t, logger.DebugLevel, h.log.Level())

	h.in.Dispatch(ctx, m(111, gcode.SeenS, 2))
	assert.Equal(t, logger.WarnLevel, h.log.Level())

	h.in.Dispatch(ctx, m(111, 0, 0))
	assert.Equal(t, logger.WarnLevel, h.log.Level(), "no S, no change")
}

func TestDispatchReportPosition(t *testing.T) {
	h := newTestInterpreter(t)
	h.in.Context().Physical[machine.AxisX] = 2000

	h.in.Dispatch(context.Background(), m(114, 0, 0))

	assert.Equal(t, 1, h.gw.Waits())
	assert.Equal(t, "ok C: X:25 Y:0 Z:0 E:0\r\n", h.status.String())
}

func TestDispatchReportPositionTracked(t *testing.T) {
	base := newFakeGateway()
	gw := &trackingGateway{fakeGateway: base, pos: machine.Steps{800, 1600, 400, 96}}
	h := newHarness(t, gw, base)

	h.in.Dispatch(context.Background(), m(114, 0, 0))

	assert.Equal(t, "ok C: X:10 Y:20 Z:1 E:1\r\n", h.status.String())
	assert.Equal(t, machine.Steps{800, 1600, 400, 96}, h.in.Context().Physical)
}

func TestDispatchReportPositionInches(t *testing.T) {
	h := newTestInterpreter(t)
	h.in.Context().Physical[machine.AxisX] = 2032 // 25.4 mm

	h.in.Dispatch(context.Background(), g(20, 0, machine.Position{}))
	h.in.Dispatch(context.Background(), m(114, 0, 0))

	assert.Equal(t, "ok C: X:1 Y:0 Z:0 E:0\r\n", h.status.String())
}

func TestDispatchFirmwareInfo(t *testing.T) {
	h := newTestInterpreter(t)

	h.in.Dispatch(context.Background(), m(115, 0, 0))
	assert.Equal(t, FirmwareInfo+"\r\n", h.status.String())
}

func TestDispatchPower(t *testing.T) {
	h := newTestInterpreter(t)
	ctx := context.Background()

	h.in.Dispatch(ctx, m(190, 0, 0))
	assert.True(t, h.power.on)
	assert.True(t, h.power.enabled)
	assert.Equal(t, 1, h.power.resets)

	h.in.Dispatch(ctx, m(191, 0, 0))
	assert.False(t, h.power.on)
	assert.False(t, h.power.enabled)
}

func TestEmergencyStopDuringDwell(t *testing.T) {
	h := newTestInterpreter(t)
	h.gw.stuck = true
	require.NoError(t, h.power.On())

	done := make(chan struct{})
	go func() {
		defer close(done)
		cmd := &gcode.Command{G: 4, P: 1000, Seen: gcode.SeenG | gcode.SeenP}
		h.in.Dispatch(context.Background(), cmd)
	}()

	require.Eventually(t, func() bool { return h.gw.Waits() == 1 }, time.Second, time.Millisecond)

	h.in.EmergencyStop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dwell still blocked after emergency stop")
	}

	assert.True(t, h.gw.masked)
	assert.Equal(t, 1, h.gw.flushes)
	assert.False(t, h.power.IsOn())
	assert.True(t, h.in.Halted())
	assert.Empty(t, h.sleep.Slept(), "dwell never started")

	// Halted interpreters drop everything
	h.in.Dispatch(context.Background(), g(1, gcode.SeenX, machine.Position{X: 10}))
	assert.Empty(t, h.gw.Moves())
}

func TestEmergencyStopCommand(t *testing.T) {
	h := newTestInterpreter(t)

	h.in.Dispatch(context.Background(), m(112, 0, 0))

	assert.True(t, h.in.Halted())
	assert.True(t, h.gw.masked)
	assert.Equal(t, 1, h.gw.flushes)
}
