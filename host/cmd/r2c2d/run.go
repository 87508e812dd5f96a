package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"r2c2/core"
	"r2c2/firmware"
	"r2c2/gpio"
	"r2c2/host/serial"
	"r2c2/interp"
	"r2c2/kinematics"
	"r2c2/machine"
	"r2c2/motion"
	"r2c2/power"
	"r2c2/stepgen"
	"r2c2/thermal"
)

const (
	thermalPeriod  = 100 * time.Millisecond
	watchdogPeriod = time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve G-code from the configured transport",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func run(ctx context.Context, cfg *machine.MachineConfig) error {
	log := newLogger(cfg)
	log.Info("starting", "machine", cfg.Name, "version", Version)

	sched := core.NewScheduler(cfg.TimerFreq)
	steppers := stepgen.NewMachine(cfg, sched)
	kin, err := kinematics.NewCartesian(cfg)
	if err != nil {
		return fmt.Errorf("kinematics: %w", err)
	}

	drv, err := gpio.NewDriver(cfg.MockGPIO, log.With("component", "gpio"))
	if err != nil {
		return err
	}
	defer drv.Close()

	var queue *motion.Queue
	board, err := power.NewBoard(cfg, drv, log.With("component", "power"),
		power.WithBusy(func() bool { return !queue.Empty() }))
	if err != nil {
		return err
	}
	heaters, err := thermal.NewController(cfg.Heaters, drv, log.With("component", "thermal"),
		thermal.WithPowerSense(board.IsOn))
	if err != nil {
		return err
	}
	queue = motion.NewQueue(cfg.QueueSize, kin, steppers, sched,
		motion.WithBarrier(heaters.AtTarget),
		motion.WithLogger(log.With("component", "motion")))

	port, err := serial.OpenConfigured(serial.FromMachine(cfg.Serial))
	if err != nil {
		return err
	}
	defer port.Close()

	replies := firmware.NewReplyWriter(port)
	in := interp.New(cfg, queue,
		interp.WithThermal(heaters),
		interp.WithPower(board),
		interp.WithStatus(replies),
		interp.WithLogger(log.With("component", "interp")))
	mgr := firmware.NewManager(in, replies, log.With("component", "intake"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Once the scheduler stops nothing drains the queue; release a
	// dispatcher blocked on a full one
	stopMotion := context.AfterFunc(gctx, queue.DisableTimerInterrupt)
	defer stopMotion()

	g.Go(func() error {
		return sched.Run(gctx, time.Duration(cfg.Sim.TickUs)*time.Microsecond)
	})
	g.Go(func() error {
		return heaters.Run(gctx, thermalPeriod)
	})
	g.Go(func() error {
		return board.Run(gctx, watchdogPeriod)
	})
	g.Go(func() error {
		// The host hanging up ends the session
		defer cancel()
		return mgr.Run(gctx, port)
	})

	err = g.Wait()
	if err := board.Off(); err != nil {
		log.Warn("power off failed", "error", err)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("stopped", "halted", in.Halted())
	return err
}
