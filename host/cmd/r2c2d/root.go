package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"r2c2/logger"
	"r2c2/machine"
)

var (
	// Version is set via -ldflags
	Version = "dev"

	settings = viper.New()

	rootCmd = &cobra.Command{
		Use:   "r2c2d",
		Short: "G-code firmware for R2C2 style printers",
		Long: `r2c2d reads G-code from a serial port or stdin, drives a simulated
stepper engine, heaters and power board, and answers the host with
"ok", "rs" and report lines.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "machine config file (YAML or JSON)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("device", "", "serial device, empty for stdin/stdout")
	flags.Int("baud", 0, "serial baud rate")
	flags.Bool("mock-gpio", false, "use the in-memory GPIO driver")

	for _, name := range []string{"config", "log-level", "device", "baud", "mock-gpio"} {
		if err := settings.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	settings.SetEnvPrefix("R2C2")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the machine config and applies flag and R2C2_*
// environment overrides
func loadConfig() (*machine.MachineConfig, error) {
	cfg := machine.DefaultConfig()
	if path := settings.GetString("config"); path != "" {
		var err error
		if cfg, err = machine.Load(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if settings.IsSet("log-level") && settings.GetString("log-level") != "" {
		cfg.LogLevel = settings.GetString("log-level")
	}
	if settings.IsSet("device") && settings.GetString("device") != "" {
		cfg.Serial.Device = settings.GetString("device")
	}
	if baud := settings.GetInt("baud"); baud > 0 {
		cfg.Serial.Baud = baud
	}
	if settings.IsSet("mock-gpio") {
		cfg.MockGPIO = settings.GetBool("mock-gpio")
	}
	return cfg, nil
}

func newLogger(cfg *machine.MachineConfig) logger.Logger {
	log := logger.NewSlog(logger.ParseLevel(cfg.LogLevel), false)
	logger.SetLogger(log)
	return log
}
