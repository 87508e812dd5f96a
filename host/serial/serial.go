// Package serial is the host transport: a native serial port or the
// process's standard streams.
package serial

import (
	"io"
	"os"

	"r2c2/machine"
)

// Port is a bidirectional byte stream to the host software
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate, ignored by USB CDC devices
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// FromMachine converts the serial section of the machine config
func FromMachine(cfg machine.SerialConfig) *Config {
	return &Config{
		Device:      cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeoutMs,
	}
}

// OpenConfigured opens the configured device, or the standard streams
// when no device is set
func OpenConfigured(cfg *Config) (Port, error) {
	if cfg.Device == "" {
		return NewStdio(os.Stdin, os.Stdout), nil
	}
	return Open(cfg)
}

// StdioPort talks to the host over a reader and a writer, usually the
// process's stdin and stdout
type StdioPort struct {
	r io.Reader
	w io.Writer
}

// NewStdio creates a port over r and w
func NewStdio(r io.Reader, w io.Writer) *StdioPort {
	return &StdioPort{r: r, w: w}
}

func (p *StdioPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *StdioPort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Close closes the reader when it can be closed. The writer is left
// open so late log output still reaches it.
func (p *StdioPort) Close() error {
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *StdioPort) Flush() error {
	if s, ok := p.w.(interface{ Sync() error }); ok {
		// Terminals and pipes do not support fsync
		_ = s.Sync()
	}
	return nil
}
