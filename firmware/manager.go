// Package firmware is the intake side of the firmware: it frames bytes
// from the host into lines, parses them and feeds the interpreter, and
// acknowledges every line.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"r2c2/gcode"
	"r2c2/logger"
)

const (
	// Lines longer than this are dropped
	maxLineLength = 256

	// Parsed lines buffered between the reader and the dispatcher
	lineBacklog = 16
)

// Interpreter executes parsed commands
type Interpreter interface {
	Dispatch(ctx context.Context, cmd *gcode.Command)
	EmergencyStop()
	Modes() *gcode.Modes
}

// Manager moves lines from the host to the interpreter. Reading and
// dispatching run on separate goroutines so an emergency stop is seen
// even while a command blocks.
type Manager struct {
	interp  Interpreter
	parser  *gcode.Parser
	replies *ReplyWriter
	log     logger.Logger

	inputBuffer []byte
	overflow    bool
	lines       chan intakeLine
}

// intakeLine is a framed line on its way to the dispatcher. Lines
// already executed out of band only advance the line numbering.
type intakeLine struct {
	text    string
	stopped bool
}

// NewManager creates a manager. replies should also be the status
// writer of the interpreter.
func NewManager(in Interpreter, replies *ReplyWriter, log logger.Logger) *Manager {
	return &Manager{
		interp:      in,
		parser:      gcode.NewParser(),
		replies:     replies,
		log:         log,
		inputBuffer: make([]byte, 0, maxLineLength),
		lines:       make(chan intakeLine, lineBacklog),
	}
}

// Run serves the host until r reaches EOF or ctx is done. A Manager can
// only be run once.
func (m *Manager) Run(ctx context.Context, r io.Reader) error {
	if err := m.replies.Send("start\r\n"); err != nil {
		m.log.Warn("failed to send banner", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.dispatchLoop(gctx)
	})
	g.Go(func() error {
		defer close(m.lines)
		return m.readLoop(gctx, r)
	})

	// Unblock a reader stuck in Read
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(gctx, func() {
			c.Close()
		})
		defer stop()
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Manager) readLoop(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if perr := m.ProcessByte(ctx, b); perr != nil {
				return perr
			}
		}

		if errors.Is(err, io.EOF) {
			// Unterminated last line
			return m.ProcessByte(ctx, '\n')
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// ProcessByte frames one byte of input. Complete lines carrying M112 are
// executed here, everything else is handed to the dispatcher.
func (m *Manager) ProcessByte(ctx context.Context, b byte) error {
	if b != '\n' && b != '\r' {
		if len(m.inputBuffer) == maxLineLength {
			if !m.overflow {
				m.log.Warn("line too long, dropped")
			}
			m.overflow = true
			return nil
		}
		m.inputBuffer = append(m.inputBuffer, b)
		return nil
	}

	line := strings.TrimSpace(string(m.inputBuffer))
	m.inputBuffer = m.inputBuffer[:0]
	if m.overflow {
		m.overflow = false
		return nil
	}
	if line == "" {
		return nil
	}

	next := intakeLine{text: line}
	if gcode.IsEmergencyStop(line) {
		m.log.Warn("emergency stop received")
		m.interp.EmergencyStop()
		if err := m.replies.Send("ok\r\n"); err != nil {
			return err
		}
		next.stopped = true
	}

	select {
	case m.lines <- next:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case line, ok := <-m.lines:
			if !ok {
				return nil
			}
			if line.stopped {
				m.skip(line.text)
				continue
			}
			if err := m.execute(ctx, line.text); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// execute parses and dispatches one line, then acknowledges it
func (m *Manager) execute(ctx context.Context, line string) error {
	modes := m.interp.Modes()
	cmd, err := m.parser.ParseLine(line, modes)

	switch {
	case errors.Is(err, gcode.ErrChecksum), errors.Is(err, gcode.ErrLineNumber):
		m.log.Warn("requesting resend", "line", line, "error", err)
		return m.send(fmt.Sprintf("rs %d\r\n", modes.NextLine))

	case err != nil:
		m.log.Warn("unparsable line", "line", line, "error", err)
		return m.send(fmt.Sprintf("E: %v\r\nok\r\n", err))

	case cmd == nil || cmd.Seen&(gcode.SeenG|gcode.SeenM) == 0:
		// Blank, comment or line number only
		return m.send("ok\r\n")
	}

	m.log.Debug("dispatch", "line", line)
	m.replies.begin()
	m.interp.Dispatch(ctx, cmd)
	if err := m.replies.finish(); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// skip accounts for a line the reader already executed so that the
// next numbered line is in sequence
func (m *Manager) skip(line string) {
	if _, err := m.parser.ParseLine(line, m.interp.Modes()); err != nil {
		m.log.Debug("out of band line not numbered in sequence", "line", line, "error", err)
	}
}

func (m *Manager) send(line string) error {
	if err := m.replies.Send(line); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
