package interp

import (
	"context"
	"io"
	"sync"
	"time"

	"r2c2/machine"
	"r2c2/motion"
)

// fakeGateway records every request. With stuck set it never drains, so
// waits only return on Flush or context cancellation.
type fakeGateway struct {
	mu       sync.Mutex
	moves    []*motion.Move
	waits    int
	flushes  int
	masked   bool
	stuck    bool
	released chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{released: make(chan struct{})}
}

func (g *fakeGateway) Enqueue(m *motion.Move) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moves = append(g.moves, m)
}

func (g *fakeGateway) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.stuck
}

func (g *fakeGateway) WaitEmpty(ctx context.Context) error {
	g.mu.Lock()
	g.waits++
	stuck := g.stuck
	released := g.released
	g.mu.Unlock()

	if !stuck {
		return nil
	}
	select {
	case <-released:
		return motion.ErrFlushed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flushes++
	g.moves = nil
	select {
	case <-g.released:
	default:
		close(g.released)
	}
}

func (g *fakeGateway) DisableTimerInterrupt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.masked = true
}

func (g *fakeGateway) Moves() []*motion.Move {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*motion.Move(nil), g.moves...)
}

func (g *fakeGateway) Waits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waits
}

// trackingGateway also counts steps
type trackingGateway struct {
	*fakeGateway
	pos machine.Steps
}

func (g *trackingGateway) Position() machine.Steps {
	return g.pos
}

func (g *trackingGateway) SetPosition(a machine.Axis, steps int64) {
	g.pos[a] = steps
}

type fakeThermal struct {
	targets map[string]float64
	reports int
}

func newFakeThermal() *fakeThermal {
	return &fakeThermal{targets: make(map[string]float64)}
}

func (t *fakeThermal) SetTarget(heater string, temp float64) error {
	t.targets[heater] = temp
	return nil
}

func (t *fakeThermal) Report(w io.Writer) error {
	t.reports++
	_, err := io.WriteString(w, "ok T:0.0 B:0.0\r\n")
	return err
}

type fakePower struct {
	mu      sync.Mutex
	on      bool
	enabled bool
	resets  int
}

func (p *fakePower) On() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = true
	return nil
}

func (p *fakePower) Off() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = false
	p.enabled = false
	return nil
}

func (p *fakePower) EnableAxes() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
	return nil
}

func (p *fakePower) DisableAxes() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	return nil
}

func (p *fakePower) ResetIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

func (p *fakePower) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

// fakeSleep records dwell durations without waiting
type fakeSleep struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *fakeSleep) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func (s *fakeSleep) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// stoppingGateway runs stop right after the nth wait returns, the way an
// out-of-band M112 can land between two homing phases
type stoppingGateway struct {
	*fakeGateway
	n    int
	stop func()
}

func (g *stoppingGateway) WaitEmpty(ctx context.Context) error {
	err := g.fakeGateway.WaitEmpty(ctx)
	if g.Waits() == g.n && g.stop != nil {
		g.stop()
	}
	return err
}
