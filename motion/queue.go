package motion

import (
	"context"
	"errors"
	"sync"

	"r2c2/core"
	"r2c2/kinematics"
	"r2c2/logger"
	"r2c2/machine"
)

// ErrFlushed is returned by WaitEmpty when the queue was flushed while
// the caller was waiting, or once the timer interrupt has been masked
var ErrFlushed = errors.New("motion queue flushed")

// Barrier polling interval in microseconds
const barrierPollUS = 10000

// Executor runs one step delta at a time. done must be called from the
// timer interrupt, never from inside Execute.
type Executor interface {
	// Execute starts delta at the given per-axis rates. It returns false,
	// without calling done, when there is nothing to move.
	Execute(delta machine.Steps, rates [machine.NumAxes]float64, done func()) bool
	Stop()
	Position() machine.Steps
	SetPosition(a machine.Axis, steps int64)
}

// Option configures a Queue
type Option func(*Queue)

// WithBarrier holds nil barrier entries until ready reports true
func WithBarrier(ready func() bool) Option {
	return func(q *Queue) {
		q.ready = ready
	}
}

// WithLogger sets the queue logger
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		q.log = l
	}
}

// Queue is a bounded ring of moves executed one after another from the
// scheduler. It implements Gateway, Tracker and Interrupter.
type Queue struct {
	mu    sync.Mutex
	space *sync.Cond

	moves []*Move
	head  int
	count int

	executing bool
	seq       uint64 // identifies the entry in flight
	flushes   uint64

	// closed while nothing is queued or running
	idle       chan struct{}
	idleClosed bool

	// closed by DisableTimerInterrupt; moves are refused from then on
	halted  chan struct{}
	stopped bool

	kin   kinematics.Kinematics
	exec  Executor
	sched *core.Scheduler

	ready        func() bool
	barrierTimer core.Timer

	log logger.Logger
}

var (
	_ Gateway     = (*Queue)(nil)
	_ Tracker     = (*Queue)(nil)
	_ Interrupter = (*Queue)(nil)
)

// NewQueue creates a queue holding up to size moves
func NewQueue(size int, kin kinematics.Kinematics, exec Executor, sched *core.Scheduler, opts ...Option) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		moves:      make([]*Move, size),
		idle:       make(chan struct{}),
		idleClosed: true,
		halted:     make(chan struct{}),
		kin:        kin,
		exec:       exec,
		sched:      sched,
		log:        logger.GetLogger(),
	}
	close(q.idle)
	q.space = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a move, blocking while the queue is full. Once the
// timer interrupt is masked the move is dropped.
func (q *Queue) Enqueue(m *Move) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.moves) && !q.stopped {
		q.space.Wait()
	}
	if q.stopped {
		q.log.Warn("motion halted, move dropped")
		return
	}

	q.moves[(q.head+q.count)%len(q.moves)] = m
	q.count++
	if q.idleClosed {
		q.idle = make(chan struct{})
		q.idleClosed = false
	}

	if m == nil {
		q.log.Debug("barrier queued", "depth", q.count)
	} else {
		q.log.Debug("move queued", "special", m.Special, "depth", q.count)
	}

	if !q.executing {
		q.startNextLocked()
	}
}

// Empty reports whether nothing is queued or running
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count == 0 && !q.executing
}

// Len returns the number of queued entries, excluding the one in flight
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// WaitEmpty blocks until the queue drains. It returns ErrFlushed when
// the drain was caused by Flush or motion is halted, or the context error.
func (q *Queue) WaitEmpty(ctx context.Context) error {
	q.mu.Lock()
	ch := q.idle
	gen := q.flushes
	q.mu.Unlock()

	select {
	case <-ch:
	case <-q.halted:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.flushes != gen || q.stopped {
		return ErrFlushed
	}
	return nil
}

// Flush stops the executor and drops every pending move. Blocked
// producers and waiters are released.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.exec.Stop()
	q.sched.Cancel(&q.barrierTimer)

	dropped := q.count
	for i := range q.moves {
		q.moves[i] = nil
	}
	q.head = 0
	q.count = 0
	q.executing = false
	q.seq++
	q.flushes++

	q.markIdleLocked()
	q.space.Broadcast()

	q.log.Info("motion queue flushed", "dropped", dropped)
}

// Position returns the executor step counters
func (q *Queue) Position() machine.Steps {
	return q.exec.Position()
}

// SetPosition relabels one axis of the executor
func (q *Queue) SetPosition(a machine.Axis, steps int64) {
	q.exec.SetPosition(a, steps)
}

// DisableTimerInterrupt masks the scheduler driving the executor. The
// queue stops accepting moves and releases blocked producers and waiters.
// There is no way back short of a restart.
func (q *Queue) DisableTimerInterrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sched.DisableTimerInterrupt()
	if !q.stopped {
		q.stopped = true
		close(q.halted)
		q.space.Broadcast()
	}
}

// Halted reports whether the timer interrupt has been masked
func (q *Queue) Halted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// startNextLocked pops entries until one starts running or the queue
// runs dry. Caller holds q.mu.
func (q *Queue) startNextLocked() {
	for q.count > 0 {
		m := q.moves[q.head]
		q.moves[q.head] = nil
		q.head = (q.head + 1) % len(q.moves)
		q.count--
		q.space.Signal()

		q.seq++
		seq := q.seq

		if m == nil {
			if q.ready == nil || q.ready() {
				continue
			}
			q.executing = true
			q.barrierTimer.Handler = func(t *core.Timer) uint8 {
				return q.pollBarrier(t, seq)
			}
			q.barrierTimer.WakeTime = q.sched.Now() + q.sched.TimerFromUS(barrierPollUS)
			q.sched.Schedule(&q.barrierTimer)
			return
		}

		delta, rates := q.plan(m)
		if q.exec.Execute(delta, rates, func() { q.entryDone(seq) }) {
			q.executing = true
			return
		}
	}

	q.executing = false
	q.markIdleLocked()
}

func (q *Queue) plan(m *Move) (machine.Steps, [machine.NumAxes]float64) {
	var delta machine.Steps
	if m.Special {
		delta[m.Axis] = m.Steps
	} else {
		delta = q.kin.CalcSteps(m.Target, q.exec.Position())
	}
	return delta, q.kin.StepRates(delta, m.Target.F)
}

// entryDone advances the queue once the entry identified by seq is over
func (q *Queue) entryDone(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq != q.seq || !q.executing {
		return
	}
	q.executing = false
	q.startNextLocked()
}

func (q *Queue) pollBarrier(t *core.Timer, seq uint64) uint8 {
	q.mu.Lock()
	stale := seq != q.seq
	q.mu.Unlock()
	if stale {
		return core.SF_DONE
	}

	if q.ready() {
		q.entryDone(seq)
		return core.SF_DONE
	}
	t.WakeTime += q.sched.TimerFromUS(barrierPollUS)
	return core.SF_RESCHEDULE
}

func (q *Queue) markIdleLocked() {
	if !q.idleClosed {
		close(q.idle)
		q.idleClosed = true
	}
}
