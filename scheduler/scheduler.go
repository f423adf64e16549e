package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"braces.dev/errtrace"
	"go.uber.org/zap"

	"github.com/Meander-Cloud/go-reactor/dispatch"
	"github.com/Meander-Cloud/go-reactor/timerq"
)

var (
	ErrUnknownBackend    = errors.New("scheduler: unknown backend")
	ErrNoDeadlineSupport = errors.New("scheduler: engine does not support deadline waits")
	ErrNilDispatchEngine = errors.New("scheduler: nil dispatch engine")
)

type Options struct {
	// specify length for the background event channel, if zero default will be used
	EventChannelLength uint16

	// cap on any single wait for the next deadline, if zero default will be used
	MaxWait time.Duration

	// scheduling backend
	Backend Backend

	// logging prefix
	LogPrefix string

	// enable verbose logging
	LogDebug bool

	// base logger, if nil logging is disabled
	Log *zap.Logger
}

// Service is the timer scheduling surface consumed by timer objects.
// The typed entry points are ScheduleTimer, CancelTimer and MoveTimer.
type Service interface {
	AddTimerQueue(q timerq.Base)

	// blocks while the queue's waits are being collected
	RemoveTimerQueue(q timerq.Base)

	// run add under the service lock, add reports whether op became the queue's earliest wait
	Schedule(q timerq.Base, op *timerq.WaitOp, add func() bool)

	// run cancel under the service lock, then post the cancelled ops outside it
	Cancel(q timerq.Base, cancel func(out *timerq.OpQueue) int) int

	// run move under the service lock
	Move(q timerq.Base, move func())

	InitTask()
	NotifyFork(ev ForkEvent)
	Shutdown()
	State() State
}

// New builds the Service variant selected by options.Backend.
func New(engine dispatch.Engine, options *Options) (Service, error) {
	if engine == nil {
		return nil, errtrace.Wrap(ErrNilDispatchEngine)
	}
	if options == nil {
		options = &Options{}
	}

	switch options.Backend {
	case BackendThread:
		return NewThreadScheduler(engine, options), nil
	case BackendIntegrated:
		deadlineEngine, ok := engine.(dispatch.DeadlineEngine)
		if !ok {
			return nil, errtrace.Wrap(fmt.Errorf("%w: %T", ErrNoDeadlineSupport, engine))
		}
		return NewIntegratedScheduler(deadlineEngine, options), nil
	default:
		return nil, errtrace.Wrap(fmt.Errorf("%w: %d", ErrUnknownBackend, options.Backend))
	}
}

// ScheduleTimer queues op on timer in q to expire at t.
func ScheduleTimer[T any](s Service, q *timerq.Queue[T], t T, timer *timerq.PerTimerData[T], op *timerq.WaitOp) {
	s.Schedule(q, op, func() bool {
		return q.AddTimer(t, timer, op)
	})
}

// CancelTimer cancels up to max of timer's waits, oldest first, and returns how many were cancelled.
// Cancelled waits complete asynchronously with timerq.ErrOperationAborted.
func CancelTimer[T any](s Service, q *timerq.Queue[T], timer *timerq.PerTimerData[T], max int) int {
	return s.Cancel(q, func(out *timerq.OpQueue) int {
		return q.CancelTimer(timer, out, max)
	})
}

// MoveTimer re-homes the waits of from onto to.
func MoveTimer[T any](s Service, q *timerq.Queue[T], to, from *timerq.PerTimerData[T]) {
	s.Move(q, func() {
		q.MoveTimer(to, from)
	})
}

// core holds what both backends share: the queue set, its lock and the posting paths.
type core struct {
	options *Options
	log     *zap.Logger
	engine  dispatch.Engine
	maxWait time.Duration

	mu       sync.Mutex
	queues   *timerq.Set
	shutdown bool
	fsm      *lifecycle
}

func newCore(engine dispatch.Engine, options *Options, name string) *core {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named(name).With(zap.String("prefix", options.LogPrefix))

	maxWait := options.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	return &core{
		options: options,
		log:     log,
		engine:  engine,
		maxWait: maxWait,
		queues:  timerq.NewSet(),
		fsm:     newLifecycle(log, options.LogDebug),
	}
}

func (c *core) AddTimerQueue(q timerq.Base) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queues.Add(q)
	if c.options.LogDebug {
		c.log.Debug("added timer queue", zap.Int("queues", c.queues.Len()))
	}
}

func (c *core) RemoveTimerQueue(q timerq.Base) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queues.Remove(q)
	if c.options.LogDebug {
		c.log.Debug("removed timer queue", zap.Int("queues", c.queues.Len()))
	}
}

func (c *core) Cancel(q timerq.Base, cancel func(out *timerq.OpQueue) int) int {
	var ops timerq.OpQueue

	c.mu.Lock()
	n := cancel(&ops)
	if c.options.LogDebug {
		c.log.Debug("cancelled timer", zap.Int("cancelled", n), zap.Int("pending", q.Len()))
	}
	c.mu.Unlock()

	// posted outside the lock, a completion may call straight back into the service
	c.postDeferred(&ops)
	return n
}

func (c *core) Move(_ timerq.Base, move func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	move()
}

// InitTask has nothing to do, the scheduler never joins a shared task loop.
func (c *core) InitTask() {
	if c.options.LogDebug {
		c.log.Debug("init task ignored")
	}
}

func (c *core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.state()
}

// abortScheduled completes an op scheduled after shutdown right away with an aborted result.
func (c *core) abortScheduled(op *timerq.WaitOp) {
	c.log.Warn("timer scheduled after shutdown, aborting")
	op.Abort()
	c.engine.PostImmediateCompletion(op)
}

func (c *core) postDeferred(ops *timerq.OpQueue) {
	for op := ops.Pop(); op != nil; op = ops.Pop() {
		c.engine.PostDeferredCompletion(op)
	}
}

// abandon drops ops without running their completions, balancing the work counted when they were scheduled.
func (c *core) abandon(ops *timerq.OpQueue) {
	n := ops.Len()
	for op := ops.Pop(); op != nil; op = ops.Pop() {
		op.Destroy()
		c.engine.WorkFinished()
	}

	if n > 0 {
		c.log.Info("released pending timers", zap.Int("released", n))
	}
}
