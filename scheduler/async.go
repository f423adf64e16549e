package scheduler

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Meander-Cloud/go-reactor/timerq"
)

// TimerService registers one clock domain's queue with a Service and hands out timers on it.
type TimerService[T any] struct {
	svc   Service
	queue *timerq.Queue[T]
	log   *zap.Logger
}

func NewTimerService[T any](svc Service, traits timerq.TimeTraits[T], log *zap.Logger) *TimerService[T] {
	if log == nil {
		log = zap.NewNop()
	}

	ts := &TimerService[T]{
		svc:   svc,
		queue: timerq.NewQueue[T](traits),
		log:   log.Named("timer_service"),
	}
	svc.AddTimerQueue(ts.queue)
	return ts
}

// Close unregisters the queue. Waits still pending on it are never delivered, cancel them first.
func (ts *TimerService[T]) Close() {
	ts.svc.RemoveTimerQueue(ts.queue)
}

func (ts *TimerService[T]) Queue() *timerq.Queue[T] {
	return ts.queue
}

func (ts *TimerService[T]) Traits() timerq.TimeTraits[T] {
	return ts.queue.Traits()
}

func (ts *TimerService[T]) NewTimer() *Timer[T] {
	return &Timer[T]{
		ts:     ts,
		expiry: ts.queue.Traits().Now(),
	}
}

// AfterFunc runs selectFunctor once d elapsed, or releaseFunctor if the wait is released or cancelled instead.
func (ts *TimerService[T]) AfterFunc(d time.Duration, selectFunctor func(), releaseFunctor func()) *Timer[T] {
	t := ts.NewTimer()
	t.ExpiresAfter(d)
	t.AsyncWait(
		func(err error) {
			if errors.Is(err, timerq.ErrOperationAborted) {
				if releaseFunctor != nil {
					releaseFunctor()
				}
				return
			}
			if selectFunctor != nil {
				selectFunctor()
			}
		},
		releaseFunctor,
	)
	return t
}

// Timer is a deadline timer. Waits on the same timer complete in the order they were started.
// Not safe for concurrent use.
type Timer[T any] struct {
	ts     *TimerService[T]
	expiry T
	data   timerq.PerTimerData[T]
}

func (t *Timer[T]) Expiry() T {
	return t.expiry
}

// ExpiresAt sets the expiry, cancelling pending waits. Returns the number cancelled.
func (t *Timer[T]) ExpiresAt(at T) int {
	n := t.Cancel()
	t.expiry = at
	return n
}

// ExpiresAfter sets the expiry relative to now, cancelling pending waits. Returns the number cancelled.
func (t *Timer[T]) ExpiresAfter(d time.Duration) int {
	traits := t.ts.queue.Traits()
	return t.ExpiresAt(traits.Add(traits.Now(), d))
}

// AsyncWait starts a wait on the current expiry. completeFunctor receives nil on expiry
// or timerq.ErrOperationAborted on cancellation; releaseFunctor runs instead if the wait is dropped at shutdown.
func (t *Timer[T]) AsyncWait(completeFunctor func(error), releaseFunctor func()) *timerq.WaitOp {
	op := timerq.NewWaitOp(completeFunctor, releaseFunctor).WithLogger(t.ts.log)
	ScheduleTimer(t.ts.svc, t.ts.queue, t.expiry, &t.data, op)
	return op
}

// Cancel cancels every pending wait.
func (t *Timer[T]) Cancel() int {
	return CancelTimer(t.ts.svc, t.ts.queue, &t.data, timerq.CancelAll)
}

// CancelOne cancels the oldest pending wait.
func (t *Timer[T]) CancelOne() int {
	return CancelTimer(t.ts.svc, t.ts.queue, &t.data, 1)
}

// MoveFrom takes over other's expiry and pending waits, which keep running unaffected.
// Both timers must come from the same TimerService.
func (t *Timer[T]) MoveFrom(other *Timer[T]) {
	if t.ts != other.ts {
		panic("scheduler: timers belong to different services")
	}

	t.expiry = other.expiry
	MoveTimer(t.ts.svc, t.ts.queue, &t.data, &other.data)
}
