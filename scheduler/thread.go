package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Meander-Cloud/go-reactor/dispatch"
	"github.com/Meander-Cloud/go-reactor/timerq"
)

// ThreadScheduler waits for deadlines on its own background goroutine and posts due waits to the engine.
type ThreadScheduler struct {
	*core

	eventChannelLength uint16
	exitwg             sync.WaitGroup

	// current background goroutine, replaced after a fork
	thread *backgroundThread

	// whether the background goroutine needs to stop
	stopThread bool

	// whether the background goroutine is parked, and until when
	sleeping   bool
	sleepUntil time.Time
}

type backgroundThread struct {
	generation uint64
	eventch    chan Event
}

var _ Service = (*ThreadScheduler)(nil)

func NewThreadScheduler(engine dispatch.Engine, options *Options) *ThreadScheduler {
	eventChannelLength := options.EventChannelLength
	if eventChannelLength == 0 {
		eventChannelLength = EventChannelLength
	}

	s := &ThreadScheduler{
		core:               newCore(engine, options, "timer_scheduler"),
		eventChannelLength: eventChannelLength,
	}

	s.mu.Lock()
	s.startThread()
	s.mu.Unlock()

	return s
}

// must hold mu
func (s *ThreadScheduler) startThread() {
	var generation uint64 = 1
	if s.thread != nil {
		generation = s.thread.generation + 1
	}

	t := &backgroundThread{
		generation: generation,
		eventch:    make(chan Event, s.eventChannelLength),
	}
	s.thread = t
	s.sleeping = false

	s.exitwg.Add(1)
	go func() {
		s.log.Info("background loop starting", zap.Uint64("generation", t.generation))

		defer func() {
			s.log.Info("background loop exiting", zap.Uint64("generation", t.generation))
			s.exitwg.Done()
		}()

		s.runThread(t)
	}()
}

// signal never blocks, a full channel already guarantees the goroutine wakes up
func (s *ThreadScheduler) signal(t *backgroundThread, event Event) {
	select {
	case t.eventch <- event:
	default:
		if s.options.LogDebug {
			s.log.Debug("event channel full, signal coalesced", zap.Uint64("generation", t.generation))
		}
	}
}

func (s *ThreadScheduler) Schedule(q timerq.Base, op *timerq.WaitOp, add func() bool) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		s.abortScheduled(op)
		return
	}

	earliest := add()
	s.engine.WorkStarted()

	if earliest && s.sleeping {
		// the goroutine may be parked on a longer timeout
		wait := s.queues.WaitDuration(s.maxWait)
		if wait < time.Until(s.sleepUntil) {
			if s.options.LogDebug {
				s.log.Debug("waking background loop for sooner deadline", zap.Duration("wait", wait))
			}
			s.sleeping = false
			s.signal(s.thread, &wakeEvent{})
		}
	}
	s.mu.Unlock()
}

// NotifyFork recreates the background goroutine on the child side, pending waits are kept.
func (s *ThreadScheduler) NotifyFork(ev ForkEvent) {
	if ev != ForkChild {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}

	s.log.Info("recreating background loop after fork", zap.Uint64("generation", s.thread.generation))
	s.fsm.fire(triggerFork)

	// the old goroutine notices its generation is stale and exits
	old := s.thread
	s.startThread()
	s.signal(old, &exitEvent{})
}

// Shutdown stops the background goroutine and releases every pending wait without completing it.
func (s *ThreadScheduler) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.log.Info("synchronized shutdown starting")

	s.shutdown = true
	s.stopThread = true
	s.fsm.fire(triggerStop)
	s.signal(s.thread, &exitEvent{})
	s.mu.Unlock()

	s.exitwg.Wait()

	var ops timerq.OpQueue
	s.mu.Lock()
	s.queues.GetAllTimers(&ops)
	s.mu.Unlock()

	s.abandon(&ops)
	s.log.Info("synchronized shutdown done")
}

func (s *ThreadScheduler) runThread(t *backgroundThread) {
	timer := time.NewTimer(s.maxWait)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.stopThread || t.generation != s.thread.generation {
			s.mu.Unlock()
			return
		}

		s.fsm.fire(triggerWait)
		wait := s.queues.WaitDuration(s.maxWait)
		s.sleeping = true
		s.sleepUntil = time.Now().Add(wait)
		s.mu.Unlock()

		if s.options.LogDebug {
			s.log.Debug("waiting", zap.Duration("wait", wait), zap.Uint64("generation", t.generation))
		}

		timer.Reset(wait)
		select {
		case event := <-t.eventch:
			if s.options.LogDebug {
				s.log.Debug("woken", zap.String("event", eventName(event)))
			}
			s.drainEvents(t)
		case <-timer.C:
		}
		timer.Stop()

		s.mu.Lock()
		if s.stopThread || t.generation != s.thread.generation {
			s.mu.Unlock()
			return
		}

		s.sleeping = false
		s.fsm.fire(triggerWake)

		// the wake reason is not trusted, due waits are recomputed from the queues
		var ops timerq.OpQueue
		s.queues.GetReadyTimers(&ops)
		s.mu.Unlock()

		if s.options.LogDebug && !ops.Empty() {
			s.log.Debug("posting expired timers", zap.Int("ready", ops.Len()))
		}
		s.postDeferred(&ops)
	}
}

// drainEvents discards queued signals, one recomputation covers them all
func (s *ThreadScheduler) drainEvents(t *backgroundThread) {
	for {
		select {
		case <-t.eventch:
		default:
			return
		}
	}
}

func eventName(event Event) string {
	switch event.(type) {
	case *exitEvent:
		return "exit"
	case *wakeEvent:
		return "wake"
	default:
		return "unknown"
	}
}
