package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/Meander-Cloud/go-reactor/dispatch"
	"github.com/Meander-Cloud/go-reactor/timerq"
)

// IntegratedScheduler owns no goroutine. It arms a single engine deadline for the earliest wait
// and collects due waits on an engine worker when it fires.
type IntegratedScheduler struct {
	*core

	deadlineEngine dispatch.DeadlineEngine

	// currently armed deadline, nil when none
	armed      dispatch.Stopper
	armedUntil time.Time

	// bumped on every arming, a drain from an older arming is ignored
	generation uint64
}

var _ Service = (*IntegratedScheduler)(nil)

func NewIntegratedScheduler(engine dispatch.DeadlineEngine, options *Options) *IntegratedScheduler {
	return &IntegratedScheduler{
		core:           newCore(engine, options, "integrated_timer_scheduler"),
		deadlineEngine: engine,
	}
}

func (s *IntegratedScheduler) Schedule(q timerq.Base, op *timerq.WaitOp, add func() bool) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		s.abortScheduled(op)
		return
	}

	earliest := add()
	s.engine.WorkStarted()

	if earliest || s.armed == nil {
		s.arm()
	}
	s.mu.Unlock()
}

// arm points the engine deadline at the earliest pending wait, unless one at least as soon is armed. Must hold mu.
func (s *IntegratedScheduler) arm() {
	if s.queues.Empty() {
		return
	}

	wait := s.queues.WaitDuration(s.maxWait)
	if s.armed != nil {
		if wait >= time.Until(s.armedUntil) {
			return
		}
		s.armed.Stop()
	}

	s.generation += 1
	generation := s.generation
	s.armedUntil = time.Now().Add(wait)
	s.armed = s.deadlineEngine.PostAfter(wait, func() {
		s.drain(generation)
	})
	s.fsm.fire(triggerWait)

	if s.options.LogDebug {
		s.log.Debug("armed deadline", zap.Duration("wait", wait), zap.Uint64("generation", generation))
	}
}

func (s *IntegratedScheduler) drain(generation uint64) {
	s.mu.Lock()
	if s.shutdown || generation != s.generation {
		s.mu.Unlock()
		return
	}

	s.armed = nil
	s.fsm.fire(triggerWake)

	var ops timerq.OpQueue
	s.queues.GetReadyTimers(&ops)

	if s.queues.Empty() {
		s.fsm.fire(triggerIdle)
	} else {
		s.arm()
	}
	s.mu.Unlock()

	if s.options.LogDebug && !ops.Empty() {
		s.log.Debug("posting expired timers", zap.Int("ready", ops.Len()))
	}
	s.postDeferred(&ops)
}

// NotifyFork re-arms the engine deadline on the child side, timers armed before the fork do not survive it.
func (s *IntegratedScheduler) NotifyFork(ev ForkEvent) {
	if ev != ForkChild {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}

	s.log.Info("re-arming deadline after fork")
	s.fsm.fire(triggerFork)

	if s.armed != nil {
		s.armed.Stop()
		s.armed = nil
	}
	s.generation += 1
	s.arm()
}

// Shutdown disarms the engine deadline and releases every pending wait without completing it.
func (s *IntegratedScheduler) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.log.Info("synchronized shutdown starting")

	s.shutdown = true
	s.fsm.fire(triggerStop)
	if s.armed != nil {
		s.armed.Stop()
		s.armed = nil
	}

	var ops timerq.OpQueue
	s.queues.GetAllTimers(&ops)
	s.mu.Unlock()

	s.abandon(&ops)
	s.log.Info("synchronized shutdown done")
}
