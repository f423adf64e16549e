package scheduler

import (
	"context"

	"github.com/qmuntal/stateless"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle     State = "idle"
	StateWaiting  State = "waiting"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

type trigger string

const (
	triggerWait trigger = "wait"
	triggerWake trigger = "wake"
	triggerIdle trigger = "idle"
	triggerFork trigger = "fork"
	triggerStop trigger = "stop"
)

// lifecycle tracks Idle -> Waiting -> Draining -> Waiting | Idle, and Stopped as the terminal state.
// Guarded by the owning scheduler's mutex.
type lifecycle struct {
	log *zap.Logger
	sm  *stateless.StateMachine
}

func newLifecycle(log *zap.Logger, logDebug bool) *lifecycle {
	sm := stateless.NewStateMachine(StateIdle)

	sm.Configure(StateIdle).
		Permit(triggerWait, StateWaiting).
		Permit(triggerStop, StateStopped).
		Ignore(triggerWake).
		Ignore(triggerIdle).
		Ignore(triggerFork)

	sm.Configure(StateWaiting).
		Permit(triggerWake, StateDraining).
		Permit(triggerIdle, StateIdle).
		Permit(triggerFork, StateIdle).
		Permit(triggerStop, StateStopped).
		Ignore(triggerWait)

	sm.Configure(StateDraining).
		Permit(triggerWait, StateWaiting).
		Permit(triggerIdle, StateIdle).
		Permit(triggerFork, StateIdle).
		Permit(triggerStop, StateStopped).
		Ignore(triggerWake)

	sm.Configure(StateStopped).
		Ignore(triggerWait).
		Ignore(triggerWake).
		Ignore(triggerIdle).
		Ignore(triggerFork).
		Ignore(triggerStop)

	if logDebug {
		sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
			log.Debug(
				"state transition",
				zap.Any("source", t.Source),
				zap.Any("destination", t.Destination),
				zap.Any("trigger", t.Trigger),
			)
		})
	}

	return &lifecycle{
		log: log,
		sm:  sm,
	}
}

func (l *lifecycle) fire(t trigger) {
	err := l.sm.Fire(t)
	if err != nil {
		l.log.Warn("state transition rejected", zap.String("trigger", string(t)), zap.Error(err))
	}
}

func (l *lifecycle) state() State {
	return l.sm.MustState().(State)
}
