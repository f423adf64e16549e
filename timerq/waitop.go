package timerq

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrOperationAborted is the result delivered to a wait that was cancelled.
var ErrOperationAborted = errors.New("timerq: operation aborted")

type OpState uint32

const (
	OpPending   OpState = 0
	OpCancelled OpState = 1
	OpCompleted OpState = 2
	OpReleased  OpState = 3
)

func (s OpState) String() string {
	switch s {
	case OpPending:
		return "pending"
	case OpCancelled:
		return "cancelled"
	case OpCompleted:
		return "completed"
	case OpReleased:
		return "released"
	default:
		return fmt.Sprintf("OpState(%d)", uint32(s))
	}
}

// WaitOp is one in-flight timer wait.
type WaitOp struct {
	// functor to invoke upon expiry or cancellation
	completeFunctor func(error)

	// functor to invoke when the op is dropped without completing, may be nil
	releaseFunctor func()

	// logger for recovered functor panics, may be nil
	log *zap.Logger

	state atomic.Uint32

	// result handed to completeFunctor, set under the owning queue's lock
	result error

	// linkage, guarded by the owning queue's lock
	linked   bool
	seq      uint64
	deadline time.Time
}

func NewWaitOp(completeFunctor func(error), releaseFunctor func()) *WaitOp {
	return &WaitOp{
		completeFunctor: completeFunctor,
		releaseFunctor:  releaseFunctor,
	}
}

// WithLogger attaches a logger used to report panics raised by the functors.
func (op *WaitOp) WithLogger(log *zap.Logger) *WaitOp {
	op.log = log
	return op
}

func (op *WaitOp) State() OpState {
	return OpState(op.state.Load())
}

// Result is the outcome recorded when the op left its queue.
func (op *WaitOp) Result() error {
	return op.result
}

// Deadline is the wall time projection of the expiry the op was queued with.
func (op *WaitOp) Deadline() time.Time {
	return op.deadline
}

// Linked reports whether the op is currently held by a queue.
func (op *WaitOp) Linked() bool {
	return op.linked
}

func (op *WaitOp) cancel() {
	op.result = ErrOperationAborted
	op.state.Store(uint32(OpCancelled))
}

// Abort records ErrOperationAborted as the op's result, for ops completed without ever expiring.
func (op *WaitOp) Abort() {
	op.result = ErrOperationAborted
}

// Perform runs the completion functor. A given op completes at most once, later calls are ignored.
func (op *WaitOp) Perform() {
	prev := op.state.Load()
	if prev == uint32(OpCompleted) || prev == uint32(OpReleased) {
		return
	}
	if !op.state.CompareAndSwap(prev, uint32(OpCompleted)) {
		return
	}

	if op.completeFunctor == nil {
		return
	}

	defer func() {
		rec := recover()
		if rec != nil && op.log != nil {
			op.log.Error(
				"wait op complete functor recovered from panic",
				zap.Any("recovered", rec),
				zap.Error(op.result),
			)
		}
	}()
	op.completeFunctor(op.result)
}

// Destroy releases the op without running its completion functor.
func (op *WaitOp) Destroy() {
	prev := op.state.Load()
	if prev == uint32(OpCompleted) || prev == uint32(OpReleased) {
		return
	}
	if !op.state.CompareAndSwap(prev, uint32(OpReleased)) {
		return
	}

	if op.releaseFunctor == nil {
		return
	}

	defer func() {
		rec := recover()
		if rec != nil && op.log != nil {
			op.log.Error(
				"wait op release functor recovered from panic",
				zap.Any("recovered", rec),
			)
		}
	}()
	op.releaseFunctor()
}
