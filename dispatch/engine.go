//go:generate mockgen -destination=dispatchmock/engine.go -package=dispatchmock github.com/Meander-Cloud/go-reactor/dispatch Engine

package dispatch

import (
	"time"
)

// Operation is a unit of completion work handed to an Engine.
type Operation interface {
	// run the completion logic
	Perform()

	// drop the operation without running its completion logic
	Destroy()
}

// Engine executes posted operations on worker goroutines.
type Engine interface {
	// count one unit of outstanding work and queue op
	PostImmediateCompletion(op Operation)

	// queue op whose work was already counted via WorkStarted
	PostDeferredCompletion(op Operation)

	WorkStarted()
	WorkFinished()
}

// Stopper cancels a pending deadline.
type Stopper interface {
	// reports whether the deadline was cancelled before it fired
	Stop() bool
}

// DeadlineEngine is an Engine able to wait on deadlines natively.
type DeadlineEngine interface {
	Engine

	// run f on a worker once d has elapsed
	PostAfter(d time.Duration, f func()) Stopper
}

// FuncOp adapts a plain function to an Operation.
type FuncOp func()

func (f FuncOp) Perform() { f() }
func (f FuncOp) Destroy() {}
