package scheduler

// Event is delivered to the background goroutine of a ThreadScheduler.
type Event interface {
	isEvent()
}

// exitEvent retires the goroutine it is sent to, on shutdown or after a fork.
type exitEvent struct {
}

func (*exitEvent) isEvent() {}

// wakeEvent makes the goroutine recompute its sleep, sent when a sooner deadline got scheduled.
type wakeEvent struct {
}

func (*wakeEvent) isEvent() {}
