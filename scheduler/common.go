package scheduler

import (
	"time"
)

const (
	EventChannelLength uint16 = 16

	// longest single sleep of the background goroutine
	DefaultMaxWait time.Duration = 5 * time.Minute
)

type Backend uint8

const (
	// dedicated background goroutine waiting on the earliest deadline
	BackendThread Backend = 0

	// no goroutine, deadlines are armed on the dispatch engine
	BackendIntegrated Backend = 1
)

func (b Backend) String() string {
	switch b {
	case BackendThread:
		return "thread"
	case BackendIntegrated:
		return "integrated"
	default:
		return "unknown"
	}
}

// ParseBackend maps a backend name back to its value.
func ParseBackend(name string) (Backend, bool) {
	switch name {
	case "", "thread":
		return BackendThread, true
	case "integrated":
		return BackendIntegrated, true
	default:
		return 0, false
	}
}

type ForkEvent uint8

const (
	ForkPrepare ForkEvent = 0
	ForkParent  ForkEvent = 1
	ForkChild   ForkEvent = 2
)

func (e ForkEvent) String() string {
	switch e {
	case ForkPrepare:
		return "prepare"
	case ForkParent:
		return "parent"
	case ForkChild:
		return "child"
	default:
		return "unknown"
	}
}
