package ioctx

import (
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Meander-Cloud/go-reactor/dispatch"
	"github.com/Meander-Cloud/go-reactor/scheduler"
)

type Options struct {
	// number of dispatch workers, if zero default will be used
	Threads int

	// timer scheduling backend
	Backend scheduler.Backend

	// cap on any single scheduler wait, if zero default will be used
	MaxWait time.Duration

	// logging prefix
	LogPrefix string

	// enable verbose logging
	LogDebug bool

	// base logger, if nil logging is disabled
	Log *zap.Logger
}

// Context owns one dispatch pool and the timer scheduler posting to it.
type Context struct {
	id      string
	options *Options
	log     *zap.Logger

	pool   *dispatch.Pool
	timers scheduler.Service

	mu  sync.Mutex
	pid int

	shutdownOnce sync.Once
}

func New(options *Options) (*Context, error) {
	if options == nil {
		options = &Options{}
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	pool := dispatch.NewPool(&dispatch.Options{
		Threads:   options.Threads,
		LogPrefix: options.LogPrefix,
		LogDebug:  options.LogDebug,
		Log:       log,
	})

	timers, err := scheduler.New(pool, &scheduler.Options{
		MaxWait:   options.MaxWait,
		Backend:   options.Backend,
		LogPrefix: options.LogPrefix,
		LogDebug:  options.LogDebug,
		Log:       log,
	})
	if err != nil {
		pool.Stop()
		pool.Join()
		return nil, errtrace.Wrap(err)
	}

	id := uuid.NewString()
	c := &Context{
		id:      id,
		options: options,
		log:     log.Named("io_context").With(zap.String("prefix", options.LogPrefix), zap.String("id", id)),
		pool:    pool,
		timers:  timers,
		pid:     getpid(),
	}
	c.log.Info("context started", zap.Stringer("backend", options.Backend))
	return c, nil
}

// ID identifies the context in logs.
func (c *Context) ID() string {
	return c.id
}

func (c *Context) Timers() scheduler.Service {
	return c.timers
}

func (c *Context) Engine() *dispatch.Pool {
	return c.pool
}

// Post runs f on a dispatch worker.
func (c *Context) Post(f func()) {
	c.pool.Post(f)
}

// NotifyFork forwards a fork event to the scheduler.
func (c *Context) NotifyFork(ev scheduler.ForkEvent) {
	if c.options.LogDebug {
		c.log.Debug("fork notified", zap.Stringer("event", ev))
	}
	c.timers.NotifyFork(ev)
}

// CheckFork reports whether the process id changed since the last check, and if so
// notifies the scheduler that it now runs in the child.
func (c *Context) CheckFork() bool {
	pid := getpid()

	c.mu.Lock()
	changed := pid != c.pid
	previous := c.pid
	c.pid = pid
	c.mu.Unlock()

	if !changed {
		return false
	}

	c.log.Info("process id changed", zap.Int("previous", previous), zap.Int("pid", pid))
	c.NotifyFork(scheduler.ForkChild)
	return true
}

// Stop stops the dispatch workers. Queued completions are destroyed.
func (c *Context) Stop() {
	c.pool.Stop()
}

func (c *Context) Stopped() bool {
	return c.pool.Stopped()
}

// Join waits for the dispatch workers to exit.
func (c *Context) Join() {
	c.pool.Join()
}

// Shutdown tears down in reverse construction order: scheduler first, then the pool.
// Must not be called from a dispatch worker.
func (c *Context) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.log.Info("synchronized shutdown starting")

		c.timers.Shutdown()
		c.pool.Stop()
		c.pool.Join()

		c.log.Info("synchronized shutdown done")
	})
}
