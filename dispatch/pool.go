package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/eapache/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// number of worker goroutines, if zero default will be used
	Threads int

	// logging prefix
	LogPrefix string

	// enable verbose logging
	LogDebug bool

	// base logger, if nil logging is disabled
	Log *zap.Logger
}

// Pool is a fixed set of worker goroutines draining one FIFO of operations.
type Pool struct {
	options *Options
	log     *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	runq    *queue.Queue
	stopped bool

	// units of work posted or announced but not yet finished
	outstanding atomic.Int64

	group errgroup.Group
}

var _ DeadlineEngine = (*Pool)(nil)

func NewPool(options *Options) *Pool {
	if options == nil {
		options = &Options{}
	}

	threads := options.Threads
	if threads <= 0 {
		threads = DefaultThreads()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		options: options,
		log:     log.Named("dispatch_pool").With(zap.String("prefix", options.LogPrefix)),
		runq:    queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < threads; i++ {
		id := i
		p.group.Go(func() error {
			p.runWorker(id)
			return nil
		})
	}

	p.log.Info("pool started", zap.Int("threads", threads))
	return p
}

// DefaultThreads is the worker count used when none is configured.
func DefaultThreads() int {
	return 2 * runtime.NumCPU()
}

func (p *Pool) PostImmediateCompletion(op Operation) {
	p.WorkStarted()
	p.PostDeferredCompletion(op)
}

func (p *Pool) PostDeferredCompletion(op Operation) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()

		// nobody left to run it
		op.Destroy()
		p.WorkFinished()
		return
	}
	p.runq.Add(op)
	p.cond.Signal()
	p.mu.Unlock()
}

// Post runs f on a worker.
func (p *Pool) Post(f func()) {
	p.PostImmediateCompletion(FuncOp(f))
}

func (p *Pool) PostAfter(d time.Duration, f func()) Stopper {
	p.WorkStarted()

	s := &deadlineStopper{p: p}
	s.timer = time.AfterFunc(d, func() {
		if !s.fired.CompareAndSwap(false, true) {
			return
		}
		p.PostDeferredCompletion(FuncOp(f))
	})
	return s
}

type deadlineStopper struct {
	p     *Pool
	timer *time.Timer
	fired atomic.Bool
}

func (s *deadlineStopper) Stop() bool {
	if !s.fired.CompareAndSwap(false, true) {
		return false
	}
	s.timer.Stop()
	s.p.WorkFinished()
	return true
}

func (p *Pool) WorkStarted() {
	p.outstanding.Add(1)
}

func (p *Pool) WorkFinished() {
	p.outstanding.Add(-1)
}

// Outstanding returns the units of work not yet finished.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

// Wait blocks until no work is outstanding or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for p.Outstanding() > 0 {
		select {
		case <-ctx.Done():
			return errtrace.Wrap(ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Stop signals the workers to exit. Operations still queued are destroyed, not performed.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true

	var abandoned []Operation
	for p.runq.Length() > 0 {
		abandoned = append(abandoned, p.runq.Remove().(Operation))
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.log.Info("pool stopping", zap.Int("abandoned", len(abandoned)))

	for _, op := range abandoned {
		op.Destroy()
		p.WorkFinished()
	}
}

func (p *Pool) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Join waits for every worker to exit. Must not be called from a worker.
func (p *Pool) Join() {
	_ = p.group.Wait()
	p.log.Info("pool joined")
}

func (p *Pool) runWorker(id int) {
	if p.options.LogDebug {
		p.log.Debug("worker starting", zap.Int("worker", id))
	}

	defer func() {
		if p.options.LogDebug {
			p.log.Debug("worker exiting", zap.Int("worker", id))
		}
	}()

	for {
		p.mu.Lock()
		for p.runq.Length() == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		op := p.runq.Remove().(Operation)
		p.mu.Unlock()

		p.perform(id, op)
	}
}

func (p *Pool) perform(id int, op Operation) {
	defer func() {
		rec := recover()
		if rec != nil {
			p.log.Error(
				"operation recovered from panic",
				zap.Int("worker", id),
				zap.Any("recovered", rec),
			)
		}
		p.WorkFinished()
	}()
	op.Perform()
}
