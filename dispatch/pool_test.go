package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Meander-Cloud/go-reactor/dispatch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingOp struct {
	performed atomic.Int32
	destroyed atomic.Int32
	done      chan struct{}
}

func newCountingOp() *countingOp {
	return &countingOp{done: make(chan struct{}, 1)}
}

func (op *countingOp) Perform() {
	op.performed.Add(1)
	op.done <- struct{}{}
}

func (op *countingOp) Destroy() {
	op.destroyed.Add(1)
}

func newPool(t *testing.T, threads int) *dispatch.Pool {
	t.Helper()

	p := dispatch.NewPool(&dispatch.Options{Threads: threads, LogPrefix: t.Name()})
	t.Cleanup(func() {
		p.Stop()
		p.Join()
	})
	return p
}

func TestPool_PostImmediateCompletion(t *testing.T) {
	p := newPool(t, 2)

	op := newCountingOp()
	p.PostImmediateCompletion(op)

	select {
	case <-op.done:
	case <-time.After(time.Second):
		t.Fatalf("operation not performed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("p.Wait() error = %v", err)
	}
	if got := p.Outstanding(); got != 0 {
		t.Errorf("p.Outstanding() = %d, want 0", got)
	}
}

func TestPool_DeferredCompletionUsesAnnouncedWork(t *testing.T) {
	p := newPool(t, 1)

	op := newCountingOp()
	p.WorkStarted()
	if got := p.Outstanding(); got != 1 {
		t.Fatalf("p.Outstanding() = %d, want 1", got)
	}
	p.PostDeferredCompletion(op)
	<-op.done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("p.Wait() error = %v", err)
	}
}

func TestPool_FIFOOnSingleWorker(t *testing.T) {
	p := newPool(t, 1)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		p.Post(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestPool_RecoversPanic(t *testing.T) {
	p := newPool(t, 1)

	p.Post(func() { panic("boom") })

	op := newCountingOp()
	p.PostImmediateCompletion(op)
	select {
	case <-op.done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not survive a panicking operation")
	}
}

func TestPool_StopDestroysQueued(t *testing.T) {
	p := dispatch.NewPool(&dispatch.Options{Threads: 1})

	block := make(chan struct{})
	started := make(chan struct{})
	p.Post(func() {
		close(started)
		<-block
	})
	<-started

	queued := newCountingOp()
	p.PostImmediateCompletion(queued)

	p.Stop()
	close(block)
	p.Join()

	if got := queued.performed.Load(); got != 0 {
		t.Errorf("queued op performed %d times, want 0", got)
	}
	if got := queued.destroyed.Load(); got != 1 {
		t.Errorf("queued op destroyed %d times, want 1", got)
	}

	late := newCountingOp()
	p.PostImmediateCompletion(late)
	if got := late.destroyed.Load(); got != 1 {
		t.Errorf("op posted after stop destroyed %d times, want 1", got)
	}
	if !p.Stopped() {
		t.Errorf("p.Stopped() = false")
	}
	if got := p.Outstanding(); got != 0 {
		t.Errorf("p.Outstanding() = %d, want 0", got)
	}
}

func TestPool_PostAfter(t *testing.T) {
	p := newPool(t, 1)

	fired := make(chan time.Time, 1)
	start := time.Now()
	p.PostAfter(20*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed < 20*time.Millisecond {
			t.Errorf("deadline fired after %v, want >= 20ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatalf("deadline never fired")
	}

	s := p.PostAfter(time.Hour, func() { t.Errorf("stopped deadline fired") })
	if !s.Stop() {
		t.Errorf("s.Stop() = false, want true")
	}
	if s.Stop() {
		t.Errorf("second s.Stop() = true, want false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("p.Wait() error = %v", err)
	}
}

func TestPool_WaitHonoursContext(t *testing.T) {
	p := newPool(t, 1)

	p.WorkStarted()
	defer p.WorkFinished()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err == nil {
		t.Errorf("p.Wait() error = nil, want deadline exceeded")
	}
}
