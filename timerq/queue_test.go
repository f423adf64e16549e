package timerq_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Meander-Cloud/go-reactor/timerq"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	fired []string
	errs  map[string]error
}

func newRecorder() *recorder {
	return &recorder{errs: make(map[string]error)}
}

func (r *recorder) op(name string) *timerq.WaitOp {
	return timerq.NewWaitOp(func(err error) {
		r.fired = append(r.fired, name)
		r.errs[name] = err
	}, nil)
}

func perform(oq *timerq.OpQueue) {
	for op := oq.Pop(); op != nil; op = oq.Pop() {
		op.Perform()
	}
}

func TestQueue_InsertionOrderOnEqualExpiry(t *testing.T) {
	t.Parallel()

	clock := timerq.NewManualClock(epoch)
	q := timerq.NewQueue[time.Time](clock)
	r := newRecorder()

	var timer timerq.PerTimerData[time.Time]
	at := epoch.Add(time.Second)
	names := []string{"a", "b", "c", "d"}
	for _, name := range names {
		q.AddTimer(at, &timer, r.op(name))
	}

	var out timerq.OpQueue
	clock.Advance(time.Second)
	q.GetReadyTimers(&out)
	perform(&out)

	if diff := cmp.Diff(names, r.fired); diff != "" {
		t.Errorf("fired order mismatch (-want +got):\n%s", diff)
	}
	if !q.Empty() {
		t.Errorf("q.Empty() = false after all waits fired")
	}
	if got := q.TimerCount(); got != 0 {
		t.Errorf("q.TimerCount() = %d, want 0", got)
	}
}

func TestQueue_ReadyOrderedByExpiry(t *testing.T) {
	t.Parallel()

	clock := timerq.NewManualClock(epoch)
	q := timerq.NewQueue[time.Time](clock)
	r := newRecorder()

	var t1, t2, t3 timerq.PerTimerData[time.Time]
	q.AddTimer(epoch.Add(30*time.Millisecond), &t1, r.op("t1"))
	q.AddTimer(epoch.Add(10*time.Millisecond), &t2, r.op("t2"))
	q.AddTimer(epoch.Add(20*time.Millisecond), &t3, r.op("t3"))
	q.AddTimer(epoch.Add(10*time.Millisecond), &t1, r.op("t1b"))

	var out timerq.OpQueue
	clock.Advance(20 * time.Millisecond)
	q.GetReadyTimers(&out)
	perform(&out)

	if diff := cmp.Diff([]string{"t2", "t1b", "t3"}, r.fired); diff != "" {
		t.Errorf("fired order mismatch (-want +got):\n%s", diff)
	}
	if got := q.Len(); got != 1 {
		t.Errorf("q.Len() = %d, want 1", got)
	}
	if got := t1.Pending(); got != 1 {
		t.Errorf("t1.Pending() = %d, want 1", got)
	}
}

func TestQueue_AddTimerReportsEarliest(t *testing.T) {
	t.Parallel()

	q := timerq.NewQueue[time.Time](timerq.NewManualClock(epoch))
	var timer timerq.PerTimerData[time.Time]

	if !q.AddTimer(epoch.Add(time.Second), &timer, timerq.NewWaitOp(nil, nil)) {
		t.Errorf("first AddTimer() = false, want true")
	}
	if q.AddTimer(epoch.Add(2*time.Second), &timer, timerq.NewWaitOp(nil, nil)) {
		t.Errorf("later AddTimer() = true, want false")
	}
	if !q.AddTimer(epoch.Add(time.Millisecond), &timer, timerq.NewWaitOp(nil, nil)) {
		t.Errorf("sooner AddTimer() = false, want true")
	}
}

func TestQueue_CancelTimer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		pending   int
		max       int
		wantCount int
		wantLeft  int
	}{
		{"none pending", 0, timerq.CancelAll, 0, 0},
		{"zero max", 3, 0, 0, 3},
		{"one of three", 3, 1, 1, 2},
		{"exact", 3, 3, 3, 0},
		{"more than pending", 2, 5, 2, 0},
		{"cancel all", 4, timerq.CancelAll, 4, 0},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			clock := timerq.NewManualClock(epoch)
			q := timerq.NewQueue[time.Time](clock)
			r := newRecorder()

			var timer timerq.PerTimerData[time.Time]
			var names []string
			for i := 0; i < c.pending; i++ {
				name := string(rune('a' + i))
				names = append(names, name)
				q.AddTimer(epoch.Add(time.Second), &timer, r.op(name))
			}

			var out timerq.OpQueue
			if got := q.CancelTimer(&timer, &out, c.max); got != c.wantCount {
				t.Fatalf("q.CancelTimer() = %d, want %d", got, c.wantCount)
			}
			if got := out.Len(); got != c.wantCount {
				t.Errorf("out.Len() = %d, want %d", got, c.wantCount)
			}
			for _, op := range out.Slice() {
				if op.State() != timerq.OpCancelled {
					t.Errorf("cancelled op state = %v, want %v", op.State(), timerq.OpCancelled)
				}
			}
			perform(&out)

			if diff := cmp.Diff(names[:c.wantCount], r.fired, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("cancelled ops mismatch (-want +got):\n%s", diff)
			}
			for _, name := range r.fired {
				if !errors.Is(r.errs[name], timerq.ErrOperationAborted) {
					t.Errorf("op %s err = %v, want %v", name, r.errs[name], timerq.ErrOperationAborted)
				}
			}
			if got := timer.Pending(); got != c.wantLeft {
				t.Errorf("timer.Pending() = %d, want %d", got, c.wantLeft)
			}

			wantTimers := 0
			if c.wantLeft > 0 {
				wantTimers = 1
			}
			if got := q.TimerCount(); got != wantTimers {
				t.Errorf("q.TimerCount() = %d, want %d", got, wantTimers)
			}

			// remainder still fires normally
			r.fired = nil
			clock.Advance(time.Second)
			q.GetReadyTimers(&out)
			perform(&out)
			if diff := cmp.Diff(names[c.wantCount:], r.fired, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("remaining ops mismatch (-want +got):\n%s", diff)
			}
			for _, name := range r.fired {
				if r.errs[name] != nil {
					t.Errorf("op %s err = %v, want nil", name, r.errs[name])
				}
			}
		})
	}
}

func TestQueue_CancelTimerOfAnotherQueue(t *testing.T) {
	t.Parallel()

	clock := timerq.NewManualClock(epoch)
	q1 := timerq.NewQueue[time.Time](clock)
	q2 := timerq.NewQueue[time.Time](clock)

	var timer timerq.PerTimerData[time.Time]
	q1.AddTimer(epoch, &timer, timerq.NewWaitOp(nil, nil))

	var out timerq.OpQueue
	if got := q2.CancelTimer(&timer, &out, timerq.CancelAll); got != 0 {
		t.Errorf("q2.CancelTimer() = %d, want 0", got)
	}
	if got := timer.Pending(); got != 1 {
		t.Errorf("timer.Pending() = %d, want 1", got)
	}
}

func TestQueue_MoveTimer(t *testing.T) {
	t.Parallel()

	clock := timerq.NewManualClock(epoch)
	q := timerq.NewQueue[time.Time](clock)
	r := newRecorder()

	var from, to timerq.PerTimerData[time.Time]
	opTo := r.op("to1")
	q.AddTimer(epoch.Add(40*time.Millisecond), &to, opTo)
	opFrom1 := r.op("from1")
	opFrom2 := r.op("from2")
	q.AddTimer(epoch.Add(20*time.Millisecond), &from, opFrom1)
	q.AddTimer(epoch.Add(20*time.Millisecond), &from, opFrom2)

	q.MoveTimer(&to, &from)

	if got := from.Pending(); got != 0 {
		t.Errorf("from.Pending() = %d, want 0", got)
	}
	if !slices.Equal([]*timerq.WaitOp{opTo, opFrom1, opFrom2}, to.Ops()) {
		t.Errorf("to.Ops() = %v, want [to1 from1 from2] in order", to.Ops())
	}
	if got := q.TimerCount(); got != 1 {
		t.Errorf("q.TimerCount() = %d, want 1", got)
	}

	// expiries are retained
	for _, op := range []*timerq.WaitOp{opFrom1, opFrom2} {
		if want := epoch.Add(20 * time.Millisecond); !op.Deadline().Equal(want) {
			t.Errorf("moved op deadline = %v, want %v", op.Deadline(), want)
		}
	}

	var out timerq.OpQueue
	clock.Advance(20 * time.Millisecond)
	q.GetReadyTimers(&out)
	perform(&out)
	if diff := cmp.Diff([]string{"from1", "from2"}, r.fired); diff != "" {
		t.Errorf("fired after 20ms mismatch (-want +got):\n%s", diff)
	}

	// cancellation now goes through the new handle
	if got := q.CancelTimer(&from, &out, timerq.CancelAll); got != 0 {
		t.Errorf("q.CancelTimer(from) = %d, want 0", got)
	}
	if got := q.CancelTimer(&to, &out, timerq.CancelAll); got != 1 {
		t.Errorf("q.CancelTimer(to) = %d, want 1", got)
	}
}

func TestQueue_MoveTimerEmptySource(t *testing.T) {
	t.Parallel()

	q := timerq.NewQueue[time.Time](timerq.NewManualClock(epoch))
	var from, to timerq.PerTimerData[time.Time]
	q.MoveTimer(&to, &from)

	if got := q.TimerCount(); got != 0 {
		t.Errorf("q.TimerCount() = %d, want 0", got)
	}
}

func TestQueue_EarliestExpiry(t *testing.T) {
	t.Parallel()

	clock := timerq.NewManualClock(epoch)
	q := timerq.NewQueue[time.Time](clock)

	if _, found := q.EarliestExpiry(); found {
		t.Fatalf("q.EarliestExpiry() found on empty queue")
	}

	var timer timerq.PerTimerData[time.Time]
	at := epoch.Add(time.Minute)
	q.AddTimer(at, &timer, timerq.NewWaitOp(nil, nil))

	got1, found1 := q.EarliestExpiry()
	got2, found2 := q.EarliestExpiry()
	if !found1 || !found2 || !got1.Equal(at) || !got2.Equal(at) {
		t.Errorf("q.EarliestExpiry() = (%v, %t), (%v, %t), want (%v, true) twice", got1, found1, got2, found2, at)
	}

	if got := q.WaitDuration(time.Hour); got != time.Minute {
		t.Errorf("q.WaitDuration(1h) = %v, want 1m", got)
	}
	if got := q.WaitDuration(time.Second); got != time.Second {
		t.Errorf("q.WaitDuration(1s) = %v, want 1s", got)
	}
	clock.Advance(2 * time.Minute)
	if got := q.WaitDuration(time.Second); got != 0 {
		t.Errorf("q.WaitDuration() overdue = %v, want 0", got)
	}
}

func TestQueue_GetAllTimers(t *testing.T) {
	t.Parallel()

	q := timerq.NewQueue[time.Time](timerq.NewManualClock(epoch))
	r := newRecorder()

	var t1, t2 timerq.PerTimerData[time.Time]
	q.AddTimer(epoch.Add(time.Hour), &t1, r.op("a"))
	q.AddTimer(epoch.Add(time.Minute), &t2, r.op("b"))

	var out timerq.OpQueue
	q.GetAllTimers(&out)
	if got := out.Len(); got != 2 {
		t.Fatalf("out.Len() = %d, want 2", got)
	}
	if !q.Empty() || q.TimerCount() != 0 {
		t.Errorf("queue not drained: len=%d, timers=%d", q.Len(), q.TimerCount())
	}
	for _, op := range out.Slice() {
		if op.Linked() {
			t.Errorf("drained op still linked")
		}
		if !errors.Is(op.Result(), timerq.ErrOperationAborted) {
			t.Errorf("drained op result = %v, want %v", op.Result(), timerq.ErrOperationAborted)
		}
	}
}

func TestQueue_AddLinkedOpPanics(t *testing.T) {
	t.Parallel()

	q := timerq.NewQueue[time.Time](timerq.NewManualClock(epoch))
	var timer timerq.PerTimerData[time.Time]
	op := timerq.NewWaitOp(nil, nil)
	q.AddTimer(epoch, &timer, op)

	defer func() {
		if recover() == nil {
			t.Errorf("AddTimer() of a linked op did not panic")
		}
	}()
	q.AddTimer(epoch, &timer, op)
}

func TestQueue_MonotonicTraits(t *testing.T) {
	t.Parallel()

	traits := timerq.NewMonotonicTraits()
	q := timerq.NewQueue[time.Duration](traits)

	var timer timerq.PerTimerData[time.Duration]
	fired := false
	q.AddTimer(traits.Now(), &timer, timerq.NewWaitOp(func(error) { fired = true }, nil))

	var out timerq.OpQueue
	q.GetReadyTimers(&out)
	perform(&out)
	if !fired {
		t.Errorf("op already due did not fire")
	}
}
