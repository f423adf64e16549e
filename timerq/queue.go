package timerq

import (
	"cmp"
	"math"
	"time"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// CancelAll passed as max to CancelTimer cancels every pending wait of the timer.
const CancelAll = math.MaxInt

// Base is the clock-agnostic view of a Queue, what a Set and a scheduler operate on.
// None of the methods lock, callers serialize access.
type Base interface {
	// whether no waits are pending
	Empty() bool

	// number of pending waits
	Len() int

	// time until the earliest expiry measured on the queue's clock, capped at max, zero if already due
	WaitDuration(max time.Duration) time.Duration

	// wall time projection of the earliest expiry, false when empty
	EarliestDeadline() (time.Time, bool)

	// dequeue every wait whose expiry is not after now, ordered by expiry then insertion
	GetReadyTimers(out *OpQueue)

	// dequeue every pending wait, marked aborted
	GetAllTimers(out *OpQueue)
}

type entry[T any] struct {
	expiry T
	seq    uint64
	op     *WaitOp
	timer  *PerTimerData[T]
}

// Queue is an ordered store of pending timer waits for one clock domain.
type Queue[T any] struct {
	traits TimeTraits[T]

	// (expiry, seq) -> entry
	entryTree *rbt.Tree[*entry[T], struct{}]

	// timers with at least one pending wait
	timerMap map[*PerTimerData[T]]struct{}

	// insertion sequence, ties on expiry resolve in insertion order
	seq uint64
}

var _ Base = (*Queue[time.Time])(nil)

func NewQueue[T any](traits TimeTraits[T]) *Queue[T] {
	q := &Queue[T]{
		traits:   traits,
		timerMap: make(map[*PerTimerData[T]]struct{}),
	}
	q.entryTree = rbt.NewWith[*entry[T], struct{}](q.compare)
	return q
}

func (q *Queue[T]) compare(a, b *entry[T]) int {
	if q.traits.Less(a.expiry, b.expiry) {
		return -1
	}
	if q.traits.Less(b.expiry, a.expiry) {
		return 1
	}
	return cmp.Compare(a.seq, b.seq)
}

func (q *Queue[T]) Traits() TimeTraits[T] {
	return q.traits
}

// AddTimer queues op on timer to expire at t, and reports whether it became the queue's earliest wait.
// Queuing an op that is still linked, or a timer held by another queue, panics.
func (q *Queue[T]) AddTimer(t T, timer *PerTimerData[T], op *WaitOp) bool {
	if op.linked {
		panic("timerq: wait op already queued")
	}
	if timer.q != nil && timer.q != q {
		panic("timerq: timer belongs to another queue")
	}

	q.seq += 1
	e := &entry[T]{
		expiry: t,
		seq:    q.seq,
		op:     op,
		timer:  timer,
	}

	op.linked = true
	op.seq = e.seq
	op.deadline = q.traits.ToTime(t)
	op.result = nil
	op.state.Store(uint32(OpPending))

	q.entryTree.Put(e, struct{}{})

	timer.q = q
	timer.append(e)
	q.timerMap[timer] = struct{}{}

	return q.entryTree.Left().Key == e
}

// CancelTimer dequeues up to max of timer's waits, oldest first, marks them cancelled and appends them to out.
// Returns the number cancelled, zero when the timer has nothing pending.
func (q *Queue[T]) CancelTimer(timer *PerTimerData[T], out *OpQueue, max int) int {
	if timer.q != q {
		return 0
	}

	n := 0
	for n < max && len(timer.entries) > 0 {
		e := timer.entries[0]
		q.unlink(e)

		e.op.cancel()
		out.Push(e.op)
		n += 1
	}
	return n
}

// MoveTimer re-homes every pending wait of from onto to, keeping expiry and relative order.
// to keeps its own pending waits ahead of the moved ones.
func (q *Queue[T]) MoveTimer(to, from *PerTimerData[T]) {
	if to == from || from.q != q {
		return
	}
	if to.q != nil && to.q != q {
		panic("timerq: timer belongs to another queue")
	}

	for _, e := range from.entries {
		e.timer = to
		to.append(e)
	}
	from.entries = nil
	from.q = nil
	delete(q.timerMap, from)

	if len(to.entries) > 0 {
		to.q = q
		q.timerMap[to] = struct{}{}
	}
}

func (q *Queue[T]) GetReadyTimers(out *OpQueue) {
	if q.entryTree.Empty() {
		return
	}

	now := q.traits.Now()
	for {
		node := q.entryTree.Left()
		if node == nil || q.traits.Less(now, node.Key.expiry) {
			return
		}

		e := node.Key
		q.unlink(e)
		out.Push(e.op)
	}
}

func (q *Queue[T]) GetAllTimers(out *OpQueue) {
	for {
		node := q.entryTree.Left()
		if node == nil {
			return
		}

		e := node.Key
		q.unlink(e)
		e.op.Abort()
		out.Push(e.op)
	}
}

// EarliestExpiry returns the soonest pending expiry, false when empty.
func (q *Queue[T]) EarliestExpiry() (T, bool) {
	node := q.entryTree.Left()
	if node == nil {
		var zero T
		return zero, false
	}
	return node.Key.expiry, true
}

func (q *Queue[T]) EarliestDeadline() (time.Time, bool) {
	t, found := q.EarliestExpiry()
	if !found {
		return time.Time{}, false
	}
	return q.traits.ToTime(t), true
}

func (q *Queue[T]) WaitDuration(max time.Duration) time.Duration {
	t, found := q.EarliestExpiry()
	if !found {
		return max
	}

	d := q.traits.Sub(t, q.traits.Now())
	if d <= 0 {
		return 0
	}
	if d > max {
		return max
	}
	return d
}

func (q *Queue[T]) Empty() bool {
	return q.entryTree.Empty()
}

func (q *Queue[T]) Len() int {
	return q.entryTree.Size()
}

// TimerCount returns the number of timers with at least one pending wait.
func (q *Queue[T]) TimerCount() int {
	return len(q.timerMap)
}

func (q *Queue[T]) unlink(e *entry[T]) {
	q.entryTree.Remove(e)
	e.op.linked = false

	timer := e.timer
	timer.unlink(e)
	if len(timer.entries) == 0 {
		// last wait gone, forget the timer
		timer.q = nil
		delete(q.timerMap, timer)
	}
}
