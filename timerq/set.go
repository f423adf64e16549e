package timerq

import (
	"slices"
	"time"

	"github.com/emirpasic/gods/v2/maps/linkedhashmap"
)

// Set is the registry of queues served by one scheduler. It does not own the queues.
// Not safe for concurrent use.
type Set struct {
	// queue -> registration index, iterated in registration order
	queueMap *linkedhashmap.Map[Base, uint64]

	// registration counter
	registered uint64
}

func NewSet() *Set {
	return &Set{
		queueMap: linkedhashmap.New[Base, uint64](),
	}
}

// Add registers q. Adding a registered queue is a no-op and keeps its original position.
func (s *Set) Add(q Base) {
	if _, found := s.queueMap.Get(q); found {
		return
	}

	s.registered += 1
	s.queueMap.Put(q, s.registered)
}

// Remove unregisters q. Pending waits stay in q.
func (s *Set) Remove(q Base) {
	s.queueMap.Remove(q)
}

func (s *Set) Contains(q Base) bool {
	_, found := s.queueMap.Get(q)
	return found
}

// Len returns the number of registered queues.
func (s *Set) Len() int {
	return s.queueMap.Size()
}

// Empty reports whether no registered queue holds a pending wait.
func (s *Set) Empty() bool {
	it := s.queueMap.Iterator()
	for it.Next() {
		if !it.Key().Empty() {
			return false
		}
	}
	return true
}

// Pending returns the total number of pending waits across registered queues.
func (s *Set) Pending() int {
	n := 0
	it := s.queueMap.Iterator()
	for it.Next() {
		n += it.Key().Len()
	}
	return n
}

// GetReadyTimers dequeues every due wait across all queues.
// Waits come out ordered by deadline, equal deadlines by queue registration order, then insertion order.
func (s *Set) GetReadyTimers(out *OpQueue) {
	var ready []*WaitOp

	it := s.queueMap.Iterator()
	for it.Next() {
		var batch OpQueue
		it.Key().GetReadyTimers(&batch)
		for op := batch.Pop(); op != nil; op = batch.Pop() {
			ready = append(ready, op)
		}
	}

	// queues were visited in registration order and each batch is already sorted
	slices.SortStableFunc(ready, func(a, b *WaitOp) int {
		return a.deadline.Compare(b.deadline)
	})

	for _, op := range ready {
		out.Push(op)
	}
}

// GetAllTimers dequeues every pending wait across all queues, queue by queue in registration order.
func (s *Set) GetAllTimers(out *OpQueue) {
	it := s.queueMap.Iterator()
	for it.Next() {
		it.Key().GetAllTimers(out)
	}
}

// EarliestExpiry returns the soonest deadline across all queues, false when nothing is pending.
func (s *Set) EarliestExpiry() (time.Time, bool) {
	var earliest time.Time
	found := false

	it := s.queueMap.Iterator()
	for it.Next() {
		deadline, ok := it.Key().EarliestDeadline()
		if !ok {
			continue
		}
		if !found || deadline.Before(earliest) {
			earliest = deadline
			found = true
		}
	}
	return earliest, found
}

// WaitDuration returns the shortest wait across all queues, capped at max.
func (s *Set) WaitDuration(max time.Duration) time.Duration {
	d := max
	it := s.queueMap.Iterator()
	for it.Next() {
		d = it.Key().WaitDuration(d)
	}
	return d
}
