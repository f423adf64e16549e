package timerq

// PerTimerData groups the pending waits of one logical timer inside a Queue.
// The caller holds it (the zero value is ready), the queue owns its contents while waits are pending.
type PerTimerData[T any] struct {
	// queue currently holding this timer's waits, nil when none are pending
	q *Queue[T]

	// pending waits in insertion order
	entries []*entry[T]
}

// Pending returns the number of waits queued on this timer.
// Must be called under the same lock that guards the owning queue.
func (d *PerTimerData[T]) Pending() int {
	return len(d.entries)
}

// Ops returns the pending waits in insertion order.
// Must be called under the same lock that guards the owning queue.
func (d *PerTimerData[T]) Ops() []*WaitOp {
	ops := make([]*WaitOp, 0, len(d.entries))
	for _, e := range d.entries {
		ops = append(ops, e.op)
	}
	return ops
}

func (d *PerTimerData[T]) append(e *entry[T]) {
	d.entries = append(d.entries, e)
}

func (d *PerTimerData[T]) unlink(e *entry[T]) {
	for i, cur := range d.entries {
		if cur == e {
			// most removals hit the front, keep relative order of the rest
			copy(d.entries[i:], d.entries[i+1:])
			d.entries[len(d.entries)-1] = nil
			d.entries = d.entries[:len(d.entries)-1]
			return
		}
	}
}
