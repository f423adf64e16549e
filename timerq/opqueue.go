package timerq

import (
	"github.com/eapache/queue"
)

// OpQueue is a FIFO batch of wait ops, handed from the queues to whoever posts them.
// The zero value is ready to use. Not safe for concurrent use.
type OpQueue struct {
	q *queue.Queue
}

func NewOpQueue() *OpQueue {
	return &OpQueue{
		q: queue.New(),
	}
}

func (oq *OpQueue) Push(op *WaitOp) {
	if oq.q == nil {
		oq.q = queue.New()
	}
	oq.q.Add(op)
}

// Pop removes and returns the oldest op, nil when empty.
func (oq *OpQueue) Pop() *WaitOp {
	if oq.Len() == 0 {
		return nil
	}
	return oq.q.Remove().(*WaitOp)
}

// Front returns the oldest op without removing it, nil when empty.
func (oq *OpQueue) Front() *WaitOp {
	if oq.Len() == 0 {
		return nil
	}
	return oq.q.Peek().(*WaitOp)
}

// PushQueue moves every op of other to the back of oq, leaving other empty.
func (oq *OpQueue) PushQueue(other *OpQueue) {
	for op := other.Pop(); op != nil; op = other.Pop() {
		oq.Push(op)
	}
}

func (oq *OpQueue) Len() int {
	if oq.q == nil {
		return 0
	}
	return oq.q.Length()
}

func (oq *OpQueue) Empty() bool {
	return oq.Len() == 0
}

// Slice copies the queued ops in order, mostly useful for inspection.
func (oq *OpQueue) Slice() []*WaitOp {
	n := oq.Len()
	ops := make([]*WaitOp, 0, n)
	for i := 0; i < n; i++ {
		ops = append(ops, oq.q.Get(i).(*WaitOp))
	}
	return ops
}
