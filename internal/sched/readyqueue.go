package sched

import (
	"github.com/emirpasic/gods/trees/redblacktree"
)

// readyKey orders the ready queue: effective priority descending, then
// earliest LastRunTick (round-robin among equals), then id.
type readyKey struct {
	prio    int
	lastRun Tick
	id      TaskID
}

func readyCmp(a, b any) int {
	ka, kb := a.(readyKey), b.(readyKey)
	switch {
	case ka.prio > kb.prio:
		return -1
	case ka.prio < kb.prio:
		return 1
	case ka.lastRun < kb.lastRun:
		return -1
	case ka.lastRun > kb.lastRun:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// readyQueue holds Ready tasks in dispatch order. Each task remembers its
// current key so removal and requeue-on-boost stay O(log n).
type readyQueue struct {
	rbt *redblacktree.Tree
}

func newReadyQueue() *readyQueue {
	return &readyQueue{rbt: redblacktree.NewWith(readyCmp)}
}

func (q *readyQueue) push(t *Task) {
	if t.queued {
		q.remove(t)
	}
	t.queueKey = readyKey{prio: t.effPriority(), lastRun: t.LastRunTick, id: t.ID}
	t.queued = true
	q.rbt.Put(t.queueKey, t)
}

func (q *readyQueue) remove(t *Task) {
	if !t.queued {
		return
	}
	q.rbt.Remove(t.queueKey)
	t.queued = false
}

// peek returns the task that would be dispatched next, or nil.
func (q *readyQueue) peek() *Task {
	node := q.rbt.Left()
	if node == nil {
		return nil
	}
	return node.Value.(*Task)
}

func (q *readyQueue) pop() *Task {
	t := q.peek()
	if t == nil {
		return nil
	}
	q.remove(t)
	return t
}

func (q *readyQueue) len() int { return q.rbt.Size() }
