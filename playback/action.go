package playback

import (
	"container/heap"
	"time"
)

// ScheduledAction is a request held until its execution time.
type ScheduledAction struct {
	ID         string    `json:"id"`
	Request    Request   `json:"request"`
	ExecuteAt  time.Time `json:"executeAt"`
	CreatedAt  time.Time `json:"createdAt"`
	Cancelled  bool      `json:"cancelled"`
	Executed   bool      `json:"executed"`
	PlaybackID string    `json:"playbackId,omitempty"`
	Err        string    `json:"error,omitempty"`

	index int
}

// actionQueue is a min-heap on ExecuteAt; ties keep insertion order.
type actionQueue struct {
	items []*ScheduledAction
	seq   map[*ScheduledAction]uint64
	next  uint64
}

func newActionQueue() *actionQueue {
	return &actionQueue{seq: make(map[*ScheduledAction]uint64)}
}

func (q *actionQueue) Len() int { return len(q.items) }

func (q *actionQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if !a.ExecuteAt.Equal(b.ExecuteAt) {
		return a.ExecuteAt.Before(b.ExecuteAt)
	}
	return q.seq[a] < q.seq[b]
}

func (q *actionQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *actionQueue) Push(x any) {
	a := x.(*ScheduledAction)
	a.index = len(q.items)
	q.seq[a] = q.next
	q.next++
	q.items = append(q.items, a)
}

func (q *actionQueue) Pop() any {
	n := len(q.items)
	a := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	delete(q.seq, a)
	a.index = -1
	return a
}

func (q *actionQueue) add(a *ScheduledAction) { heap.Push(q, a) }

func (q *actionQueue) remove(a *ScheduledAction) {
	if a.index >= 0 && a.index < len(q.items) && q.items[a.index] == a {
		heap.Remove(q, a.index)
	}
}

// due pops every action whose time has come, in execution order.
func (q *actionQueue) due(now time.Time) []*ScheduledAction {
	var out []*ScheduledAction
	for len(q.items) > 0 && !q.items[0].ExecuteAt.After(now) {
		out = append(out, heap.Pop(q).(*ScheduledAction))
	}
	return out
}
