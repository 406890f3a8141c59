package behavior

import (
	"container/heap"
	"time"
)

// slot is one pending tick. A slot is stale once its entity is removed or
// rescheduled; stale slots are skipped when popped.
type slot struct {
	id  string
	due time.Time
	gen uint64
}

// schedule is a min-heap of slots ordered by due time.
type schedule []slot

func (s schedule) Len() int { return len(s) }
func (s schedule) Less(i, j int) bool {
	return s[i].due.Before(s[j].due)
}
func (s schedule) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s *schedule) Push(x any)   { *s = append(*s, x.(slot)) }
func (s *schedule) Pop() any {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

func (s *schedule) push(sl slot) { heap.Push(s, sl) }
func (s *schedule) pop() slot    { return heap.Pop(s).(slot) }

// peek returns the earliest slot without removing it.
func (s schedule) peek() (slot, bool) {
	if len(s) == 0 {
		return slot{}, false
	}
	return s[0], true
}
