package scheduler

import (
	"container/heap"
	"sort"
)

// eventHeap is a resizable array maintained as a binary min-heap under the
// (deadline, sequence) ordering. It implements container/heap.Interface so
// that Push/Pop get the standard library's sift-up/sift-down, while
// EraseIf and Rebuild cover the bulk-removal and deserialization cases
// that a plain container/heap.Interface cannot express.
type eventHeap []Event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// push inserts ev and restores the heap property. O(log n).
func (h *eventHeap) push(ev Event) {
	heap.Push(h, ev)
}

// popMin removes and returns the minimum element. O(log n). The caller
// must check Len() > 0 first.
func (h *eventHeap) popMin() Event {
	return heap.Pop(h).(Event)
}

// peekMin returns the minimum element without removing it. The caller
// must check Len() > 0 first.
func (h eventHeap) peekMin() Event {
	return h[0]
}

// eraseIf drops every element matching pred, then rebuilds the heap
// property in O(n) if anything was actually removed. Skipping the
// rebuild when nothing matched is a pure optimization, not a correctness
// requirement, since the heap property already held over the unmodified
// slice.
func (h *eventHeap) eraseIf(pred func(Event) bool) {
	kept := (*h)[:0]
	removed := false
	for _, ev := range *h {
		if pred(ev) {
			removed = true
			continue
		}
		kept = append(kept, ev)
	}
	*h = kept
	if removed {
		h.rebuild()
	}
}

// rebuild re-establishes the heap property over the whole array. Required
// after deserialization, since the exact layout of a heap is an
// implementation detail that must never be persisted, and after eraseIf
// removed elements from arbitrary positions.
func (h *eventHeap) rebuild() {
	heap.Init(h)
}

// snapshot returns a sorted copy of the heap contents for diagnostics,
// without disturbing the live heap or its ordering.
func (h eventHeap) snapshot() []Event {
	clone := make([]Event, len(h))
	copy(clone, h)
	sort.Slice(clone, func(i, j int) bool { return less(clone[i], clone[j]) })
	return clone
}
