package jsonl

import (
	"container/heap"
	"slices"

	"github.com/creastat/descriptorstore/model"
)

type candidate struct {
	descriptor model.Descriptor
	distance   float64
	seq        int
}

// worstFirst is a heap whose root is the candidate that would be evicted
// first: the farthest for ascending order, the nearest for descending order.
type worstFirst struct {
	items      []candidate
	descending bool
}

func (h *worstFirst) Len() int { return len(h.items) }

func (h *worstFirst) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.distance != b.distance {
		if h.descending {
			return a.distance < b.distance
		}
		return a.distance > b.distance
	}
	return a.seq > b.seq
}

func (h *worstFirst) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *worstFirst) Push(x any)    { h.items = append(h.items, x.(candidate)) }

func (h *worstFirst) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}

// maxPrealloc bounds the heap capacity reserved before any line is read.
const maxPrealloc = 1024

// topK keeps the k best candidates seen so far.
type topK struct {
	k    int
	h    *worstFirst
	next int
}

func newTopK(k int, descending bool) *topK {
	return &topK{k: k, h: &worstFirst{items: make([]candidate, 0, min(k, maxPrealloc)), descending: descending}}
}

func (t *topK) offer(d model.Descriptor, dist float64) {
	c := candidate{descriptor: d, distance: dist, seq: t.next}
	t.next++
	if t.h.Len() < t.k {
		heap.Push(t.h, c)
		return
	}
	worst := t.h.items[0]
	better := dist < worst.distance
	if t.h.descending {
		better = dist > worst.distance
	}
	if better {
		t.h.items[0] = c
		heap.Fix(t.h, 0)
	}
}

// sorted returns the kept candidates best first; ties keep scan order.
func (t *topK) sorted() []candidate {
	out := slices.Clone(t.h.items)
	slices.SortFunc(out, func(a, b candidate) int {
		if a.distance != b.distance {
			less := a.distance < b.distance
			if t.h.descending {
				less = !less
			}
			if less {
				return -1
			}
			return 1
		}
		return a.seq - b.seq
	})
	return out
}
