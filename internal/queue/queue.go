package queue

import "slices"

// Item is a node id paired with its distance to the current query.
type Item struct {
	ID       uint32
	Distance float32
}

// PriorityQueue is a binary heap of Items ordered by distance.
// A min-heap pops the closest item first, a max-heap the farthest.
// It does NOT implement container/heap to avoid interface overhead.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin returns a min-heap with room for capacity items.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{items: make([]Item, 0, capacity)}
}

// NewMax returns a max-heap with room for capacity items.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: true, items: make([]Item, 0, capacity)}
}

// Len returns the number of items in the heap.
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// Reset clears the heap for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// Top returns the root of the heap without removing it.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) Push(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PushBounded inserts an item into a max-heap holding at most limit items.
// When the heap is full the item replaces the root only if it is closer.
// Reports whether the item was kept.
func (pq *PriorityQueue) PushBounded(item Item, limit int) bool {
	if len(pq.items) < limit {
		pq.Push(item)
		return true
	}
	if !pq.isMaxHeap || len(pq.items) == 0 || item.Distance >= pq.items[0].Distance {
		return false
	}
	pq.items[0] = item
	pq.siftDown(0)
	return true
}

// Pop removes and returns the root of the heap.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if len(pq.items) > 0 {
		pq.siftDown(0)
	}
	return root, true
}

// Sorted returns a copy of the items ordered by ascending distance, ties by id.
func (pq *PriorityQueue) Sorted() []Item {
	out := slices.Clone(pq.items)
	SortByDistance(out)
	return out
}

// SortByDistance orders items by ascending distance, ties by id.
func SortByDistance(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.items[i], pq.items[parent] = pq.items[parent], pq.items[i]
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.items[i], pq.items[child] = pq.items[child], pq.items[i]
		i = child
	}
}
