package hnsw

import (
	"github.com/hupe1980/hnswtag/internal/queue"
)

// Search returns up to k approximate nearest neighbors of q ordered by
// ascending distance. ef is raised to k when smaller. Deleted elements are
// traversed but never returned.
func (h *HNSW) Search(q []float32, k, ef int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	q, err := h.prepareVector(q)
	if err != nil {
		return nil, err
	}

	entryPoint, maxLevel := h.EntryPoint()
	if entryPoint == noEntryPoint {
		return nil, ErrEmptyGraph
	}
	ef = max(ef, k)

	ep := uint32(entryPoint)
	curr := queue.Item{ID: ep, Distance: h.distance(q, h.store.Vector(ep))}
	buf := make([]uint32, 0, h.maxConnectionsLayer0)
	for layer := maxLevel; layer > 0; layer-- {
		curr, buf = h.greedySearch(q, curr, layer, buf)
	}

	results := h.searchLayer(q, []queue.Item{curr}, ef, 0, true).Sorted()
	if len(results) > k {
		results = results[:k]
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: r.ID, Label: h.store.Label(r.ID), Distance: r.Distance}
	}
	return out, nil
}

// greedySearch walks layer from curr, moving to the closest neighbor until
// no neighbor improves the distance.
func (h *HNSW) greedySearch(q []float32, curr queue.Item, layer int, buf []uint32) (queue.Item, []uint32) {
	for changed := true; changed; {
		changed = false
		buf = h.store.Neighbors(curr.ID, layer, buf)
		for _, n := range buf {
			if d := h.distance(q, h.store.Vector(n)); d < curr.Distance {
				curr = queue.Item{ID: n, Distance: d}
				changed = true
			}
		}
	}
	return curr, buf
}

// searchLayer runs a best-first search bounded by ef on a single layer.
// The returned max-heap holds at most ef items. With skipDeleted set,
// deleted elements are expanded but not admitted to the results.
func (h *HNSW) searchLayer(q []float32, entryPoints []queue.Item, ef, layer int, skipDeleted bool) *queue.PriorityQueue {
	visited := h.visited.Get()
	defer h.visited.Put(visited)

	candidates := queue.NewMin(ef * 2)
	results := queue.NewMax(ef + 1)

	for _, ep := range entryPoints {
		if !visited.Visit(ep.ID) {
			continue
		}
		candidates.Push(ep)
		if !skipDeleted || !h.store.IsDeleted(ep.ID) {
			results.PushBounded(ep, ef)
		}
	}

	buf := make([]uint32, 0, h.maxConnections(layer))
	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()
		if worst, ok := results.Top(); ok && results.Len() >= ef && curr.Distance > worst.Distance {
			break
		}

		buf = h.store.Neighbors(curr.ID, layer, buf)
		for _, n := range buf {
			if !visited.Visit(n) {
				continue
			}
			d := h.distance(q, h.store.Vector(n))
			if worst, ok := results.Top(); results.Len() < ef || !ok || d < worst.Distance {
				item := queue.Item{ID: n, Distance: d}
				candidates.Push(item)
				if !skipDeleted || !h.store.IsDeleted(n) {
					results.PushBounded(item, ef)
				}
			}
		}
	}
	return results
}
