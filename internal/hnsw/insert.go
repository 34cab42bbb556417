package hnsw

import (
	"slices"

	"github.com/hupe1980/hnswtag/internal/queue"
)

// Insert adds vec under label and links it into every layer up to its level.
// Validation happens before any state changes, so a failed insert leaves the
// graph untouched.
func (h *HNSW) Insert(vec []float32, label uint64) (uint32, error) {
	vec, err := h.prepareVector(vec)
	if err != nil {
		return 0, err
	}

	level := h.randomLevel()
	id, err := h.store.Append(vec, label, level)
	if err != nil {
		return 0, err
	}

	entryPoint, maxLevel := h.EntryPoint()
	if entryPoint == noEntryPoint || level > maxLevel {
		// Elements that raise the top layer are linked one at a time, so the
		// layers above the old maximum are never built from a stale entry point.
		h.growMu.Lock()
		defer h.growMu.Unlock()

		entryPoint, maxLevel = h.EntryPoint()
		if entryPoint == noEntryPoint {
			h.setEntryPoint(id, level)
			return id, nil
		}
	}

	h.insertNode(id, h.store.Vector(id), level, uint32(entryPoint), maxLevel)

	if level > maxLevel {
		h.setEntryPoint(id, level)
	}
	return id, nil
}

func (h *HNSW) setEntryPoint(id uint32, level int) {
	h.entryMu.Lock()
	h.entryPoint = int64(id)
	h.maxLevel = level
	h.entryMu.Unlock()
}

// insertNode selects the neighbors of id on every layer before linking it.
// id only becomes reachable through the back-links added last, so no
// concurrent search ever enters it while its own lists are incomplete.
func (h *HNSW) insertNode(id uint32, vec []float32, level int, entryPoint uint32, maxLevel int) {
	curr := queue.Item{ID: entryPoint, Distance: h.distance(vec, h.store.Vector(entryPoint))}
	buf := make([]uint32, 0, h.maxConnectionsLayer0)

	for layer := maxLevel; layer > level; layer-- {
		curr, buf = h.greedySearch(vec, curr, layer, buf)
	}

	top := min(level, maxLevel)
	selected := make([][]queue.Item, top+1)
	entryPoints := []queue.Item{curr}
	for layer := top; layer >= 0; layer-- {
		candidates := h.searchLayer(vec, entryPoints, h.opts.EFConstruction, layer, false).Sorted()
		selected[layer] = h.selectNeighbors(candidates, h.maxConnections(layer), id)
		entryPoints = candidates
	}

	for layer, neighbors := range selected {
		ids := make([]uint32, len(neighbors))
		for i, n := range neighbors {
			ids[i] = n.ID
		}
		h.store.SetNeighbors(id, layer, ids)
	}

	for layer, neighbors := range selected {
		for _, n := range neighbors {
			h.addConnection(n.ID, id, n.Distance, layer)
		}
	}
}

// selectNeighbors keeps, in ascending distance order, every candidate that
// is closer to the base vector than to any candidate already kept.
// candidates must be sorted by ascending distance.
func (h *HNSW) selectNeighbors(candidates []queue.Item, m int, self uint32) []queue.Item {
	selected := make([]queue.Item, 0, m)
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		if c.ID == self {
			continue
		}
		cv := h.store.Vector(c.ID)
		good := true
		for _, s := range selected {
			if h.distance(h.store.Vector(s.ID), cv) < c.Distance {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		}
	}
	return selected
}

// addConnection links target back to source. When the target's list is
// full the union of its neighbors and source is re-selected by the heuristic.
func (h *HNSW) addConnection(target, source uint32, dist float32, layer int) {
	maxConn := h.maxConnections(layer)
	h.store.UpdateNeighbors(target, layer, func(links []uint32) []uint32 {
		if slices.Contains(links, source) {
			return links
		}
		if len(links) < maxConn {
			return append(links, source)
		}

		tv := h.store.Vector(target)
		candidates := make([]queue.Item, 0, len(links)+1)
		candidates = append(candidates, queue.Item{ID: source, Distance: dist})
		for _, n := range links {
			candidates = append(candidates, queue.Item{ID: n, Distance: h.distance(tv, h.store.Vector(n))})
		}
		queue.SortByDistance(candidates)

		selected := h.selectNeighbors(candidates, maxConn, target)
		links = links[:0]
		for _, s := range selected {
			links = append(links, s.ID)
		}
		return links
	})
}
