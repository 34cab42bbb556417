package hnsw

import (
	"gonum.org/v1/gonum/stat"
)

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	entryPoint, maxLevel := h.EntryPoint()
	n := h.store.Len()

	deleted := 0
	for i := range n {
		if h.store.IsDeleted(uint32(i)) {
			deleted++
		}
	}

	s := Stats{
		Space:          h.opts.Space.String(),
		Dimension:      h.opts.Dimension,
		Capacity:       h.opts.Capacity,
		Count:          n,
		Deleted:        deleted,
		M:              h.maxConnectionsPerLayer,
		M0:             h.maxConnectionsLayer0,
		EFConstruction: h.opts.EFConstruction,
		EntryPoint:     entryPoint,
		MaxLevel:       maxLevel,
	}
	if entryPoint == noEntryPoint {
		return s
	}

	s.Levels = make([]LevelStats, 0, maxLevel+1)
	for level := 0; level <= maxLevel; level++ {
		degrees := h.store.Degrees(level)
		ls := LevelStats{Level: level, Nodes: len(degrees)}
		for _, d := range degrees {
			ls.Connections += int(d)
		}
		if len(degrees) > 1 {
			ls.MeanDegree, ls.StdDegree = stat.MeanStdDev(degrees, nil)
		} else if len(degrees) == 1 {
			ls.MeanDegree = degrees[0]
		}
		s.Levels = append(s.Levels, ls)
	}
	return s
}
