package hnswtag

import (
	"github.com/hupe1980/hnswtag/distance"
)

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level       int
	Nodes       int
	Connections int
	MeanDegree  float64
	StdDegree   float64
}

// SubgraphStats describes a materialized sub-graph.
type SubgraphStats struct {
	Tags  []uint64
	M     int
	Count int
	Stale bool
}

// Stats is a point-in-time description of an index.
type Stats struct {
	Space          string
	Kernel         string
	Dimension      int
	Capacity       int
	Count          int
	Deleted        int
	M              int
	M0             int
	EFConstruction int
	EF             int
	NumThreads     int
	EntryPoint     int64
	MaxLevel       int
	Levels         []LevelStats

	TaggedLabels int
	Tags         int
	TagIDs       []uint64
	Subgraphs    []SubgraphStats
}

// Stats reports graph parameters, per-level degree statistics and the
// state of the tag index.
func (idx *Index) Stats() Stats {
	gs := idx.graph.Stats()
	s := Stats{
		Space:          gs.Space,
		Kernel:         distance.Kernel(),
		Dimension:      gs.Dimension,
		Capacity:       gs.Capacity,
		Count:          gs.Count,
		Deleted:        gs.Deleted,
		M:              gs.M,
		M0:             gs.M0,
		EFConstruction: gs.EFConstruction,
		EF:             idx.EF(),
		NumThreads:     idx.NumThreads(),
		EntryPoint:     gs.EntryPoint,
		MaxLevel:       gs.MaxLevel,
		Levels:         make([]LevelStats, len(gs.Levels)),
	}
	for i, l := range gs.Levels {
		s.Levels[i] = LevelStats(l)
	}

	idx.tagsMu.Lock()
	defer idx.tagsMu.Unlock()
	s.TaggedLabels = idx.tagTable.NumLabels()
	s.Tags = idx.tagTable.NumTags()
	s.TagIDs = idx.tagTable.TagIDs()
	for _, sg := range idx.registry.Subgraphs() {
		s.Subgraphs = append(s.Subgraphs, SubgraphStats{
			Tags:  sg.Tags,
			M:     sg.M,
			Count: sg.Graph.Len(),
			Stale: sg.Stale(),
		})
	}
	return s
}
