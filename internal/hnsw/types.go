package hnsw

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyGraph    = errors.New("hnsw: graph is empty")
	ErrInvalidK      = errors.New("hnsw: k must be positive")
	ErrInvalidOption = errors.New("hnsw: invalid option")
	ErrZeroVector    = errors.New("hnsw: cannot normalize zero vector")
	ErrCorruptGraph  = errors.New("hnsw: corrupt graph")
)

type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// SearchResult is a single neighbor returned by Search.
type SearchResult struct {
	ID       uint32
	Label    uint64
	Distance float32
}

type LevelStats struct {
	Level       int
	Nodes       int
	Connections int
	MeanDegree  float64
	StdDegree   float64
}

type Stats struct {
	Space          string
	Dimension      int
	Capacity       int
	Count          int
	Deleted        int
	M              int
	M0             int
	EFConstruction int
	EntryPoint     int64
	MaxLevel       int
	Levels         []LevelStats
}
