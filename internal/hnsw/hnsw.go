package hnsw

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/internal/queue"
	"github.com/hupe1980/hnswtag/internal/store"
)

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// MinimumM is the smallest M for which the level distribution is defined.
	MinimumM = 2

	// DefaultM is the default number of bidirectional links.
	DefaultM = 16

	// DefaultEFConstruction is the default size of the construction candidate list.
	DefaultEFConstruction = 200

	// noEntryPoint marks an empty graph.
	noEntryPoint = -1
)

// Options represents the options for configuring HNSW.
type Options struct {
	Dimension      int
	Capacity       int
	M              int
	EFConstruction int
	Space          distance.Space
	RandomSeed     int64
}

// DefaultOptions contains the default options for HNSW.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Space:          distance.SpaceL2,
	RandomSeed:     100,
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	opts     Options
	store    *store.Store
	distance distance.Func

	maxConnectionsPerLayer int
	maxConnectionsLayer0   int
	layerMultiplier        float64
	rngSeed                atomic.Uint64

	// entryMu guards entryPoint and maxLevel as one snapshot.
	entryMu    sync.RWMutex
	entryPoint int64
	maxLevel   int

	// growMu is held by inserts that start on an empty graph or raise maxLevel.
	growMu sync.Mutex

	visited *queue.VisitedPool
}

// New creates a new HNSW instance.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	switch {
	case opts.Dimension <= 0:
		return nil, fmt.Errorf("%w: dimension %d", ErrInvalidOption, opts.Dimension)
	case opts.Capacity <= 0:
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidOption, opts.Capacity)
	case opts.M < MinimumM:
		return nil, fmt.Errorf("%w: M %d is below %d", ErrInvalidOption, opts.M, MinimumM)
	case opts.EFConstruction <= 0:
		return nil, fmt.Errorf("%w: efConstruction %d", ErrInvalidOption, opts.EFConstruction)
	case !opts.Space.Valid():
		return nil, fmt.Errorf("%w: space %v", ErrInvalidOption, opts.Space)
	}

	distFunc, err := distance.Provider(opts.Space)
	if err != nil {
		return nil, err
	}

	m0 := opts.M * mmax0Multiplier
	st, err := store.New(opts.Capacity, opts.Dimension, opts.M, m0)
	if err != nil {
		return nil, err
	}

	h := &HNSW{
		opts:                   opts,
		store:                  st,
		distance:               distFunc,
		maxConnectionsPerLayer: opts.M,
		maxConnectionsLayer0:   m0,
		layerMultiplier:        1 / math.Log(float64(opts.M)),
		entryPoint:             noEntryPoint,
		visited:                queue.NewVisitedPool(opts.Capacity),
	}
	h.rngSeed.Store(uint64(opts.RandomSeed))
	return h, nil
}

// Dimension returns the vector dimension.
func (h *HNSW) Dimension() int { return h.opts.Dimension }

// Capacity returns the maximum number of elements.
func (h *HNSW) Capacity() int { return h.opts.Capacity }

// M returns the max connections per node above layer 0.
func (h *HNSW) M() int { return h.maxConnectionsPerLayer }

// EFConstruction returns the construction candidate list size.
func (h *HNSW) EFConstruction() int { return h.opts.EFConstruction }

// Space returns the distance space of the graph.
func (h *HNSW) Space() distance.Space { return h.opts.Space }

// Len returns the number of elements, deleted ones included.
func (h *HNSW) Len() int { return h.store.Len() }

// Store exposes the element table.
func (h *HNSW) Store() *store.Store { return h.store }

// EntryPoint returns a consistent snapshot of the entry point and max level.
// The entry point is -1 while the graph is empty.
func (h *HNSW) EntryPoint() (int64, int) {
	h.entryMu.RLock()
	defer h.entryMu.RUnlock()
	return h.entryPoint, h.maxLevel
}

// Restore installs a persisted entry point after the store has been filled.
func (h *HNSW) Restore(entryPoint int64, maxLevel int) error {
	n := int64(h.store.Len())
	switch {
	case entryPoint == noEntryPoint && n == 0:
	case entryPoint < 0 || entryPoint >= n:
		return fmt.Errorf("%w: entry point %d with %d elements", ErrCorruptGraph, entryPoint, n)
	case h.store.Level(uint32(entryPoint)) != maxLevel:
		return fmt.Errorf("%w: entry point level %d, max level %d", ErrCorruptGraph, h.store.Level(uint32(entryPoint)), maxLevel)
	}

	h.entryMu.Lock()
	h.entryPoint = entryPoint
	h.maxLevel = maxLevel
	h.entryMu.Unlock()
	return nil
}

// MarkDeleted flags label so that it is no longer returned by searches.
func (h *HNSW) MarkDeleted(label uint64) error {
	return h.store.MarkDeleted(label)
}

// Vector returns a copy of the stored vector for label.
func (h *HNSW) Vector(label uint64) ([]float32, bool) {
	id, ok := h.store.Lookup(label)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), h.store.Vector(id)...), true
}

func (h *HNSW) maxConnections(layer int) int {
	if layer == 0 {
		return h.maxConnectionsLayer0
	}
	return h.maxConnectionsPerLayer
}

// randomLevel draws floor(-ln(U) * mL) from a per-instance xorshift64* stream.
func (h *HNSW) randomLevel() int {
	seed := h.rngSeed.Add(0x9E3779B97F4A7C15)
	seed ^= seed >> 12
	seed ^= seed << 25
	seed ^= seed >> 27
	r := float64(seed*0x2545F4914F6CDD1D>>11) / float64(1<<53)
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(r) * h.layerMultiplier))
}

func (h *HNSW) prepareVector(v []float32) ([]float32, error) {
	if len(v) != h.opts.Dimension {
		return nil, &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(v)}
	}
	if h.opts.Space.Normalized() {
		vec, ok := distance.NormalizeL2Copy(v)
		if !ok {
			return nil, ErrZeroVector
		}
		return vec, nil
	}
	return v, nil
}
