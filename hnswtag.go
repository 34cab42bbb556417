package hnswtag

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/internal/hnsw"
	"github.com/hupe1980/hnswtag/internal/tags"
	"github.com/hupe1980/hnswtag/internal/workers"
	"github.com/hupe1980/hnswtag/persistence"
)

// progressInterval bounds how often AddItems logs its progress.
const progressInterval = 5 * time.Second

// Result is one neighbor of a query.
type Result struct {
	Label    uint64
	Distance float32
}

// Index is an HNSW index with tag-filtered sub-graphs.
// All methods are safe for concurrent use.
type Index struct {
	graph *hnsw.HNSW
	pool  *workers.Pool
	ef    atomic.Int64

	// mu is held shared by mutations of the graph and exclusively by Save.
	mu sync.RWMutex

	// tagsMu serializes tag mutations and sub-graph builds.
	tagsMu   sync.Mutex
	tagTable *tags.Table
	registry *tags.Registry

	opts    options
	logger  *Logger
	metrics MetricsCollector
	closed  atomic.Bool
}

// New creates an empty index for capacity vectors of dimension dim.
func New(space distance.Space, dim, capacity int, optFns ...Option) (*Index, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}

	g, err := hnsw.New(func(ho *hnsw.Options) {
		ho.Dimension = dim
		ho.Capacity = capacity
		ho.M = o.m
		ho.EFConstruction = o.efConstruction
		ho.Space = space
		ho.RandomSeed = o.seed
	})
	if err != nil {
		return nil, translateError(err)
	}
	return newIndex(g, tags.NewTable(), o)
}

func newIndex(g *hnsw.HNSW, table *tags.Table, o options) (*Index, error) {
	idx := &Index{
		graph:    g,
		pool:     workers.New(o.numThreads),
		tagTable: table,
		opts:     o,
		logger:   o.logger,
		metrics:  o.metricsCollector,
	}
	idx.ef.Store(int64(o.ef))

	registry, err := tags.NewRegistry(o.maxSubgraphs, func(key tags.Key) {
		idx.logger.Debug("sub-graph evicted", "key", string(key))
	})
	if err != nil {
		return nil, translateError(err)
	}
	idx.registry = registry
	return idx, nil
}

func (o *options) validate() error {
	switch {
	case o.ef <= 0:
		return fmt.Errorf("%w: ef %d", ErrInvalidArgument, o.ef)
	case o.numThreads < 0:
		return fmt.Errorf("%w: num threads %d", ErrInvalidArgument, o.numThreads)
	case o.taggedM < hnsw.MinimumM:
		return fmt.Errorf("%w: tagged M %d is below %d", ErrInvalidArgument, o.taggedM, hnsw.MinimumM)
	case o.maxSubgraphs <= 0:
		return fmt.Errorf("%w: max sub-graphs %d", ErrInvalidArgument, o.maxSubgraphs)
	case o.capacity < 0:
		return fmt.Errorf("%w: capacity %d", ErrInvalidArgument, o.capacity)
	}
	if _, err := persistence.ParseCompression(o.compression.String()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

func (idx *Index) checkOpen() error {
	if idx.closed.Load() {
		return ErrClosed
	}
	return nil
}

// AddItems inserts vectors on the worker pool. If labels is nil the vectors
// are labeled with consecutive integers starting at Len().
//
// Shapes, capacity and label uniqueness are checked before anything is
// inserted. A failure during insertion leaves the vectors inserted so far in
// place.
func (idx *Index) AddItems(ctx context.Context, vectors [][]float32, labels []uint64) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	if labels != nil && len(labels) != len(vectors) {
		return fmt.Errorf("%w: %d vectors with %d labels", ErrInvalidArgument, len(vectors), len(labels))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	start := time.Now()
	n := len(vectors)
	labels, err := idx.prepareBatch(vectors, labels)
	if err != nil {
		idx.metrics.RecordBatchInsert(n, n, time.Since(start))
		idx.logger.LogBatchInsert(ctx, n, 0, time.Since(start), err)
		return err
	}

	var inserted atomic.Int64
	progress := rate.Sometimes{Interval: progressInterval}
	err = idx.pool.ParallelFor(ctx, n, func(i int) error {
		t := time.Now()
		_, err := idx.graph.Insert(vectors[i], labels[i])
		idx.metrics.RecordInsert(time.Since(t), err)
		if err != nil {
			idx.logger.LogInsert(ctx, labels[i], err)
			return translateError(err)
		}
		idx.logger.LogInsert(ctx, labels[i], nil)

		done := inserted.Add(1)
		progress.Do(func() {
			idx.logger.LogProgress(ctx, int(done), n)
		})
		return nil
	})

	done := int(inserted.Load())
	idx.metrics.RecordBatchInsert(n, n-done, time.Since(start))
	idx.logger.LogBatchInsert(ctx, n, done, time.Since(start), err)
	return err
}

// prepareBatch validates a batch and assigns labels when none are given.
func (idx *Index) prepareBatch(vectors [][]float32, labels []uint64) ([]uint64, error) {
	dim := idx.graph.Dimension()
	normalized := idx.graph.Space().Normalized()
	for _, v := range vectors {
		if len(v) != dim {
			return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
		if normalized && isZero(v) {
			return nil, fmt.Errorf("%w: zero vector in %s space", ErrInvalidArgument, idx.graph.Space())
		}
	}

	base := idx.graph.Len()
	if base+len(vectors) > idx.graph.Capacity() {
		return nil, fmt.Errorf("%w: %d elements plus %d new exceed capacity %d",
			ErrCapacityExceeded, base, len(vectors), idx.graph.Capacity())
	}

	if labels == nil {
		labels = make([]uint64, len(vectors))
		for i := range labels {
			labels[i] = uint64(base + i)
		}
	}

	st := idx.graph.Store()
	seen := make(map[uint64]struct{}, len(labels))
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			return nil, fmt.Errorf("%w: %d repeated in batch", ErrDuplicateLabel, label)
		}
		if _, ok := st.Lookup(label); ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateLabel, label)
		}
		seen[label] = struct{}{}
	}
	return labels, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// KNNQuery returns the k approximate nearest neighbors of every query, each
// ordered by ascending distance. Queries run on the worker pool with the
// current ef.
func (idx *Index) KNNQuery(ctx context.Context, queries [][]float32, k int) ([][]Result, error) {
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k %d", ErrInvalidArgument, k)
	}

	ef := idx.EF()
	out := make([][]Result, len(queries))
	err := idx.pool.ParallelFor(ctx, len(queries), func(i int) error {
		res, err := idx.search(idx.graph, queries[i], k, ef)
		if err != nil {
			return err
		}
		out[i] = res
		return nil
	})
	idx.logger.LogSearch(ctx, len(queries), k, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Search returns the k approximate nearest neighbors of q.
func (idx *Index) Search(ctx context.Context, q []float32, k int) ([]Result, error) {
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k %d", ErrInvalidArgument, k)
	}
	res, err := idx.search(idx.graph, q, k, idx.EF())
	idx.logger.LogSearch(ctx, 1, k, err)
	return res, err
}

func (idx *Index) search(g *hnsw.HNSW, q []float32, k, ef int) ([]Result, error) {
	start := time.Now()
	found, err := g.Search(q, k, ef)
	idx.metrics.RecordSearch(k, time.Since(start), err)
	if err != nil {
		return nil, translateError(err)
	}

	out := make([]Result, len(found))
	for i, r := range found {
		out[i] = Result{Label: r.Label, Distance: r.Distance}
	}
	return out, nil
}

// SetEF sets the query candidate list size. Queries with k > ef use k.
func (idx *Index) SetEF(ef int) error {
	if ef <= 0 {
		return fmt.Errorf("%w: ef %d", ErrInvalidArgument, ef)
	}
	idx.ef.Store(int64(ef))
	return nil
}

// EF returns the query candidate list size.
func (idx *Index) EF() int { return int(idx.ef.Load()) }

// SetNumThreads resizes the worker pool used by AddItems, KNNQuery and
// sub-graph builds. Calls already running keep their old size.
func (idx *Index) SetNumThreads(n int) error {
	return translateError(idx.pool.Resize(n))
}

// NumThreads returns the worker pool size.
func (idx *Index) NumThreads() int { return idx.pool.Size() }

// MarkDeleted soft-deletes label. It is no longer returned by any search,
// including searches of sub-graphs that cover it, but stays in the graph.
func (idx *Index) MarkDeleted(label uint64) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	start := time.Now()
	err := idx.graph.MarkDeleted(label)
	if err == nil {
		idx.tagsMu.Lock()
		for _, sg := range idx.registry.Covering(label) {
			// Coverage was taken from the parent, so label is present.
			if err := sg.Graph.MarkDeleted(label); err != nil {
				idx.logger.Warn("sub-graph delete failed", "tags", sg.Tags, "label", label, "error", err)
			}
		}
		idx.tagsMu.Unlock()
	}
	idx.metrics.RecordDelete(time.Since(start), err)
	return translateError(err)
}

// GetVector returns a copy of the stored vector of label. Vectors of a
// cosine index are stored normalized.
func (idx *Index) GetVector(label uint64) ([]float32, error) {
	v, ok := idx.graph.Vector(label)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLabel, label)
	}
	return v, nil
}

// Labels returns the labels of all elements in insertion order.
func (idx *Index) Labels() []uint64 { return idx.graph.Store().Labels() }

// Len returns the number of elements, soft-deleted ones included.
func (idx *Index) Len() int { return idx.graph.Len() }

// Capacity returns the maximum number of elements.
func (idx *Index) Capacity() int { return idx.graph.Capacity() }

// Dimension returns the vector dimension.
func (idx *Index) Dimension() int { return idx.graph.Dimension() }

// Space returns the distance space.
func (idx *Index) Space() distance.Space { return idx.graph.Space() }

// Close releases the materialized sub-graphs. Every later call that needs
// the index returns ErrClosed.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	idx.tagsMu.Lock()
	idx.registry.Purge()
	idx.tagsMu.Unlock()
	return nil
}
