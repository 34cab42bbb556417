package tags

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/hnswtag/internal/hnsw"
	"github.com/hupe1980/hnswtag/internal/workers"
)

var (
	// ErrInsufficientElements is returned when a tag set has too few members for M.
	ErrInsufficientElements = errors.New("tags: insufficient elements")
	// ErrMissingLabel is returned when a member is not present in the parent graph.
	ErrMissingLabel = errors.New("tags: member label missing from graph")
)

// InsufficientElementsError reports the member count of a rejected key.
type InsufficientElementsError struct {
	Key   Key
	Count uint64
	M     int
}

func (e *InsufficientElementsError) Error() string {
	return fmt.Sprintf("tags: cannot index %q: %d elements, need more than %d", e.Key, e.Count, e.M)
}

func (e *InsufficientElementsError) Unwrap() error { return ErrInsufficientElements }

// BuildOptions configures a sub-graph build.
type BuildOptions struct {
	M              int
	EFConstruction int
	RandomSeed     int64
}

// Build constructs a sub-graph over members, copying their vectors out of
// parent. Members deleted in the parent stay deleted in the sub-graph.
// Requires more than M members.
func Build(ctx context.Context, parent *hnsw.HNSW, key Key, tags []uint64, members *roaring64.Bitmap, opts BuildOptions, pool *workers.Pool) (*Subgraph, error) {
	count := members.GetCardinality()
	if count <= uint64(opts.M) {
		return nil, &InsufficientElementsError{Key: key, Count: count, M: opts.M}
	}

	labels := members.ToArray()
	st := parent.Store()
	ids := make([]uint32, len(labels))
	for i, label := range labels {
		id, ok := st.Lookup(label)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrMissingLabel, label)
		}
		ids[i] = id
	}

	g, err := hnsw.New(func(o *hnsw.Options) {
		o.Dimension = parent.Dimension()
		o.Capacity = len(labels)
		o.M = opts.M
		o.EFConstruction = opts.EFConstruction
		o.Space = parent.Space()
		o.RandomSeed = opts.RandomSeed
	})
	if err != nil {
		return nil, err
	}

	err = pool.ParallelFor(ctx, len(labels), func(i int) error {
		if _, err := g.Insert(st.Vector(ids[i]), labels[i]); err != nil {
			return err
		}
		if st.IsDeleted(ids[i]) {
			return g.MarkDeleted(labels[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Subgraph{
		Key:      key,
		Tags:     tags,
		M:        opts.M,
		Graph:    g,
		Coverage: members,
	}, nil
}
