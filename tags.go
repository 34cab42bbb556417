package hnswtag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/hnswtag/internal/hnsw"
	"github.com/hupe1980/hnswtag/internal/tags"
)

// AddTags attaches tag to every label. All labels must be present in the
// index, otherwise nothing changes and ErrUnknownLabel is returned.
// Sub-graphs built over tag, or covering any of the labels, become stale.
func (idx *Index) AddTags(labels []uint64, tag uint64) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	st := idx.graph.Store()
	for _, label := range labels {
		if _, ok := st.Lookup(label); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownLabel, label)
		}
	}
	if len(labels) == 0 {
		return nil
	}

	idx.tagsMu.Lock()
	defer idx.tagsMu.Unlock()

	idx.tagTable.Add(labels, tag)
	idx.registry.InvalidateTagged(tag, roaring64.BitmapOf(labels...))
	return nil
}

// GetTags returns the tags of label in ascending order, empty if none.
func (idx *Index) GetTags(label uint64) []uint64 {
	idx.tagsMu.Lock()
	defer idx.tagsMu.Unlock()
	return idx.tagTable.Tags(label)
}

// ResetTags clears the tag table. Every sub-graph becomes stale; the
// graph itself is not touched.
func (idx *Index) ResetTags() error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	idx.tagsMu.Lock()
	defer idx.tagsMu.Unlock()

	idx.tagTable.Reset()
	idx.registry.InvalidateAll()
	return nil
}

// IndexTagged builds a sub-graph over the elements carrying tag, replacing
// any previous one. m defaults to the tagged M of the index. The tag must
// have more than m elements.
func (idx *Index) IndexTagged(ctx context.Context, tag uint64, m ...int) error {
	return idx.IndexCrossTagged(ctx, []uint64{tag}, m...)
}

// IndexCrossTagged builds a sub-graph over the elements carrying any of
// tagSet. The union must have more than m elements.
func (idx *Index) IndexCrossTagged(ctx context.Context, tagSet []uint64, m ...int) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	if len(tagSet) == 0 {
		return fmt.Errorf("%w: empty tag set", ErrInvalidArgument)
	}
	subM := idx.opts.taggedM
	switch len(m) {
	case 0:
	case 1:
		subM = m[0]
	default:
		return fmt.Errorf("%w: more than one m", ErrInvalidArgument)
	}
	if subM < hnsw.MinimumM {
		return fmt.Errorf("%w: m %d is below %d", ErrInvalidArgument, subM, hnsw.MinimumM)
	}

	idx.tagsMu.Lock()
	defer idx.tagsMu.Unlock()

	_, err := idx.materializeLocked(ctx, tagSet, subM)
	return err
}

func (idx *Index) materializeLocked(ctx context.Context, tagSet []uint64, m int) (*tags.Subgraph, error) {
	tagSet = slices.Compact(slices.Sorted(slices.Values(tagSet)))
	key := tags.KeyFor(tagSet...)
	members := idx.tagTable.Members(tagSet...)

	start := time.Now()
	sg, err := tags.Build(ctx, idx.graph, key, tagSet, members, tags.BuildOptions{
		M:              m,
		EFConstruction: idx.graph.EFConstruction(),
		RandomSeed:     idx.opts.seed,
	}, idx.pool)

	var ie *tags.InsufficientElementsError
	if errors.As(err, &ie) {
		err = &InsufficientElementsError{Tags: tagSet, Count: ie.Count, M: ie.M}
	} else {
		err = translateError(err)
	}

	count := int(members.GetCardinality())
	idx.metrics.RecordMaterialize(count, time.Since(start), err)
	idx.logger.LogMaterialize(ctx, tagSet, count, m, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	idx.registry.Put(sg)
	return sg, nil
}

// SearchTagged searches the sub-graph of tag and returns parent labels.
func (idx *Index) SearchTagged(ctx context.Context, tag uint64, q []float32, k int) ([]Result, error) {
	return idx.SearchCrossTagged(ctx, []uint64{tag}, q, k)
}

// SearchCrossTagged searches the sub-graph of tagSet. A missing sub-graph is
// built first when lazy sub-graphs are enabled. A stale one is an error
// until it is rebuilt with IndexTagged or IndexCrossTagged.
func (idx *Index) SearchCrossTagged(ctx context.Context, tagSet []uint64, q []float32, k int) ([]Result, error) {
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k %d", ErrInvalidArgument, k)
	}
	if len(tagSet) == 0 {
		return nil, fmt.Errorf("%w: empty tag set", ErrInvalidArgument)
	}

	sg, err := idx.subgraph(ctx, tagSet)
	if err != nil {
		return nil, err
	}
	if sg.Stale() {
		return nil, fmt.Errorf("%w: tags %v", ErrStaleSubgraph, sg.Tags)
	}

	res, err := idx.search(sg.Graph, q, k, idx.EF())
	idx.logger.WithSubgraph(sg.Tags).LogSearch(ctx, 1, k, err)
	return res, err
}

func (idx *Index) subgraph(ctx context.Context, tagSet []uint64) (*tags.Subgraph, error) {
	key := tags.KeyFor(tagSet...)
	if sg, ok := idx.registry.Get(key); ok {
		return sg, nil
	}
	if !idx.opts.lazySubgraphs {
		return nil, fmt.Errorf("%w: tags %v", ErrSubgraphNotFound, tagSet)
	}

	idx.tagsMu.Lock()
	defer idx.tagsMu.Unlock()
	if sg, ok := idx.registry.Get(key); ok {
		return sg, nil
	}
	return idx.materializeLocked(ctx, tagSet, idx.opts.taggedM)
}
