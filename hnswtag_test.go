package hnswtag_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswtag"
	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/testutil"
)

func newIndex(t *testing.T, space distance.Space, dim, capacity int, opts ...hnswtag.Option) *hnswtag.Index {
	t.Helper()
	opts = append([]hnswtag.Option{hnswtag.WithLogger(hnswtag.NoopLogger())}, opts...)
	idx, err := hnswtag.New(space, dim, capacity, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func toResults(in []testutil.SearchResult) []hnswtag.Result {
	out := make([]hnswtag.Result, len(in))
	for i, r := range in {
		out[i] = hnswtag.Result{Label: r.Label, Distance: r.Distance}
	}
	return out
}

func fromResults(in []hnswtag.Result) []testutil.SearchResult {
	out := make([]testutil.SearchResult, len(in))
	for i, r := range in {
		out[i] = testutil.SearchResult{Label: r.Label, Distance: r.Distance}
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		dim  int
		cap  int
		opts []hnswtag.Option
	}{
		{"ZeroDimension", 0, 10, nil},
		{"ZeroCapacity", 4, 0, nil},
		{"SmallM", 4, 10, []hnswtag.Option{hnswtag.WithM(1)}},
		{"ZeroEF", 4, 10, []hnswtag.Option{hnswtag.WithEF(0)}},
		{"NegativeThreads", 4, 10, []hnswtag.Option{hnswtag.WithNumThreads(-1)}},
		{"SmallTaggedM", 4, 10, []hnswtag.Option{hnswtag.WithTaggedM(1)}},
		{"ZeroMaxSubgraphs", 4, 10, []hnswtag.Option{hnswtag.WithMaxSubgraphs(0)}},
		{"OversizedTable", 1 << 16, 1<<32 - 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hnswtag.New(distance.SpaceL2, tt.dim, tt.cap, tt.opts...)
			assert.ErrorIs(t, err, hnswtag.ErrInvalidArgument)
		})
	}

	t.Run("UnknownSpace", func(t *testing.T) {
		_, err := hnswtag.New(distance.Space(42), 4, 10)
		assert.ErrorIs(t, err, hnswtag.ErrInvalidArgument)
	})

	t.Run("Defaults", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceCosine, 8, 100)
		assert.Equal(t, 8, idx.Dimension())
		assert.Equal(t, 100, idx.Capacity())
		assert.Equal(t, 0, idx.Len())
		assert.Equal(t, distance.SpaceCosine, idx.Space())
		assert.Equal(t, hnswtag.DefaultEF, idx.EF())

		s := idx.Stats()
		assert.Equal(t, hnswtag.DefaultM, s.M)
		assert.Equal(t, 2*hnswtag.DefaultM, s.M0)
		assert.Equal(t, hnswtag.DefaultEFConstruction, s.EFConstruction)
		assert.Equal(t, "cosine", s.Space)
		assert.Equal(t, int64(-1), s.EntryPoint)
	})
}

func TestAddItems(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(1)

	t.Run("AutoLabels", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 20)
		require.NoError(t, idx.AddItems(ctx, rng.UniformVectors(5, 4), nil))
		require.NoError(t, idx.AddItems(ctx, rng.UniformVectors(3, 4), nil))
		assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, idx.Labels())
		assert.Equal(t, 8, idx.Len())
	})

	t.Run("ExplicitLabels", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 20)
		require.NoError(t, idx.AddItems(ctx, rng.UniformVectors(3, 4), []uint64{100, 7, 42}))
		assert.Equal(t, []uint64{100, 7, 42}, idx.Labels())
	})

	t.Run("LabelCountMismatch", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 20)
		err := idx.AddItems(ctx, rng.UniformVectors(3, 4), []uint64{1, 2})
		assert.ErrorIs(t, err, hnswtag.ErrInvalidArgument)
	})

	t.Run("DuplicateInBatch", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 20)
		err := idx.AddItems(ctx, rng.UniformVectors(3, 4), []uint64{1, 2, 1})
		assert.ErrorIs(t, err, hnswtag.ErrDuplicateLabel)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("DuplicateInIndex", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 20)
		require.NoError(t, idx.AddItems(ctx, rng.UniformVectors(2, 4), []uint64{1, 2}))
		err := idx.AddItems(ctx, rng.UniformVectors(2, 4), []uint64{3, 2})
		assert.ErrorIs(t, err, hnswtag.ErrDuplicateLabel)
		assert.Equal(t, 2, idx.Len())
	})

	t.Run("CapacityExceeded", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 4)
		require.NoError(t, idx.AddItems(ctx, rng.UniformVectors(3, 4), nil))
		err := idx.AddItems(ctx, rng.UniformVectors(2, 4), nil)
		assert.ErrorIs(t, err, hnswtag.ErrCapacityExceeded)
		assert.Equal(t, 3, idx.Len())
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 10)
		err := idx.AddItems(ctx, [][]float32{{1, 2, 3, 4}, {1, 2, 3}}, nil)
		require.ErrorIs(t, err, hnswtag.ErrInvalidArgument)

		var dm *hnswtag.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("ZeroVectorCosine", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceCosine, 3, 10)
		err := idx.AddItems(ctx, [][]float32{{1, 0, 0}, {0, 0, 0}}, nil)
		assert.ErrorIs(t, err, hnswtag.ErrInvalidArgument)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("ZeroVectorL2", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 3, 10)
		assert.NoError(t, idx.AddItems(ctx, [][]float32{{0, 0, 0}}, nil))
	})

	t.Run("Canceled", func(t *testing.T) {
		idx := newIndex(t, distance.SpaceL2, 4, 100)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := idx.AddItems(cctx, rng.UniformVectors(50, 4), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAddItemsConcurrent(t *testing.T) {
	ctx := context.Background()
	const (
		writers = 8
		batch   = 50
		dim     = 16
	)
	idx := newIndex(t, distance.SpaceL2, dim, writers*batch, hnswtag.WithNumThreads(4))
	rng := testutil.NewRNG(2)

	var wg sync.WaitGroup
	errs := make([]error, writers)
	all := make([][]float32, 0, writers*batch)
	for w := range writers {
		vectors := rng.UniformVectors(batch, dim)
		all = append(all, vectors...)
		labels := make([]uint64, batch)
		for i := range labels {
			labels[i] = uint64(w*batch + i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w] = idx.AddItems(ctx, vectors, labels)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, writers*batch, idx.Len())
	assert.ElementsMatch(t, rangeLabels(writers*batch), idx.Labels())
	assert.GreaterOrEqual(t, selfRecall(t, idx, all), 0.995)
}

func rangeLabels(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i)
	}
	return out
}

func TestKNNQuery(t *testing.T) {
	ctx := context.Background()

	for _, space := range []distance.Space{distance.SpaceL2, distance.SpaceCosine, distance.SpaceIP} {
		t.Run(space.String(), func(t *testing.T) {
			const (
				n   = 1000
				dim = 16
				k   = 10
			)
			rng := testutil.NewRNG(3)
			vectors := rng.UniformVectors(n, dim)
			if space == distance.SpaceIP {
				vectors = rng.UnitVectors(n, dim)
			}

			idx := newIndex(t, space, dim, n, hnswtag.WithEF(100), hnswtag.WithSeed(7))
			require.NoError(t, idx.AddItems(ctx, vectors, nil))

			queries := rng.UniformVectors(50, dim)
			results, err := idx.KNNQuery(ctx, queries, k)
			require.NoError(t, err)
			require.Len(t, results, len(queries))

			var recall float64
			for i, q := range queries {
				require.Len(t, results[i], k)
				for j := 1; j < k; j++ {
					assert.LessOrEqual(t, results[i][j-1].Distance, results[i][j].Distance)
				}
				truth := testutil.BruteForceSearch(space, vectors, nil, q, k)
				recall += testutil.ComputeRecall(truth, fromResults(results[i]))
			}
			assert.GreaterOrEqual(t, recall/float64(len(queries)), 0.9)
		})
	}
}

func selfRecall(t *testing.T, idx *hnswtag.Index, vectors [][]float32) float64 {
	t.Helper()
	results, err := idx.KNNQuery(context.Background(), vectors, 1)
	require.NoError(t, err)

	hits := 0
	for i, res := range results {
		if len(res) == 1 && res[0].Label == uint64(i) {
			hits++
		}
	}
	return float64(hits) / float64(len(vectors))
}

func TestSelfQuery(t *testing.T) {
	vectors := testutil.NewRNG(4).UniformVectors(1000, 16)

	idx := newIndex(t, distance.SpaceL2, 16, 1000, hnswtag.WithEFConstruction(100))
	require.NoError(t, idx.AddItems(context.Background(), vectors, nil))

	assert.GreaterOrEqual(t, selfRecall(t, idx, vectors), 0.999)
}

// TestParallelBuildRecall checks that a batch inserted on several workers
// is as good as the same batch inserted on one.
func TestParallelBuildRecall(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large recall test in short mode")
	}
	const (
		n   = 10_000
		dim = 16
	)
	ctx := context.Background()
	vectors := testutil.NewRNG(45).UniformVectors(n, dim)

	build := func(threads int) *hnswtag.Index {
		idx := newIndex(t, distance.SpaceL2, dim, n,
			hnswtag.WithEFConstruction(100),
			hnswtag.WithEF(10),
			hnswtag.WithNumThreads(threads))
		// Two batches, like an index that is saved and extended.
		require.NoError(t, idx.AddItems(ctx, vectors[:n/2], nil))
		require.NoError(t, idx.AddItems(ctx, vectors[n/2:], nil))
		return idx
	}

	single := selfRecall(t, build(1), vectors)
	parallel := selfRecall(t, build(4), vectors)

	assert.GreaterOrEqual(t, single, 0.9995)
	assert.GreaterOrEqual(t, parallel, 0.9995)
	assert.InDelta(t, single, parallel, 0.0005)
}

func TestKNNQueryErrors(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, distance.SpaceL2, 4, 10)

	_, err := idx.KNNQuery(ctx, [][]float32{{1, 2, 3, 4}}, 1)
	assert.ErrorIs(t, err, hnswtag.ErrEmptyIndex)

	require.NoError(t, idx.AddItems(ctx, [][]float32{{1, 2, 3, 4}}, nil))

	_, err = idx.KNNQuery(ctx, [][]float32{{1, 2, 3, 4}}, 0)
	assert.ErrorIs(t, err, hnswtag.ErrInvalidArgument)

	_, err = idx.KNNQuery(ctx, [][]float32{{1, 2}}, 1)
	var dm *hnswtag.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)

	res, err := idx.Search(ctx, []float32{1, 2, 3, 4}, 5)
	require.NoError(t, err)
	assert.Equal(t, []hnswtag.Result{{Label: 0, Distance: 0}}, res)
}

func TestSetEF(t *testing.T) {
	idx := newIndex(t, distance.SpaceL2, 4, 10)
	require.NoError(t, idx.SetEF(200))
	assert.Equal(t, 200, idx.EF())
	assert.ErrorIs(t, idx.SetEF(0), hnswtag.ErrInvalidArgument)
	assert.Equal(t, 200, idx.EF())
}

func TestSetNumThreads(t *testing.T) {
	idx := newIndex(t, distance.SpaceL2, 4, 10, hnswtag.WithNumThreads(2))
	assert.Equal(t, 2, idx.NumThreads())
	require.NoError(t, idx.SetNumThreads(6))
	assert.Equal(t, 6, idx.NumThreads())
	assert.ErrorIs(t, idx.SetNumThreads(-1), hnswtag.ErrInvalidArgument)
	assert.ErrorIs(t, idx.SetNumThreads(0), hnswtag.ErrInvalidArgument)
	assert.Equal(t, 6, idx.NumThreads())
}

func TestMarkDeleted(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(5)
	vectors := rng.UniformVectors(200, 8)

	idx := newIndex(t, distance.SpaceL2, 8, 200, hnswtag.WithEF(50))
	require.NoError(t, idx.AddItems(ctx, vectors, nil))

	require.NoError(t, idx.MarkDeleted(10))
	assert.ErrorIs(t, idx.MarkDeleted(1000), hnswtag.ErrUnknownLabel)

	res, err := idx.Search(ctx, vectors[10], 20)
	require.NoError(t, err)
	for _, r := range res {
		assert.NotEqual(t, uint64(10), r.Label)
	}
	assert.Equal(t, 200, idx.Len())
	assert.Equal(t, 1, idx.Stats().Deleted)

	v, err := idx.GetVector(10)
	require.NoError(t, err)
	assert.Equal(t, vectors[10], v)
}

func TestMarkDeletedPropagatesToSubgraphs(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(6)
	vectors := rng.UniformVectors(100, 8)

	idx := newIndex(t, distance.SpaceL2, 8, 100)
	require.NoError(t, idx.AddItems(ctx, vectors, nil))
	require.NoError(t, idx.AddTags(rangeLabels(30), 1))
	require.NoError(t, idx.IndexTagged(ctx, 1))

	require.NoError(t, idx.MarkDeleted(5))

	res, err := idx.SearchTagged(ctx, 1, vectors[5], 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	for _, r := range res {
		assert.NotEqual(t, uint64(5), r.Label)
	}
}

func TestGetVector(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, distance.SpaceCosine, 2, 10)
	require.NoError(t, idx.AddItems(ctx, [][]float32{{3, 4}}, []uint64{9}))

	v, err := idx.GetVector(9)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)

	v[0] = 100
	again, err := idx.GetVector(9)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, again[0], 1e-6)

	_, err = idx.GetVector(1)
	assert.ErrorIs(t, err, hnswtag.ErrUnknownLabel)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	idx, err := hnswtag.New(distance.SpaceL2, 2, 10, hnswtag.WithLogger(hnswtag.NoopLogger()))
	require.NoError(t, err)
	require.NoError(t, idx.AddItems(ctx, [][]float32{{1, 2}}, nil))

	require.NoError(t, idx.Close())
	assert.ErrorIs(t, idx.Close(), hnswtag.ErrClosed)
	assert.ErrorIs(t, idx.AddItems(ctx, [][]float32{{1, 2}}, nil), hnswtag.ErrClosed)
	_, err = idx.KNNQuery(ctx, [][]float32{{1, 2}}, 1)
	assert.ErrorIs(t, err, hnswtag.ErrClosed)
	assert.ErrorIs(t, idx.MarkDeleted(0), hnswtag.ErrClosed)
	assert.ErrorIs(t, idx.AddTags([]uint64{0}, 1), hnswtag.ErrClosed)
}

func TestMetricsCollectorWiring(t *testing.T) {
	ctx := context.Background()
	mc := &hnswtag.BasicMetricsCollector{}
	idx := newIndex(t, distance.SpaceL2, 4, 10, hnswtag.WithMetricsCollector(mc))

	require.NoError(t, idx.AddItems(ctx, testutil.NewRNG(7).UniformVectors(5, 4), nil))
	_, err := idx.KNNQuery(ctx, [][]float32{{1, 1, 1, 1}, {0, 0, 0, 0}}, 2)
	require.NoError(t, err)
	require.NoError(t, idx.MarkDeleted(1))

	s := mc.GetStats()
	assert.Equal(t, int64(5), s.InsertCount)
	assert.Equal(t, int64(2), s.SearchCount)
	assert.Equal(t, int64(1), s.DeleteCount)
	assert.Equal(t, int64(0), s.InsertErrors)
}
