package testutil

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/hnswtag/distance"
)

// SearchResult is one exact or approximate neighbor.
type SearchResult struct {
	Label    uint64
	Distance float32
}

// RNG is a seeded, mutex-guarded generator for test data.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG returns a generator whose output depends only on seed.
func NewRNG(seed int64) *RNG {
	s := uint64(seed)
	return &RNG{rand: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)), seed: seed}
}

// Seed returns the seed the generator was created with.
func (r *RNG) Seed() int64 { return r.seed }

// matrix allocates num vectors of dim values over one backing array and
// fills each with fill while holding the lock.
func (r *RNG) matrix(num, dim int, fill func(i int, vec []float32)) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range out {
		out[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
		fill(i, out[i])
	}
	return out
}

// UniformVectors returns num vectors with values in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	return r.matrix(num, dim, func(_ int, vec []float32) {
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
	})
}

// UnitVectors returns num vectors drawn uniformly from the unit sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	return r.matrix(num, dim, func(_ int, vec []float32) {
		var norm float64
		for j := range vec {
			x := r.rand.NormFloat64()
			vec[j] = float32(x)
			norm += x * x
		}
		if norm == 0 {
			vec[0], norm = 1, 1
		}
		scale := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= scale
		}
	})
}

// ClusteredVectors returns num vectors scattered with Gaussian noise of
// the given spread around clusters random unit centroids. Vector i belongs
// to cluster i % clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)
	return r.matrix(num, dim, func(i int, vec []float32) {
		c := centroids[i%clusters]
		for j := range vec {
			vec[j] = c[j] + spread*float32(r.rand.NormFloat64())
		}
	})
}

// Sample returns min(n, total) distinct labels from [0, total).
func (r *RNG) Sample(total, n int) []uint64 {
	r.mu.Lock()
	perm := r.rand.Perm(total)
	r.mu.Unlock()

	out := make([]uint64, min(n, total))
	for i := range out {
		out[i] = uint64(perm[i])
	}
	return out
}

// ComputeRecall returns the fraction of the first k ground-truth labels
// found in approximate, where k is the shorter length. Two empty slices
// have recall 1.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	k := min(len(groundTruth), len(approximate))
	if k == 0 {
		if len(groundTruth) == len(approximate) {
			return 1
		}
		return 0
	}

	truth := make(map[uint64]struct{}, k)
	for _, r := range groundTruth[:k] {
		truth[r.Label] = struct{}{}
	}
	hits := 0
	for _, r := range approximate[:k] {
		if _, ok := truth[r.Label]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// BruteForceSearch returns the exact k nearest neighbors of query in space.
// A nil labels slice labels each vector with its row index.
func BruteForceSearch(space distance.Space, vectors [][]float32, labels []uint64, query []float32, k int) []SearchResult {
	fn, err := distance.Provider(space)
	if err != nil {
		panic(err)
	}
	normalize := func(v []float32) []float32 {
		if !space.Normalized() {
			return v
		}
		n, _ := distance.NormalizeL2Copy(v)
		return n
	}

	query = normalize(query)
	results := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		label := uint64(i)
		if labels != nil {
			label = labels[i]
		}
		results[i] = SearchResult{Label: label, Distance: fn(query, normalize(v))}
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return results[:min(k, len(results))]
}
