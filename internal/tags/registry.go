package tags

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/hnswtag/internal/hnsw"
)

// ErrInvalidRegistrySize is returned for a non-positive registry size.
var ErrInvalidRegistrySize = errors.New("tags: registry size must be positive")

// Key identifies a sub-graph: a single tag or a set of tags.
type Key string

// KeyFor returns the canonical key for tags. Order and duplicates do not matter.
func KeyFor(tags ...uint64) Key {
	sorted := slices.Compact(slices.Sorted(slices.Values(tags)))
	parts := make([]string, len(sorted))
	for i, tag := range sorted {
		parts[i] = strconv.FormatUint(tag, 10)
	}
	return Key(strings.Join(parts, ","))
}

// Subgraph is a materialized graph with the tag set and labels it was built from.
type Subgraph struct {
	Key      Key
	Tags     []uint64
	M        int
	Graph    *hnsw.HNSW
	Coverage *roaring64.Bitmap

	stale atomic.Bool
}

// Stale reports whether the tag membership changed after the build.
func (s *Subgraph) Stale() bool { return s.stale.Load() }

// Registry holds the most recently materialized sub-graphs.
type Registry struct {
	cache *lru.Cache[Key, *Subgraph]
}

// NewRegistry creates a registry holding at most size sub-graphs.
// onEvict is called when a sub-graph is dropped to make room; it may be nil.
func NewRegistry(size int, onEvict func(key Key)) (*Registry, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRegistrySize, size)
	}
	cache, err := lru.NewWithEvict(size, func(key Key, _ *Subgraph) {
		if onEvict != nil {
			onEvict(key)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Registry{cache: cache}, nil
}

// Get returns the sub-graph for key.
func (r *Registry) Get(key Key) (*Subgraph, bool) {
	return r.cache.Get(key)
}

// Put stores sg, replacing any previous sub-graph under the same key.
func (r *Registry) Put(sg *Subgraph) {
	r.cache.Add(sg.Key, sg)
}

// Len returns the number of registered sub-graphs.
func (r *Registry) Len() int { return r.cache.Len() }

// Keys returns the registered keys from oldest to newest.
func (r *Registry) Keys() []Key { return r.cache.Keys() }

// Subgraphs returns the registered sub-graphs from oldest to newest
// without touching their recency.
func (r *Registry) Subgraphs() []*Subgraph { return r.cache.Values() }

// Purge drops every sub-graph.
func (r *Registry) Purge() { r.cache.Purge() }

// InvalidateTagged marks stale every sub-graph whose tag set contains tag
// or whose coverage intersects labels.
func (r *Registry) InvalidateTagged(tag uint64, labels *roaring64.Bitmap) {
	for _, sg := range r.cache.Values() {
		if slices.Contains(sg.Tags, tag) || sg.Coverage.Intersects(labels) {
			sg.stale.Store(true)
		}
	}
}

// InvalidateAll marks every sub-graph stale.
func (r *Registry) InvalidateAll() {
	for _, sg := range r.cache.Values() {
		sg.stale.Store(true)
	}
}

// Covering returns the sub-graphs whose coverage contains label.
func (r *Registry) Covering(label uint64) []*Subgraph {
	var out []*Subgraph
	for _, sg := range r.cache.Values() {
		if sg.Coverage.Contains(label) {
			out = append(out, sg)
		}
	}
	return out
}
