package hnswtag

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/hnswtag/blobstore"
	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/internal/hnsw"
	"github.com/hupe1980/hnswtag/internal/tags"
	"github.com/hupe1980/hnswtag/persistence"
)

// Save writes the index to w. Sub-graphs are not saved; they are rebuilt
// on demand after loading.
func (idx *Index) Save(w io.Writer) error {
	return idx.save(context.Background(), "stream", func(src persistence.Source) error {
		return persistence.Encode(w, src, idx.opts.compression)
	})
}

// SaveFile atomically replaces path with the saved index.
func (idx *Index) SaveFile(path string) error {
	return idx.save(context.Background(), path, func(src persistence.Source) error {
		return persistence.SaveFile(path, src, idx.opts.compression)
	})
}

// SaveBlob writes the index to a blob. The blob is only published when the
// whole index was written.
func (idx *Index) SaveBlob(ctx context.Context, store blobstore.BlobStore, name string) error {
	return idx.save(ctx, name, func(src persistence.Source) error {
		w, err := store.Create(ctx, name)
		if err != nil {
			return err
		}
		if err := persistence.Encode(w, src, idx.opts.compression); err != nil {
			_ = w.Abort()
			return err
		}
		return w.Close()
	})
}

// save blocks insertions and deletions while src is encoded.
func (idx *Index) save(ctx context.Context, target string, write func(persistence.Source) error) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	start := time.Now()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tagsMu.Lock()
	src := newSnapshot(idx.graph, idx.tagTable)
	idx.tagsMu.Unlock()

	err := translateError(write(src))
	idx.metrics.RecordSave(time.Since(start), err)
	idx.logger.LogSave(ctx, target, int(src.header.Count), err)
	return err
}

// snapshot adapts the graph and tag table to persistence.Source.
type snapshot struct {
	graph     *hnsw.HNSW
	header    persistence.Header
	labelTags []persistence.Posting
	tagLabels []persistence.Posting
}

func newSnapshot(g *hnsw.HNSW, table *tags.Table) *snapshot {
	entryPoint, maxLevel := g.EntryPoint()
	return &snapshot{
		graph: g,
		header: persistence.Header{
			Dimension:      uint32(g.Dimension()),
			Space:          uint8(g.Space()),
			Capacity:       uint64(g.Capacity()),
			M:              uint32(g.M()),
			EFConstruction: uint32(g.EFConstruction()),
			Count:          uint64(g.Len()),
			EntryPoint:     entryPoint,
			MaxLevel:       int32(maxLevel),
		},
		labelTags: toPostings(table.LabelPostings()),
		tagLabels: toPostings(table.TagPostings()),
	}
}

func (s *snapshot) Header() persistence.Header { return s.header }

func (s *snapshot) Element(i uint64, e *persistence.Element) {
	st := s.graph.Store()
	id := uint32(i)
	e.Vector = st.Vector(id)
	e.Label = st.Label(id)
	e.Level = uint32(st.Level(id))
	e.Deleted = st.IsDeleted(id)
	e.Links = st.Links(id)
}

func (s *snapshot) LabelTags() []persistence.Posting { return s.labelTags }

func (s *snapshot) TagLabels() []persistence.Posting { return s.tagLabels }

func toPostings(in []tags.Posting) []persistence.Posting {
	out := make([]persistence.Posting, len(in))
	for i, p := range in {
		out[i] = persistence.Posting{Key: p.Key, Values: p.Values}
	}
	return out
}

func fromPostings(in []persistence.Posting) []tags.Posting {
	out := make([]tags.Posting, len(in))
	for i, p := range in {
		out[i] = tags.Posting{Key: p.Key, Values: p.Values}
	}
	return out
}

// Load reads an index written by Save. space and dim must match the stored
// index, otherwise ErrSchemaMismatch is returned. Graph parameters come
// from the stream; options configure everything else.
func Load(r io.Reader, space distance.Space, dim int, optFns ...Option) (*Index, error) {
	return load(context.Background(), "stream", space, dim, optFns, func(sink persistence.Sink) error {
		return persistence.Decode(r, sink)
	})
}

// LoadFile memory-maps path and loads the index from it.
func LoadFile(path string, space distance.Space, dim int, optFns ...Option) (*Index, error) {
	return load(context.Background(), path, space, dim, optFns, func(sink persistence.Sink) error {
		return persistence.LoadFile(path, sink)
	})
}

// LoadBlob loads the index from a blob.
func LoadBlob(ctx context.Context, store blobstore.BlobStore, name string, space distance.Space, dim int, optFns ...Option) (*Index, error) {
	return load(ctx, name, space, dim, optFns, func(sink persistence.Sink) error {
		blob, err := store.Open(ctx, name)
		if err != nil {
			return err
		}
		defer blob.Close()

		r, err := blobstore.NewReader(ctx, blob)
		if err != nil {
			return err
		}
		defer r.Close()
		return persistence.Decode(r, sink)
	})
}

func load(ctx context.Context, source string, space distance.Space, dim int, optFns []Option, read func(persistence.Sink) error) (*Index, error) {
	o := applyOptions(optFns)
	start := time.Now()

	idx, err := func() (*Index, error) {
		if err := o.validate(); err != nil {
			return nil, err
		}
		l := &loader{space: space, dim: dim, opts: o}
		if err := read(l); err != nil {
			return nil, translateError(err)
		}
		if err := l.graph.Restore(l.header.EntryPoint, int(l.header.MaxLevel)); err != nil {
			return nil, translateError(err)
		}
		return newIndex(l.graph, l.table, o)
	}()

	count := 0
	if idx != nil {
		count = idx.Len()
	}
	o.metricsCollector.RecordLoad(time.Since(start), err)
	o.logger.LogLoad(ctx, source, count, err)
	return idx, err
}

// loader adapts a fresh graph and tag table to persistence.Sink.
type loader struct {
	space distance.Space
	dim   int
	opts  options

	header persistence.Header
	graph  *hnsw.HNSW
	table  *tags.Table
}

func (l *loader) Begin(h persistence.Header) error {
	if stored := distance.Space(h.Space); stored != l.space {
		return fmt.Errorf("%w: stored space %s, expected %s", ErrSchemaMismatch, stored, l.space)
	}
	if int(h.Dimension) != l.dim {
		return fmt.Errorf("%w: stored dimension %d, expected %d", ErrSchemaMismatch, h.Dimension, l.dim)
	}

	capacity := int(h.Capacity)
	if l.opts.capacity > 0 {
		if l.opts.capacity < capacity {
			return fmt.Errorf("%w: capacity %d is below the stored capacity %d", ErrInvalidArgument, l.opts.capacity, capacity)
		}
		capacity = l.opts.capacity
	}

	g, err := hnsw.New(func(o *hnsw.Options) {
		o.Dimension = l.dim
		o.Capacity = capacity
		o.M = int(h.M)
		o.EFConstruction = int(h.EFConstruction)
		o.Space = l.space
		o.RandomSeed = l.opts.seed
	})
	if err != nil {
		if l.opts.capacity > 0 {
			return translateError(err)
		}
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	l.header = h
	l.graph = g
	return nil
}

func (l *loader) Element(i uint64, e *persistence.Element) error {
	for layer, links := range e.Links {
		limit := l.graph.M()
		if layer == 0 {
			limit *= 2
		}
		if len(links) > limit {
			return fmt.Errorf("%w: element %d has %d links at layer %d, limit %d", ErrCorruptData, i, len(links), layer, limit)
		}
	}
	err := l.graph.Store().Restore(uint32(i), e.Vector, e.Label, int(e.Level), e.Deleted, e.Links)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return nil
}

func (l *loader) Tags(labelTags, tagLabels []persistence.Posting) error {
	st := l.graph.Store()
	for _, p := range labelTags {
		if _, ok := st.Lookup(p.Key); !ok {
			return fmt.Errorf("%w: tagged label %d is not in the index", ErrCorruptData, p.Key)
		}
	}
	l.table = tags.NewTable()
	if err := l.table.Restore(fromPostings(labelTags), fromPostings(tagLabels)); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return nil
}
