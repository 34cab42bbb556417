// Package store implements the fixed-capacity element table behind a graph.
//
// Every element is addressed by a dense uint32 index assigned at insertion.
// Vectors, labels and levels are written once before the index is published
// and never change afterwards. Neighbor lists are guarded by a per-element
// mutex; callers never hold more than one element lock at a time.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	// ErrCapacityExceeded is returned when the table is full.
	ErrCapacityExceeded = errors.New("store: capacity exceeded")
	// ErrDuplicateLabel is returned when a label is already present.
	ErrDuplicateLabel = errors.New("store: duplicate label")
	// ErrUnknownLabel is returned when a label is not present.
	ErrUnknownLabel = errors.New("store: unknown label")
	// ErrInvalidCapacity is returned for a non-positive capacity or dimension.
	ErrInvalidCapacity = errors.New("store: invalid capacity")
	// ErrIndexOutOfRange is returned when restoring outside the allocated table.
	ErrIndexOutOfRange = errors.New("store: index out of range")
)

const (
	// MaxCapacity bounds the number of elements of one table.
	MaxCapacity = 1 << 28
	// MaxFloats bounds capacity*dim, the size of the vector slab.
	MaxFloats = 1 << 33
)

type element struct {
	mu      sync.Mutex
	label   uint64
	level   int
	deleted atomic.Bool
	links   [][]uint32
}

// Store owns vectors, labels, levels, deleted flags and adjacency lists.
type Store struct {
	dim      int
	capacity int
	maxM     int
	maxM0    int

	vectors  []float32
	elements []element

	mu     sync.RWMutex // guards labels and count
	labels map[uint64]uint32
	count  atomic.Uint32
}

// New allocates a table for capacity vectors of dimension dim.
// maxM and maxM0 size the neighbor lists above and at layer 0.
func New(capacity, dim, maxM, maxM0 int) (*Store, error) {
	if capacity <= 0 || dim <= 0 || capacity > MaxCapacity || uint64(capacity)*uint64(dim) > MaxFloats {
		return nil, fmt.Errorf("%w: capacity=%d dim=%d", ErrInvalidCapacity, capacity, dim)
	}
	return &Store{
		dim:      dim,
		capacity: capacity,
		maxM:     maxM,
		maxM0:    maxM0,
		vectors:  make([]float32, capacity*dim),
		elements: make([]element, capacity),
		labels:   make(map[uint64]uint32, min(capacity, 1<<16)),
	}, nil
}

// Dim returns the vector dimension.
func (s *Store) Dim() int { return s.dim }

// Capacity returns the maximum number of elements.
func (s *Store) Capacity() int { return s.capacity }

// Len returns the number of allocated elements.
func (s *Store) Len() int { return int(s.count.Load()) }

// Append reserves the next index for vector and label and allocates
// empty neighbor lists for layers 0..level.
func (s *Store) Append(vector []float32, label uint64, level int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labels[label]; ok {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateLabel, label)
	}
	n := s.count.Load()
	if int(n) >= s.capacity {
		return 0, fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, s.capacity)
	}

	s.init(n, vector, label, level)
	s.labels[label] = n
	s.count.Store(n + 1)
	return n, nil
}

// Restore writes a persisted element at index id. Elements must be restored
// in ascending index order starting at zero.
func (s *Store) Restore(id uint32, vector []float32, label uint64, level int, deleted bool, links [][]uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(id) >= s.capacity || id != s.count.Load() {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, id)
	}
	if _, ok := s.labels[label]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateLabel, label)
	}

	s.init(id, vector, label, level)
	e := &s.elements[id]
	for layer := range min(len(links), level+1) {
		e.links[layer] = append(e.links[layer], links[layer]...)
	}
	e.deleted.Store(deleted)
	s.labels[label] = id
	s.count.Store(id + 1)
	return nil
}

func (s *Store) init(id uint32, vector []float32, label uint64, level int) {
	copy(s.vectors[int(id)*s.dim:], vector[:s.dim])
	e := &s.elements[id]
	e.label = label
	e.level = level
	e.links = make([][]uint32, level+1)
	for layer := range e.links {
		e.links[layer] = make([]uint32, 0, s.maxLinks(layer))
	}
}

func (s *Store) maxLinks(layer int) int {
	if layer == 0 {
		return s.maxM0
	}
	return s.maxM
}

// Vector returns the stored vector of id. The slice aliases the table and must not be modified.
func (s *Store) Vector(id uint32) []float32 {
	off := int(id) * s.dim
	return s.vectors[off : off+s.dim : off+s.dim]
}

// Label returns the caller-visible label of id.
func (s *Store) Label(id uint32) uint64 { return s.elements[id].label }

// Level returns the top layer of id.
func (s *Store) Level(id uint32) int { return s.elements[id].level }

// Lookup resolves a label to its index.
func (s *Store) Lookup(label uint64) (uint32, bool) {
	s.mu.RLock()
	id, ok := s.labels[label]
	s.mu.RUnlock()
	return id, ok
}

// MarkDeleted flags label as deleted. Deleted elements stay traversable.
func (s *Store) MarkDeleted(label uint64) error {
	id, ok := s.Lookup(label)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLabel, label)
	}
	s.elements[id].deleted.Store(true)
	return nil
}

// IsDeleted reports whether id is marked deleted.
func (s *Store) IsDeleted(id uint32) bool { return s.elements[id].deleted.Load() }

// Neighbors copies the adjacency of id at layer into buf and returns it.
// Returns buf[:0] if id does not participate in layer.
func (s *Store) Neighbors(id uint32, layer int, buf []uint32) []uint32 {
	e := &s.elements[id]
	e.mu.Lock()
	defer e.mu.Unlock()
	if layer >= len(e.links) {
		return buf[:0]
	}
	return append(buf[:0], e.links[layer]...)
}

// SetNeighbors replaces the adjacency of id at layer.
func (s *Store) SetNeighbors(id uint32, layer int, ids []uint32) {
	e := &s.elements[id]
	e.mu.Lock()
	e.links[layer] = append(e.links[layer][:0], ids...)
	e.mu.Unlock()
}

// UpdateNeighbors applies fn to the adjacency of id at layer while holding its lock.
// The slice returned by fn becomes the element's adjacency.
func (s *Store) UpdateNeighbors(id uint32, layer int, fn func(links []uint32) []uint32) {
	e := &s.elements[id]
	e.mu.Lock()
	defer e.mu.Unlock()
	if layer >= len(e.links) {
		return
	}
	e.links[layer] = fn(e.links[layer])
}

// Labels returns every label in index order.
func (s *Store) Labels() []uint64 {
	n := s.Len()
	out := make([]uint64, n)
	for i := range n {
		out[i] = s.elements[i].label
	}
	return out
}

// Degrees returns the neighbor count of every element at layer,
// skipping elements that do not reach layer.
func (s *Store) Degrees(layer int) []float64 {
	n := s.Len()
	out := make([]float64, 0, n)
	for i := range n {
		e := &s.elements[i]
		e.mu.Lock()
		if layer < len(e.links) {
			out = append(out, float64(len(e.links[layer])))
		}
		e.mu.Unlock()
	}
	return out
}

// Links returns a deep copy of every layer's adjacency of id.
func (s *Store) Links(id uint32) [][]uint32 {
	e := &s.elements[id]
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]uint32, len(e.links))
	for i, l := range e.links {
		out[i] = slices.Clone(l)
	}
	return out
}
