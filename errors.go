package hnswtag

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/internal/hnsw"
	"github.com/hupe1980/hnswtag/internal/store"
	"github.com/hupe1980/hnswtag/internal/tags"
	"github.com/hupe1980/hnswtag/internal/workers"
	"github.com/hupe1980/hnswtag/persistence"
)

var (
	// ErrInvalidArgument is returned for bad parameters and vector shapes.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCapacityExceeded is returned when an insertion would exceed the capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrDuplicateLabel is returned when a label is already present.
	ErrDuplicateLabel = errors.New("duplicate label")
	// ErrUnknownLabel is returned when a label is not present.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrInsufficientElements is returned when a tag set has too few members to index.
	ErrInsufficientElements = errors.New("insufficient elements")
	// ErrSchemaMismatch is returned when a loaded index has a different space or dimension.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrCorruptData is returned for malformed persisted streams.
	ErrCorruptData = errors.New("corrupt data")
	// ErrEmptyIndex is returned when querying an index without elements.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrStaleSubgraph is returned when a sub-graph's tags changed after it was built.
	ErrStaleSubgraph = errors.New("sub-graph is stale")
	// ErrSubgraphNotFound is returned when a sub-graph was never materialized
	// and lazy materialization is disabled.
	ErrSubgraphNotFound = errors.New("sub-graph not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("index is closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
// It matches ErrInvalidArgument with errors.Is.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Is(target error) bool { return target == ErrInvalidArgument }

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// InsufficientElementsError reports why a sub-graph could not be built.
// It matches ErrInsufficientElements with errors.Is.
type InsufficientElementsError struct {
	Tags  []uint64
	Count uint64
	M     int
}

func (e *InsufficientElementsError) Error() string {
	return fmt.Sprintf("insufficient elements: tags %v have %d elements, need more than %d", e.Tags, e.Count, e.M)
}

func (e *InsufficientElementsError) Unwrap() error { return ErrInsufficientElements }

var public = []error{
	ErrInvalidArgument, ErrCapacityExceeded, ErrDuplicateLabel, ErrUnknownLabel,
	ErrInsufficientElements, ErrSchemaMismatch, ErrCorruptData, ErrEmptyIndex,
	ErrStaleSubgraph, ErrSubgraphNotFound, ErrClosed,
}

// translateError maps internal errors onto the exported taxonomy.
// Errors that already match it are returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range public {
		if errors.Is(err, target) {
			return err
		}
	}

	var dm *hnsw.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	switch {
	case errors.Is(err, store.ErrCapacityExceeded):
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	case errors.Is(err, store.ErrDuplicateLabel):
		return fmt.Errorf("%w: %w", ErrDuplicateLabel, err)
	case errors.Is(err, store.ErrUnknownLabel), errors.Is(err, tags.ErrMissingLabel):
		return fmt.Errorf("%w: %w", ErrUnknownLabel, err)
	case errors.Is(err, tags.ErrInsufficientElements):
		return fmt.Errorf("%w: %w", ErrInsufficientElements, err)
	case errors.Is(err, hnsw.ErrEmptyGraph):
		return fmt.Errorf("%w: %w", ErrEmptyIndex, err)
	case errors.Is(err, hnsw.ErrInvalidK),
		errors.Is(err, hnsw.ErrInvalidOption),
		errors.Is(err, hnsw.ErrZeroVector),
		errors.Is(err, store.ErrInvalidCapacity),
		errors.Is(err, distance.ErrUnknownSpace),
		errors.Is(err, workers.ErrInvalidSize),
		errors.Is(err, tags.ErrInvalidRegistrySize):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, persistence.ErrCorrupt),
		errors.Is(err, persistence.ErrInvalidMagic),
		errors.Is(err, persistence.ErrInvalidVersion),
		errors.Is(err, persistence.ErrUnknownCompression),
		errors.Is(err, hnsw.ErrCorruptGraph),
		errors.Is(err, tags.ErrInconsistentTable),
		errors.Is(err, store.ErrIndexOutOfRange):
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return err
}
