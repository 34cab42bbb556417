package persistence

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MagicNumber identifies index files (bytes "HNTG" when written little-endian).
	MagicNumber uint32 = 0x47544E48
	// Version is the current file format version.
	Version uint32 = 1

	// MaxDimension bounds the dimension accepted from a stream.
	MaxDimension = 1 << 16
	// MaxCapacity bounds the capacity accepted from a stream.
	MaxCapacity = 1 << 28
	// MaxFloats bounds capacity*dimension accepted from a stream.
	MaxFloats = 1 << 33
	// maxLevel bounds element levels accepted from a stream.
	maxLevel = 1 << 10
)

var (
	ErrInvalidMagic       = errors.New("persistence: invalid magic number")
	ErrInvalidVersion     = errors.New("persistence: unsupported version")
	ErrUnknownCompression = errors.New("persistence: unknown compression")
	ErrCorrupt            = errors.New("persistence: corrupt data")
)

// ChecksumMismatchError is returned when checksum verification fails.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("persistence: checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrCorrupt }

// Compression selects how the body is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZSTD
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "zstd" or "lz4".
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// Header holds the graph parameters stored at the start of the body.
type Header struct {
	Dimension      uint32
	Space          uint8
	Capacity       uint64
	M              uint32
	EFConstruction uint32
	Count          uint64
	EntryPoint     int64
	MaxLevel       int32
}

func (h *Header) validate() error {
	switch {
	case h.Dimension == 0 || h.Dimension > MaxDimension:
		return fmt.Errorf("%w: dimension %d", ErrCorrupt, h.Dimension)
	case h.Capacity == 0 || h.Capacity > MaxCapacity:
		return fmt.Errorf("%w: capacity %d", ErrCorrupt, h.Capacity)
	case h.Capacity*uint64(h.Dimension) > MaxFloats:
		return fmt.Errorf("%w: capacity %d with dimension %d", ErrCorrupt, h.Capacity, h.Dimension)
	case h.Count > h.Capacity:
		return fmt.Errorf("%w: count %d exceeds capacity %d", ErrCorrupt, h.Count, h.Capacity)
	case h.M < 2 || h.EFConstruction == 0:
		return fmt.Errorf("%w: M %d efConstruction %d", ErrCorrupt, h.M, h.EFConstruction)
	case h.Count == 0 && h.EntryPoint != -1:
		return fmt.Errorf("%w: entry point %d in empty graph", ErrCorrupt, h.EntryPoint)
	case h.Count > 0 && (h.EntryPoint < 0 || uint64(h.EntryPoint) >= h.Count):
		return fmt.Errorf("%w: entry point %d with %d elements", ErrCorrupt, h.EntryPoint, h.Count)
	case h.MaxLevel < 0 || h.MaxLevel > maxLevel:
		return fmt.Errorf("%w: max level %d", ErrCorrupt, h.MaxLevel)
	}
	return nil
}

// Element is one stored element record.
type Element struct {
	Vector  []float32
	Label   uint64
	Level   uint32
	Deleted bool
	Links   [][]uint32
}

// Posting is one key of the tag table with its values.
type Posting struct {
	Key    uint64
	Values []uint64
}

// Source supplies the state to encode.
type Source interface {
	Header() Header
	// Element fills e with the element at index i. e may be reused between calls.
	Element(i uint64, e *Element)
	LabelTags() []Posting
	TagLabels() []Posting
}

// Sink receives decoded state in stream order.
type Sink interface {
	// Begin is called once with the parameters before any element.
	Begin(h Header) error
	// Element is called for i = 0..Count-1. e is reused after the call returns.
	Element(i uint64, e *Element) error
	Tags(labelTags, tagLabels []Posting) error
}
