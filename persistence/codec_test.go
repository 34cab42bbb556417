package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memState is an in-memory Source and Sink.
type memState struct {
	header    Header
	elements  []Element
	labelTags []Posting
	tagLabels []Posting
	failBegin error
}

func (m *memState) Header() Header { return m.header }

func (m *memState) Element(i uint64, e *Element) {
	*e = m.elements[i]
}

func (m *memState) LabelTags() []Posting { return m.labelTags }
func (m *memState) TagLabels() []Posting { return m.tagLabels }

type memSink struct {
	memState
}

func (s *memSink) Begin(h Header) error {
	if s.failBegin != nil {
		return s.failBegin
	}
	s.header = h
	return nil
}

func (s *memSink) Element(i uint64, e *Element) error {
	cp := Element{
		Vector:  slices.Clone(e.Vector),
		Label:   e.Label,
		Level:   e.Level,
		Deleted: e.Deleted,
		Links:   make([][]uint32, len(e.Links)),
	}
	for l, links := range e.Links {
		cp.Links[l] = slices.Clone(links)
	}
	s.elements = append(s.elements, cp)
	return nil
}

func (s *memSink) Tags(labelTags, tagLabels []Posting) error {
	s.labelTags = labelTags
	s.tagLabels = tagLabels
	return nil
}

func sampleState() *memState {
	return &memState{
		header: Header{
			Dimension:      2,
			Space:          1,
			Capacity:       10,
			M:              4,
			EFConstruction: 32,
			Count:          3,
			EntryPoint:     1,
			MaxLevel:       1,
		},
		elements: []Element{
			{Vector: []float32{0.5, 1}, Label: 100, Level: 0, Links: [][]uint32{{1, 2}}},
			{Vector: []float32{-1, 2.25}, Label: 101, Level: 1, Deleted: true, Links: [][]uint32{{0, 2}, {}}},
			{Vector: []float32{3, 4}, Label: 102, Level: 0, Links: [][]uint32{{0, 1}}},
		},
		labelTags: []Posting{{Key: 100, Values: []uint64{7}}, {Key: 102, Values: []uint64{7, 8}}},
		tagLabels: []Posting{{Key: 7, Values: []uint64{100, 102}}, {Key: 8, Values: []uint64{102}}},
	}
}

func encode(t *testing.T, src Source, c Compression) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, c))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			src := sampleState()
			data := encode(t, src, c)

			sink := &memSink{}
			require.NoError(t, Decode(bytes.NewReader(data), sink))

			assert.Equal(t, src.header, sink.header)
			require.Len(t, sink.elements, 3)
			for i := range src.elements {
				assert.Equal(t, src.elements[i].Vector, sink.elements[i].Vector)
				assert.Equal(t, src.elements[i].Label, sink.elements[i].Label)
				assert.Equal(t, src.elements[i].Level, sink.elements[i].Level)
				assert.Equal(t, src.elements[i].Deleted, sink.elements[i].Deleted)
				assert.Equal(t, len(src.elements[i].Links), len(sink.elements[i].Links))
			}
			assert.Equal(t, []uint32{0, 2}, sink.elements[1].Links[0])
			assert.Empty(t, sink.elements[1].Links[1])
			assert.Equal(t, src.labelTags, sink.labelTags)
			assert.Equal(t, src.tagLabels, sink.tagLabels)
		})
	}
}

func TestReadHeader(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			src := sampleState()
			h, comp, err := ReadHeader(bytes.NewReader(encode(t, src, c)))
			require.NoError(t, err)
			assert.Equal(t, src.header, h)
			assert.Equal(t, c, comp)
		})
	}

	_, _, err := ReadHeader(bytes.NewReader(bytes.Repeat([]byte("x"), 21)))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestEmptyIndex(t *testing.T) {
	src := &memState{header: Header{Dimension: 4, Capacity: 1, M: 2, EFConstruction: 1, EntryPoint: -1}}
	sink := &memSink{}
	require.NoError(t, Decode(bytes.NewReader(encode(t, src, CompressionNone)), sink))
	assert.Equal(t, int64(-1), sink.header.EntryPoint)
	assert.Empty(t, sink.elements)
	assert.Empty(t, sink.labelTags)
}

func TestLayout(t *testing.T) {
	data := encode(t, sampleState(), CompressionNone)

	assert.Equal(t, []byte("HNTG"), data[:4])
	assert.Equal(t, Version, binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint8(CompressionNone), data[8])
	bodyLen := binary.LittleEndian.Uint64(data[9:17])
	assert.Equal(t, len(data), 17+int(bodyLen)+4)

	body := data[17 : 17+bodyLen]
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(body[0:4]))
	assert.Equal(t, uint8(1), body[4])
	assert.Equal(t, uint64(10), binary.LittleEndian.Uint64(body[5:13]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(body[13:17]))
	assert.Equal(t, uint32(32), binary.LittleEndian.Uint32(body[17:21]))
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(body[21:29]))
	assert.Equal(t, int64(1), int64(binary.LittleEndian.Uint64(body[29:37])))
	assert.Equal(t, int32(1), int32(binary.LittleEndian.Uint32(body[37:41])))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(body[41:45])))

	assert.Equal(t, crc32.Checksum(body, crc32cTable), binary.LittleEndian.Uint32(data[len(data)-4:]))
}

func TestDecodeErrors(t *testing.T) {
	valid := encode(t, sampleState(), CompressionNone)

	t.Run("Magic", func(t *testing.T) {
		data := slices.Clone(valid)
		data[0] = 'X'
		assert.ErrorIs(t, Decode(bytes.NewReader(data), &memSink{}), ErrInvalidMagic)
	})

	t.Run("Version", func(t *testing.T) {
		data := slices.Clone(valid)
		binary.LittleEndian.PutUint32(data[4:8], 99)
		assert.ErrorIs(t, Decode(bytes.NewReader(data), &memSink{}), ErrInvalidVersion)
	})

	t.Run("Compression", func(t *testing.T) {
		data := slices.Clone(valid)
		data[8] = 9
		assert.ErrorIs(t, Decode(bytes.NewReader(data), &memSink{}), ErrUnknownCompression)
	})

	t.Run("Truncated", func(t *testing.T) {
		for _, n := range []int{3, 12, 40, len(valid) - 30, len(valid) - 2} {
			err := Decode(bytes.NewReader(valid[:n]), &memSink{})
			assert.ErrorIs(t, err, ErrCorrupt, "length %d", n)
		}
	})

	t.Run("Checksum", func(t *testing.T) {
		data := slices.Clone(valid)
		data[17+42] ^= 0xFF // inside the first vector
		err := Decode(bytes.NewReader(data), &memSink{})
		var mismatch *ChecksumMismatchError
		assert.ErrorAs(t, err, &mismatch)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("LinkOutOfRange", func(t *testing.T) {
		src := sampleState()
		src.elements[0].Links = [][]uint32{{7}}
		err := Decode(bytes.NewReader(encode(t, src, CompressionNone)), &memSink{})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("EntryPointLevel", func(t *testing.T) {
		src := sampleState()
		src.header.EntryPoint = 0
		err := Decode(bytes.NewReader(encode(t, src, CompressionNone)), &memSink{})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Header", func(t *testing.T) {
		src := sampleState()
		src.header.Capacity = 2
		err := Decode(bytes.NewReader(encode(t, src, CompressionNone)), &memSink{})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("OversizedTable", func(t *testing.T) {
		tests := []struct {
			capacity  uint64
			dimension uint32
		}{
			{1<<32 - 1, 1 << 16},
			{MaxCapacity + 1, 1},
			{1 << 27, 1 << 16},
		}
		for _, tt := range tests {
			src := &memState{header: Header{
				Dimension:      tt.dimension,
				Capacity:       tt.capacity,
				M:              16,
				EFConstruction: 100,
				EntryPoint:     -1,
			}}
			sink := &memSink{}
			err := Decode(bytes.NewReader(encode(t, src, CompressionNone)), sink)
			assert.ErrorIs(t, err, ErrCorrupt, "capacity %d dimension %d", tt.capacity, tt.dimension)
			assert.Zero(t, sink.header.Capacity)
		}
	})

	t.Run("CorruptCompressed", func(t *testing.T) {
		data := slices.Clone(encode(t, sampleState(), CompressionZSTD))
		for i := 20; i < len(data)-4; i++ {
			data[i] ^= 0x5A
		}
		assert.Error(t, Decode(bytes.NewReader(data), &memSink{}))
	})

	t.Run("SinkError", func(t *testing.T) {
		boom := errors.New("schema")
		err := Decode(bytes.NewReader(valid), &memSink{memState{failBegin: boom}})
		assert.ErrorIs(t, err, boom)
	})
}

func TestCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "ZSTD": CompressionZSTD, "lz4": CompressionLZ4} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)

	var buf bytes.Buffer
	assert.ErrorIs(t, Encode(&buf, sampleState(), Compression(7)), ErrUnknownCompression)
	assert.Equal(t, "unknown(7)", Compression(7).String())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")
	src := sampleState()

	require.NoError(t, SaveFile(path, src, CompressionZSTD))

	sink := &memSink{}
	require.NoError(t, LoadFile(path, sink))
	assert.Equal(t, src.header, sink.header)
	assert.Len(t, sink.elements, 3)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	assert.ErrorIs(t, LoadFile(filepath.Join(t.TempDir(), "missing"), sink), os.ErrNotExist)
}

func TestSaveToFileError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.hnsw")
	boom := errors.New("boom")

	assert.ErrorIs(t, SaveToFile(path, func(w io.Writer) error { return boom }), boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
