package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(0, 4, 2, 4)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New(4, 0, 2, 4)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New(MaxCapacity+1, 1, 2, 4)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New(1<<32-1, 1<<16, 2, 4)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	s, err := New(4, 3, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dim())
	assert.Equal(t, 4, s.Capacity())
	assert.Equal(t, 0, s.Len())
}

func TestAppend(t *testing.T) {
	s, err := New(2, 2, 2, 4)
	require.NoError(t, err)

	id, err := s.Append([]float32{1, 2}, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, []float32{1, 2}, s.Vector(id))
	assert.Equal(t, uint64(10), s.Label(id))
	assert.Equal(t, 1, s.Level(id))

	_, err = s.Append([]float32{3, 4}, 10, 0)
	assert.ErrorIs(t, err, ErrDuplicateLabel)

	id, err = s.Append([]float32{3, 4}, 11, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, err = s.Append([]float32{5, 6}, 12, 0)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, s.Len())

	got, ok := s.Lookup(11)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), got)
	_, ok = s.Lookup(12)
	assert.False(t, ok)

	assert.Equal(t, []uint64{10, 11}, s.Labels())
}

func TestNeighbors(t *testing.T) {
	s, err := New(3, 1, 2, 4)
	require.NoError(t, err)
	for i := range 3 {
		_, err := s.Append([]float32{float32(i)}, uint64(i), 1)
		require.NoError(t, err)
	}

	s.SetNeighbors(0, 0, []uint32{1, 2})
	s.SetNeighbors(0, 1, []uint32{2})

	buf := make([]uint32, 0, 4)
	assert.Equal(t, []uint32{1, 2}, s.Neighbors(0, 0, buf))
	assert.Equal(t, []uint32{2}, s.Neighbors(0, 1, buf))
	assert.Empty(t, s.Neighbors(0, 5, buf))

	s.UpdateNeighbors(0, 0, func(links []uint32) []uint32 {
		return append(links, 7)
	})
	assert.Equal(t, []uint32{1, 2, 7}, s.Neighbors(0, 0, nil))

	links := s.Links(0)
	links[0][0] = 99
	assert.Equal(t, uint32(1), s.Neighbors(0, 0, nil)[0])

	assert.Equal(t, []float64{3, 0, 0}, s.Degrees(0))
	assert.Equal(t, []float64{1, 0, 0}, s.Degrees(1))
}

func TestMarkDeleted(t *testing.T) {
	s, err := New(2, 1, 2, 4)
	require.NoError(t, err)
	id, err := s.Append([]float32{1}, 5, 0)
	require.NoError(t, err)

	assert.False(t, s.IsDeleted(id))
	require.NoError(t, s.MarkDeleted(5))
	assert.True(t, s.IsDeleted(id))
	assert.ErrorIs(t, s.MarkDeleted(6), ErrUnknownLabel)
}

func TestRestore(t *testing.T) {
	s, err := New(3, 2, 2, 4)
	require.NoError(t, err)

	require.NoError(t, s.Restore(0, []float32{1, 1}, 7, 1, false, [][]uint32{{1}, {1}}))
	require.NoError(t, s.Restore(1, []float32{2, 2}, 8, 1, true, [][]uint32{{0}, {0}}))
	assert.ErrorIs(t, s.Restore(3, []float32{3, 3}, 9, 0, false, nil), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Restore(1, []float32{3, 3}, 9, 0, false, nil), ErrIndexOutOfRange)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.IsDeleted(1))
	assert.Equal(t, [][]uint32{{1}, {1}}, s.Links(0))

	id, err := s.Append([]float32{3, 3}, 9, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)
}

func TestConcurrentAppend(t *testing.T) {
	const n = 1000
	s, err := New(n, 4, 8, 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += 8 {
				_, err := s.Append([]float32{1, 2, 3, 4}, uint64(i), 0)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, n, s.Len())
	seen := make(map[uint64]bool, n)
	for _, l := range s.Labels() {
		seen[l] = true
	}
	assert.Len(t, seen, n)
}
