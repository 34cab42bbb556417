package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// readFvecs reads vectors in the fvecs format: each record is a little-endian
// int32 dimension followed by that many float32 values.
func readFvecs(r io.Reader) ([][]float32, error) {
	br := bufio.NewReader(r)
	var (
		vectors [][]float32
		dim     int
		head    [4]byte
	)
	for {
		if _, err := io.ReadFull(br, head[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("fvecs: record %d: %w", len(vectors), err)
		}
		d := int(int32(binary.LittleEndian.Uint32(head[:])))
		if d <= 0 {
			return nil, fmt.Errorf("fvecs: record %d: invalid dimension %d", len(vectors), d)
		}
		if dim == 0 {
			dim = d
		} else if d != dim {
			return nil, fmt.Errorf("fvecs: record %d: dimension %d, expected %d", len(vectors), d, dim)
		}

		buf := make([]byte, 4*d)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("fvecs: record %d: %w", len(vectors), err)
		}
		out := make([]float32, d)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		vectors = append(vectors, out)
	}
	return vectors, nil
}

func readFvecsFile(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readFvecs(f)
}
