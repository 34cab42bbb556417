package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// binaryWriter writes little-endian scalars and slices, keeping the first error.
type binaryWriter struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (bw *binaryWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(p)
}

func (bw *binaryWriter) u8(v uint8) {
	bw.buf[0] = v
	bw.write(bw.buf[:1])
}

func (bw *binaryWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(bw.buf[:4], v)
	bw.write(bw.buf[:4])
}

func (bw *binaryWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], v)
	bw.write(bw.buf[:8])
}

func (bw *binaryWriter) f32s(v []float32) {
	for _, f := range v {
		bw.u32(math.Float32bits(f))
	}
}

func (bw *binaryWriter) u32s(v []uint32) {
	for _, x := range v {
		bw.u32(x)
	}
}

func (bw *binaryWriter) u64s(v []uint64) {
	for _, x := range v {
		bw.u64(x)
	}
}

// binaryReader reads little-endian scalars and slices, keeping the first error.
// A short read is reported as ErrCorrupt.
type binaryReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (br *binaryReader) read(n int) []byte {
	if br.err != nil {
		return br.buf[:n]
	}
	if _, err := io.ReadFull(br.r, br.buf[:n]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("%w: truncated stream", ErrCorrupt)
		}
		br.err = err
		clear(br.buf[:n])
	}
	return br.buf[:n]
}

func (br *binaryReader) u8() uint8 {
	return br.read(1)[0]
}

func (br *binaryReader) u32() uint32 {
	return binary.LittleEndian.Uint32(br.read(4))
}

func (br *binaryReader) u64() uint64 {
	return binary.LittleEndian.Uint64(br.read(8))
}

func (br *binaryReader) f32s(dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(br.u32())
	}
}

func (br *binaryReader) u32s(dst []uint32) {
	for i := range dst {
		dst[i] = br.u32()
	}
}

func (br *binaryReader) u64s(dst []uint64) {
	for i := range dst {
		dst[i] = br.u64()
	}
}
