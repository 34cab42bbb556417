package persistence

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
)

const bufferSize = 256 * 1024

// Encode writes the state of src to w.
func Encode(w io.Writer, src Source, c Compression) error {
	var body bytes.Buffer
	crc := NewCRC32C()

	cw, err := newCompressor(&body, c)
	if err != nil {
		return err
	}
	buf := bufio.NewWriterSize(io.MultiWriter(cw, crc), bufferSize)
	if err := writeBody(buf, src); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}

	out := &binaryWriter{w: w}
	out.u32(MagicNumber)
	out.u32(Version)
	out.u8(uint8(c))
	out.u64(uint64(body.Len()))
	out.write(body.Bytes())
	out.u32(crc.Sum32())
	return out.err
}

func writeBody(w io.Writer, src Source) error {
	bw := &binaryWriter{w: w}

	h := src.Header()
	bw.u32(h.Dimension)
	bw.u8(h.Space)
	bw.u64(h.Capacity)
	bw.u32(h.M)
	bw.u32(h.EFConstruction)
	bw.u64(h.Count)
	bw.u64(uint64(h.EntryPoint))
	bw.u32(uint32(h.MaxLevel))

	var e Element
	for i := range h.Count {
		src.Element(i, &e)
		bw.f32s(e.Vector)
		bw.u64(e.Label)
		bw.u32(e.Level)
		if e.Deleted {
			bw.u8(1)
		} else {
			bw.u8(0)
		}
		for _, links := range e.Links[:e.Level+1] {
			bw.u32(uint32(len(links)))
			bw.u32s(links)
		}
		if bw.err != nil {
			return bw.err
		}
	}

	for _, postings := range [][]Posting{src.LabelTags(), src.TagLabels()} {
		bw.u64(uint64(len(postings)))
		for _, p := range postings {
			bw.u64(p.Key)
			bw.u32(uint32(len(p.Values)))
			bw.u64s(p.Values)
		}
	}
	return bw.err
}

// Decode reads a stream written by Encode into sink.
// The checksum is verified after the whole body has been delivered, so a
// sink must discard its state when Decode returns an error.
func Decode(r io.Reader, sink Sink) error {
	in := &binaryReader{r: r}
	comp, bodyLen, err := readEnvelope(in)
	if err != nil {
		return err
	}

	limited := io.LimitReader(r, bodyLen)
	dr, err := newDecompressor(limited, comp)
	if err != nil {
		return err
	}
	defer dr.Close()

	crc := newChecksumReader(bufio.NewReaderSize(dr, bufferSize))
	if err := readBody(&binaryReader{r: crc}, sink); err != nil {
		return err
	}

	n, err := io.Copy(io.Discard, crc)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d trailing bytes in body", ErrCorrupt, n)
	}
	if _, err := io.Copy(io.Discard, limited); err != nil {
		return err
	}

	want := in.u32()
	if in.err != nil {
		return in.err
	}
	if got := crc.Sum(); got != want {
		return &ChecksumMismatchError{Expected: want, Actual: got}
	}
	return nil
}

// ReadHeader reads the envelope and the body header of a stream written by
// Encode without decoding the elements. The checksum is not verified.
func ReadHeader(r io.Reader) (Header, Compression, error) {
	comp, bodyLen, err := readEnvelope(&binaryReader{r: r})
	if err != nil {
		return Header{}, 0, err
	}
	dr, err := newDecompressor(io.LimitReader(r, bodyLen), comp)
	if err != nil {
		return Header{}, 0, err
	}
	defer dr.Close()

	h, err := readHeader(&binaryReader{r: dr})
	return h, comp, err
}

func readEnvelope(in *binaryReader) (Compression, int64, error) {
	magic := in.u32()
	version := in.u32()
	comp := Compression(in.u8())
	bodyLen := in.u64()
	if in.err != nil {
		return 0, 0, in.err
	}
	if magic != MagicNumber {
		return 0, 0, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, magic)
	}
	if version != Version {
		return 0, 0, fmt.Errorf("%w: got %d", ErrInvalidVersion, version)
	}
	if bodyLen > math.MaxInt64 {
		return 0, 0, fmt.Errorf("%w: body length %d", ErrCorrupt, bodyLen)
	}
	return comp, int64(bodyLen), nil
}

func readHeader(br *binaryReader) (Header, error) {
	var h Header
	h.Dimension = br.u32()
	h.Space = br.u8()
	h.Capacity = br.u64()
	h.M = br.u32()
	h.EFConstruction = br.u32()
	h.Count = br.u64()
	h.EntryPoint = int64(br.u64())
	h.MaxLevel = int32(br.u32())
	if br.err != nil {
		return h, br.err
	}
	if err := h.validate(); err != nil {
		return h, err
	}
	return h, nil
}

func readBody(br *binaryReader, sink Sink) error {
	h, err := readHeader(br)
	if err != nil {
		return err
	}
	if err := sink.Begin(h); err != nil {
		return err
	}

	e := Element{Vector: make([]float32, h.Dimension)}
	for i := range h.Count {
		br.f32s(e.Vector)
		e.Label = br.u64()
		e.Level = br.u32()
		deleted := br.u8()
		if br.err != nil {
			return br.err
		}
		if e.Level > uint32(h.MaxLevel) || deleted > 1 {
			return fmt.Errorf("%w: element %d level %d deleted %d", ErrCorrupt, i, e.Level, deleted)
		}
		if int64(i) == h.EntryPoint && e.Level != uint32(h.MaxLevel) {
			return fmt.Errorf("%w: entry point level %d, max level %d", ErrCorrupt, e.Level, h.MaxLevel)
		}
		e.Deleted = deleted == 1

		e.Links = resizeLinks(e.Links, int(e.Level)+1)
		for layer := range e.Links {
			n := br.u32()
			if br.err != nil {
				return br.err
			}
			if uint64(n) > h.Count {
				return fmt.Errorf("%w: element %d has %d links at layer %d", ErrCorrupt, i, n, layer)
			}
			links := e.Links[layer][:0]
			for range n {
				id := br.u32()
				if uint64(id) >= h.Count {
					return fmt.Errorf("%w: element %d links to %d", ErrCorrupt, i, id)
				}
				links = append(links, id)
			}
			e.Links[layer] = links
		}
		if br.err != nil {
			return br.err
		}
		if err := sink.Element(i, &e); err != nil {
			return err
		}
	}

	labelTags, err := readPostings(br, h.Count)
	if err != nil {
		return err
	}
	tagLabels, err := readPostings(br, math.MaxUint64)
	if err != nil {
		return err
	}
	return sink.Tags(labelTags, tagLabels)
}

func resizeLinks(links [][]uint32, n int) [][]uint32 {
	if cap(links) < n {
		grown := make([][]uint32, n)
		copy(grown, links)
		return grown
	}
	return links[:n]
}

// readPostings reads a posting section holding at most maxKeys keys.
func readPostings(br *binaryReader, maxKeys uint64) ([]Posting, error) {
	n := br.u64()
	if br.err != nil {
		return nil, br.err
	}
	if n > maxKeys {
		return nil, fmt.Errorf("%w: %d posting keys", ErrCorrupt, n)
	}

	var out []Posting
	for range n {
		p := Posting{Key: br.u64()}
		count := br.u32()
		if br.err != nil {
			return nil, br.err
		}
		p.Values = make([]uint64, 0, min(count, 1024))
		for range count {
			p.Values = append(p.Values, br.u64())
			if br.err != nil {
				return nil, br.err
			}
		}
		out = append(out, p)
	}
	return out, nil
}
