package persistence

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/hnswtag/internal/mmap"
)

// SaveFile encodes src into filename. The file is written to a temporary
// file in the same directory and renamed into place, so readers never see a
// partial index.
func SaveFile(filename string, src Source, c Compression) error {
	return SaveToFile(filename, func(w io.Writer) error {
		return Encode(w, src, c)
	})
}

// LoadFile memory-maps filename and decodes it into sink.
func LoadFile(filename string, sink Sink) error {
	m, err := mmap.Open(filename)
	if err != nil {
		return err
	}
	defer m.Close()

	return Decode(bytes.NewReader(m.Bytes()), sink)
}

// SaveToFile is a helper to save data to a file atomically.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, bufferSize)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}
