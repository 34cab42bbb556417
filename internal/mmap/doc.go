// Package mmap provides read-only memory-mapped file access.
//
//	m, err := mmap.Open("index.bin")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//
// Unix uses mmap(2) with a sequential madvise(2) hint. Windows uses
// CreateFileMapping/MapViewOfFile. Callers must not touch Bytes() after Close.
package mmap
