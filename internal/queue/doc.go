// Package queue provides the heaps and visited sets used by graph construction and search.
package queue
