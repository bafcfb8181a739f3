// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package arena provides a per-context bump allocator. Allocations are
// never freed individually; Reset releases everything at once, keeping
// the first chunk warm so a reused context pays no allocation cost in
// steady state.
package arena

// DefaultChunkSize is the slab size used when none is given.
const DefaultChunkSize = 64 * 1024

// Arena is a chunked bump allocator. Not safe for concurrent use; each
// request context owns its own.
type Arena struct {
	chunks    [][]byte
	free      []byte
	chunkSize int
	limit     int
	used      int
}

// New creates an arena with the given chunk size and total byte limit.
// A limit of 0 means unlimited. Chunk sizes below 1KB fall back to
// DefaultChunkSize.
func New(chunkSize, limit int) *Arena {
	if chunkSize < 1024 {
		chunkSize = DefaultChunkSize
	}
	a := &Arena{chunkSize: chunkSize, limit: limit}
	first := make([]byte, chunkSize)
	a.chunks = append(a.chunks, first)
	a.free = first
	return a
}

// Alloc returns n bytes of arena-owned storage, or nil when the
// allocation would exceed the arena's limit. Allocation failure is
// non-fatal by design; callers drop the event and carry on.
func (a *Arena) Alloc(n int) []byte {
	if n < 0 {
		return nil
	}
	if a.limit > 0 && a.used+n > a.limit {
		return nil
	}
	if n > len(a.free) {
		size := a.chunkSize
		if n > size {
			size = n
		}
		chunk := make([]byte, size)
		a.chunks = append(a.chunks, chunk)
		a.free = chunk
	}
	p := a.free[:n:n]
	a.free = a.free[n:]
	a.used += n
	return p
}

// Copy interns b into the arena. Returns nil when the arena is full.
func (a *Arena) Copy(b []byte) []byte {
	p := a.Alloc(len(b))
	if p == nil {
		return nil
	}
	copy(p, b)
	return p
}

// CopyString interns s into the arena. Returns nil when the arena is
// full.
func (a *Arena) CopyString(s string) []byte {
	p := a.Alloc(len(s))
	if p == nil {
		return nil
	}
	copy(p, s)
	return p
}

// Reset releases all allocations in bulk. The first chunk is retained
// and reused.
func (a *Arena) Reset() {
	a.chunks = a.chunks[:1]
	a.free = a.chunks[0]
	a.used = 0
}

// Used is the total bytes handed out since the last Reset.
func (a *Arena) Used() int { return a.used }
