// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

const (
	maxPrefixes   = 16
	prefixBufSize = 256
)

// prefixStack is a bounded stack of concatenated prefix strings.
// Pushes beyond maxPrefixes still bump the depth counter so that the
// matching pops unwind correctly, but stop mutating the text.
type prefixStack struct {
	buf   [prefixBufSize]byte
	pos   int
	stack [maxPrefixes]int
	depth int
}

// push appends s to the active prefix. Returns false when the stack is
// already at its depth bound; the push is still counted.
func (p *prefixStack) push(s []byte) bool {
	if p.depth >= maxPrefixes {
		p.depth++
		return false
	}
	p.stack[p.depth] = p.pos
	p.depth++
	n := copy(p.buf[p.pos:], s)
	p.pos += n
	return true
}

// pop removes the most recent prefix. Returns false on underflow, in
// which case the stack is left empty.
func (p *prefixStack) pop() bool {
	p.depth--
	if p.depth < 0 {
		p.depth = 0
		p.pos = 0
		return false
	}
	if p.depth < maxPrefixes {
		p.pos = p.stack[p.depth]
	}
	return true
}

func (p *prefixStack) popAll() {
	p.depth = 0
	p.pos = 0
}

func (p *prefixStack) active() []byte {
	return p.buf[:p.pos]
}
