// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ListMax bounds a list's member count. Overflow at the master level
// degrades to capture-all rather than losing coverage.
const ListMax = 32

// ErrListFull is returned by Add when the list is at capacity.
var ErrListFull = errors.New("list full")

// List is an inclusion or exclusion set of small integers. An empty
// list matches every value. Flipping the inversion flag resets the
// members.
type List struct {
	vals []int
	inv  bool
}

// Add inserts v. If inv differs from the list's current sense the list
// is reset first. Duplicates are ignored.
func (l *List) Add(v int, inv bool) error {
	if inv != l.inv {
		l.vals = l.vals[:0]
		l.inv = inv
	}
	for _, x := range l.vals {
		if x == v {
			return nil
		}
	}
	if len(l.vals) >= ListMax {
		return ErrListFull
	}
	l.vals = append(l.vals, v)
	return nil
}

// Contains applies the list condition to v.
func (l *List) Contains(v int) bool {
	if len(l.vals) == 0 {
		return true
	}
	for _, x := range l.vals {
		if x == v {
			return !l.inv
		}
	}
	return l.inv
}

func (l *List) Len() int       { return len(l.vals) }
func (l *List) Inverted() bool { return l.inv }
func (l *List) Values() []int  { return l.vals }

// Describe renders the list for the status report. name, when not nil,
// annotates each value.
func (l *List) Describe(name func(int) string) string {
	var b strings.Builder
	if l.inv {
		b.WriteString("not in ")
	} else {
		b.WriteString("in ")
	}
	for i, v := range l.vals {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", v)
		if name != nil {
			fmt.Fprintf(&b, " (%s)", name(v))
		}
	}
	return b.String()
}
