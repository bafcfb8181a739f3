// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive integer interval. A bound of -1 is unset; both
// unset matches every value.
type Range struct {
	From int
	To   int
}

// NewRange returns an unset range.
func NewRange() Range { return Range{From: -1, To: -1} }

// Contains reports whether v satisfies the range.
func (r Range) Contains(v int) bool {
	if r.From >= 0 && v < r.From {
		return false
	}
	if r.To >= 0 && v > r.To {
		return false
	}
	return true
}

// IsSet reports whether either bound is set.
func (r Range) IsSet() bool { return r.From >= 0 || r.To >= 0 }

func (r Range) String() string {
	switch {
	case r.From >= 0 && r.To >= 0:
		return fmt.Sprintf("%d..%d", r.From, r.To)
	case r.From >= 0:
		return fmt.Sprintf("%d+", r.From)
	case r.To >= 0:
		return fmt.Sprintf("%d-", r.To)
	default:
		return "any"
	}
}

// ParseRange parses the admin range grammar: "N+" is at least N, "N-"
// is at most N, "A..B" is inclusive on both ends, a bare "N" is
// exactly N. Extra dots in the separator are tolerated.
func ParseRange(s string) (Range, error) {
	r := NewRange()
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty range")
	}
	if i := strings.Index(s, ".."); i >= 0 {
		lo, hi := s[:i], strings.TrimLeft(s[i+2:], ".")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		to, err := strconv.Atoi(hi)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.From, r.To = from, to
		return r, nil
	}
	switch {
	case strings.HasSuffix(s, "+"):
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.From = n
	case strings.HasSuffix(s, "-"):
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.To = n
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.From, r.To = n, n
	}
	return r, nil
}

// FloatRange is Range over float64, used for the SQL cost condition.
type FloatRange struct {
	From float64
	To   float64
}

// NewFloatRange returns an unset float range.
func NewFloatRange() FloatRange { return FloatRange{From: -1, To: -1} }

func (r FloatRange) Contains(v float64) bool {
	if r.From >= 0 && v < r.From {
		return false
	}
	if r.To >= 0 && v > r.To {
		return false
	}
	return true
}

func (r FloatRange) IsSet() bool { return r.From >= 0 || r.To >= 0 }

func (r FloatRange) String() string {
	switch {
	case r.From >= 0 && r.To >= 0:
		return fmt.Sprintf("%g..%g", r.From, r.To)
	case r.From >= 0:
		return fmt.Sprintf("%g+", r.From)
	case r.To >= 0:
		return fmt.Sprintf("%g-", r.To)
	default:
		return "any"
	}
}

// ParseFloatRange parses the same grammar as ParseRange with float
// bounds.
func ParseFloatRange(s string) (FloatRange, error) {
	r := NewFloatRange()
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty range")
	}
	if i := strings.Index(s, ".."); i >= 0 {
		lo, hi := s[:i], strings.TrimLeft(s[i+2:], ".")
		from, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		to, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.From, r.To = from, to
		return r, nil
	}
	switch {
	case strings.HasSuffix(s, "+"):
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.From = n
	case strings.HasSuffix(s, "-"):
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.To = n
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return r, fmt.Errorf("bad range %q: %w", s, err)
		}
		r.From, r.To = n, n
	}
	return r, nil
}
