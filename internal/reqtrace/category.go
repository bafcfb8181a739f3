// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

// Category classifies a trace event. Rules select categories to
// capture and to emit; masks are bitwise unions of categories.
type Category uint32

const (
	// CatInfo marks one-line request facts (row counts, cost,
	// fingerprint). Info events are folded into the request header
	// rather than printed as trace lines.
	CatInfo Category = 1 << iota

	// CatTrace marks execution trace lines.
	CatTrace

	// CatResults marks returned-row dumps.
	CatResults
)

// CatAll is every category.
const CatAll = CatInfo | CatTrace | CatResults

func (c Category) String() string {
	switch c {
	case CatInfo:
		return "info"
	case CatTrace:
		return "trace"
	case CatResults:
		return "results"
	}
	s := ""
	for _, part := range []struct {
		c    Category
		name string
	}{{CatInfo, "info"}, {CatTrace, "trace"}, {CatResults, "results"}} {
		if c&part.c != 0 {
			if s != "" {
				s += "|"
			}
			s += part.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}
