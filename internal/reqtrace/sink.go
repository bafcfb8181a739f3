// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

// LineWriter consumes fully assembled trace lines. The prefix is the
// currently active nesting prefix; implementations emit prefix, line
// and a newline as one atomic write.
type LineWriter interface {
	WriteLine(prefix, line []byte)
}

// LineSink is a LineWriter that can also serialize a multi-line
// replay: Batch holds the sink's write lock for the duration of fn so
// a replayed event log is never interleaved with other writers.
type LineSink interface {
	LineWriter
	Batch(fn func(w LineWriter))
}
