// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package reqtrace implements the per-request logging context.
//
// Each worker owns exactly one Logger for its lifetime. At the start of
// a request the rule engine decides a capture mask; every Record call
// first checks that mask and returns immediately when it does not
// intersect, so an idle configuration costs a single load and compare
// per call site. Captured events accumulate in an arena-backed event
// log that can be replayed any number of times after the request ends,
// each time filtered by a different category mask and routed to a
// different output target.
//
// A Logger is not safe for concurrent use. Replay targets serialize
// writers themselves via LineSink.Batch.
package reqtrace
