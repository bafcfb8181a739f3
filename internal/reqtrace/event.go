// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

type eventKind uint8

const (
	evPrint eventKind = iota
	evPushPrefix
	evPopPrefix
	evPopAllPrefixes
)

// event is one entry of the request's append-only event log. Print and
// push events carry text either as an arena-owned copy or, for
// RecordLiteral, as a caller-owned string that is never copied.
type event struct {
	kind eventKind
	cat  Category
	text []byte
	lit  string
}

func (e *event) body() []byte {
	if e.text != nil {
		return e.text
	}
	return []byte(e.lit)
}
