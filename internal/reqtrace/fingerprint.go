// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

import (
	"encoding/binary"
	"strings"

	"github.com/zeebo/xxh3"
)

// FingerprintSQL derives a stable 16-byte fingerprint from SQL text.
// The text is normalized first (lowercased, whitespace collapsed) so
// formatting differences map to the same fingerprint.
func FingerprintSQL(sql string) [16]byte {
	norm := normalizeSQL(sql)
	sum := xxh3.HashString128(norm)
	var fp [16]byte
	binary.BigEndian.PutUint64(fp[:8], sum.Hi)
	binary.BigEndian.PutUint64(fp[8:], sum.Lo)
	return fp
}

func normalizeSQL(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	space := false
	for _, r := range strings.TrimSpace(sql) {
		switch r {
		case ' ', '\t', '\n', '\r':
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			if 'A' <= r && r <= 'Z' {
				r += 'a' - 'A'
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
