// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

import (
	"encoding/hex"
	"fmt"

	"github.com/kestreldb/reqtrace/internal/metrics"
)

// RecordF formats and records a trace event. When neither the event
// mask nor the dump mask intersects cat this returns before formatting
// anything; that early return is the hot path.
func (l *Logger) RecordF(cat Category, format string, args ...any) {
	if l == nil || l.mask&cat == 0 {
		return
	}
	buf := fmt.Appendf(l.scratch[:0], format, args...)
	l.record(cat, buf)
}

// RecordLiteral records caller-owned text with stable storage. The
// text is referenced, never copied.
func (l *Logger) RecordLiteral(cat Category, text string) {
	if l == nil || l.mask&cat == 0 {
		return
	}
	if l.eventMask&cat != 0 {
		l.events = append(l.events, event{kind: evPrint, cat: cat, lit: text})
		metrics.EventsRecorded.Inc()
	}
	if l.dumpMask&cat != 0 {
		l.dumpString(text)
	}
}

// RecordHex records data as a hex string. The encoding is done once
// into a single arena buffer shared by the event and dump paths.
func (l *Logger) RecordHex(cat Category, data []byte) {
	if l == nil || l.mask&cat == 0 {
		return
	}
	buf := l.a.Alloc(hex.EncodedLen(len(data)))
	if buf == nil {
		l.log.Error().Int("len", len(data)).Msg("arena exhausted, hex record dropped")
		metrics.EventsDropped.Inc()
		return
	}
	hex.Encode(buf, data)
	if l.eventMask&cat != 0 {
		l.events = append(l.events, event{kind: evPrint, cat: cat, text: buf})
		metrics.EventsRecorded.Inc()
	}
	if l.dumpMask&cat != 0 {
		l.dump(buf)
	}
}

// record appends buf as a print event and mirrors it to the dump path.
// buf is transient (usually the scratch buffer) so the event takes an
// arena copy, clamped to the scratch size when truncation is on.
func (l *Logger) record(cat Category, buf []byte) {
	if l.eventMask&cat != 0 {
		keep := buf
		if l.truncate && len(keep) > scratchSize {
			keep = keep[:scratchSize]
		}
		text := l.a.Copy(keep)
		if text == nil {
			l.log.Error().Int("len", len(keep)).Msg("arena exhausted, record dropped")
			metrics.EventsDropped.Inc()
		} else {
			l.events = append(l.events, event{kind: evPrint, cat: cat, text: text})
			metrics.EventsRecorded.Inc()
		}
	}
	if l.dumpMask&cat != 0 {
		l.dump(buf)
	}
}

// PushPrefixF pushes a nesting prefix onto the live stack and into the
// event log. Depth beyond the bound is counted but rejected with a log
// line rather than overflowing the prefix buffer.
func (l *Logger) PushPrefixF(format string, args ...any) {
	if l == nil || l.mask == 0 {
		return
	}
	buf := fmt.Appendf(l.scratch[:0], format, args...)
	if l.dumpMask != 0 {
		l.flushDump()
		if !l.prefix.push(buf) {
			l.log.Error().Int("depth", l.prefix.depth).Msg("prefix stack full, push ignored")
		}
	}
	if l.eventMask != 0 {
		text := l.a.Copy(buf)
		if text == nil {
			l.log.Error().Msg("arena exhausted, prefix push dropped")
			metrics.EventsDropped.Inc()
			return
		}
		l.events = append(l.events, event{kind: evPushPrefix, text: text})
	}
}

// PopPrefix undoes the most recent PushPrefixF. Underflow is clamped
// and reported as an internal inconsistency.
func (l *Logger) PopPrefix() {
	if l == nil || l.mask == 0 {
		return
	}
	if l.dumpMask != 0 {
		l.flushDump()
		if !l.prefix.pop() {
			l.log.Error().Msg("prefix stack underflow")
		}
	}
	if l.eventMask != 0 {
		l.events = append(l.events, event{kind: evPopPrefix})
	}
}

// PopAllPrefixes empties the prefix stack regardless of depth.
func (l *Logger) PopAllPrefixes() {
	if l == nil || l.mask == 0 {
		return
	}
	if l.dumpMask != 0 {
		l.flushDump()
		l.prefix.popAll()
	}
	if l.eventMask != 0 {
		l.events = append(l.events, event{kind: evPopAllPrefixes})
	}
}
