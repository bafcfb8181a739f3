// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

import "github.com/kestreldb/reqtrace/internal/metrics"

// infoWrapCol is the column at which the comma-joined info flow wraps.
const infoWrapCol = 70

// Publish replays the event log to sink: a request header, then every
// print event whose category intersects mask, prefixes nested exactly
// as they were recorded, then a separator line. Safe to call once per
// matched output target; the event log is not mutated.
func (l *Logger) Publish(sink LineSink, mask Category) {
	sink.Batch(func(w LineWriter) {
		prevCur, prevTime := l.cur, l.appendTime
		l.cur, l.appendTime = w, false
		defer func() { l.cur, l.appendTime = prevCur, prevTime }()

		l.prefix.popAll()
		l.writeHeader(false)
		if mask != 0 {
			l.replay(mask)
		}
		l.flushDump()
		l.prefix.popAll()
		l.dumpString("----------")
		l.flushDump()
	})
	metrics.Replays.Inc()
}

// PublishLong emits the long-request dump: the LONG REQUEST header
// (which carries the info flow) followed by a replay of the trace and
// results events.
func (l *Logger) PublishLong(sink LineSink, mask Category) {
	sink.Batch(func(w LineWriter) {
		prevCur, prevTime := l.cur, l.appendTime
		l.cur, l.appendTime = w, false
		defer func() { l.cur, l.appendTime = prevCur, prevTime }()

		l.prefix.popAll()
		l.writeHeader(true)
		if mask != 0 {
			l.replay(mask)
		}
		l.flushDump()
		l.prefix.popAll()
		l.dumpString("----------")
		l.flushDump()
	})
	metrics.Replays.Inc()
}

// PublishHeader emits only the request header, used for the
// long-request dump where the header carries the info flow.
func (l *Logger) PublishHeader(sink LineSink, long bool) {
	sink.Batch(func(w LineWriter) {
		prevCur, prevTime := l.cur, l.appendTime
		l.cur, l.appendTime = w, false
		defer func() { l.cur, l.appendTime = prevCur, prevTime }()

		l.prefix.popAll()
		l.writeHeader(long)
	})
}

// PublishInfo emits just the comma-joined info flow. The diff-stat
// dumper uses this; its context has no request header to print.
func (l *Logger) PublishInfo(sink LineSink) {
	sink.Batch(func(w LineWriter) {
		prevCur, prevTime := l.cur, l.appendTime
		l.cur, l.appendTime = w, false
		defer func() { l.cur, l.appendTime = prevCur, prevTime }()

		l.writeInfoFlow()
	})
}

func (l *Logger) replay(mask Category) {
	for i := range l.events {
		ev := &l.events[i]
		switch ev.kind {
		case evPushPrefix:
			l.prefix.push(ev.body())
		case evPopPrefix:
			l.prefix.pop()
		case evPopAllPrefixes:
			l.prefix.popAll()
		case evPrint:
			if ev.cat&mask != 0 {
				l.dump(ev.body())
			}
		default:
			l.log.Error().Uint8("kind", uint8(ev.kind)).Msg("unknown event kind in replay, skipped")
		}
	}
}

func (l *Logger) writeHeader(long bool) {
	if long {
		l.dumpf("LONG REQUEST %d msec ", l.DurationMS())
	} else {
		l.dumpf("%s %d msec ", l.requestType, l.DurationMS())
	}
	l.dumpf("from %s rc %d\n", l.origin, l.rc)
	if l.retries > 0 {
		l.dumpf("  nretries %d\n", l.retries)
	}
	l.writeInfoFlow()
}

// writeInfoFlow prints every info event as one comma-joined paragraph,
// wrapped at infoWrapCol and indented two spaces.
func (l *Logger) writeInfoFlow() {
	for i := range l.events {
		ev := &l.events[i]
		if ev.kind != evPrint || ev.cat&CatInfo == 0 {
			continue
		}
		body := ev.body()
		if l.dumpPos != 0 && len(body)+l.dumpPos > infoWrapCol {
			l.flushDump()
		}
		if l.dumpPos == 0 {
			l.dumpString("  ")
		} else {
			l.dumpString(", ")
		}
		l.dump(body)
	}
	l.flushDump()
}
