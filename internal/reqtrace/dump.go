// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

import (
	"fmt"
	"time"
)

// The dump path assembles text into a fixed line buffer and hands
// completed lines to the current LineWriter. A line completes on a
// newline in the input or when the buffer fills.

func (l *Logger) flushDump() {
	if l.dumpPos == 0 {
		return
	}
	if l.cur == nil {
		l.dumpPos = 0
		return
	}
	line := l.dumpLine[:l.dumpPos]
	if l.appendTime {
		ms := l.now().Sub(l.start) / time.Millisecond
		line = fmt.Appendf(line, " TIME +%d", int(ms))
	}
	l.cur.WriteLine(l.prefix.active(), line)
	l.dumpPos = 0
}

func (l *Logger) dump(s []byte) {
	for i := 0; i < len(s); {
		if l.dumpPos >= dumpLineSize {
			l.flushDump()
			continue
		}
		if s[i] == '\n' {
			l.flushDump()
		} else {
			l.dumpLine[l.dumpPos] = s[i]
			l.dumpPos++
		}
		i++
	}
}

func (l *Logger) dumpString(s string) {
	for i := 0; i < len(s); {
		if l.dumpPos >= dumpLineSize {
			l.flushDump()
			continue
		}
		if s[i] == '\n' {
			l.flushDump()
		} else {
			l.dumpLine[l.dumpPos] = s[i]
			l.dumpPos++
		}
		i++
	}
}

// dumpf formats directly into the dump path, bypassing the event log.
// Used by header and report printing after the request has ended.
func (l *Logger) dumpf(format string, args ...any) {
	buf := fmt.Appendf(l.scratch[:0], format, args...)
	l.dump(buf)
}
