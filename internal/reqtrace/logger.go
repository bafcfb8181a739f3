// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package reqtrace

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/arena"
	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/metrics"
	"github.com/kestreldb/reqtrace/internal/opcode"
)

const (
	scratchSize  = 256
	dumpLineSize = 1024
)

// Logger is the per-worker request context. The first field group
// persists across requests; everything below the marker is transient
// per-request state cleared by Reset.
type Logger struct {
	a      *arena.Arena
	log    zerolog.Logger
	origin string
	now    func() time.Time

	// transient per-request state
	inRequest   bool
	requestType string
	adHocSQL    bool
	op          opcode.Op
	stmt        string

	eventMask Category
	dumpMask  Category
	mask      Category // eventMask | dumpMask, the hot-path guard
	truncate  bool
	trackTbls bool

	events []event
	prefix prefixStack

	dumpLine   [dumpLineSize]byte
	dumpPos    int
	cur        LineWriter
	dumpOut    LineSink
	appendTime bool

	start     time.Time
	queueTime time.Duration
	duration  time.Duration

	rows     int
	cost     float64
	rc       int
	retries  int
	vreplays int

	fp     [16]byte
	haveFP bool

	tables []string

	scratch [scratchSize]byte
}

// NewLogger creates a request context for one worker. origin is the
// human-readable peer identity included in every published header.
func NewLogger(origin string, a *arena.Arena) *Logger {
	return &Logger{
		a:      a,
		log:    logging.Component("reqtrace"),
		origin: origin,
		now:    time.Now,
	}
}

// SetClock overrides the wall clock. Tests only.
func (l *Logger) SetClock(now func() time.Time) { l.now = now }

// Reset bulk-frees the event log and zeroes transient state. O(1)
// amortized: the arena is reset as a region, not walked.
func (l *Logger) Reset() {
	l.a.Reset()
	l.inRequest = false
	l.requestType = ""
	l.adHocSQL = false
	l.op = 0
	l.stmt = ""
	l.eventMask = 0
	l.dumpMask = 0
	l.mask = 0
	l.truncate = false
	l.trackTbls = false
	l.events = l.events[:0]
	l.prefix.popAll()
	l.dumpPos = 0
	l.cur = nil
	l.dumpOut = nil
	l.appendTime = false
	l.start = time.Time{}
	l.queueTime = 0
	l.duration = 0
	l.rows = 0
	l.cost = 0
	l.rc = 0
	l.retries = 0
	l.vreplays = 0
	l.fp = [16]byte{}
	l.haveFP = false
	l.tables = l.tables[:0]
}

// BeginRequest resets the context and arms it for a new request.
// Info records are always gathered so any published dump carries the
// request facts (SQL text, rowcount, cost, fingerprint) in its header
// flow; the rule engine widens the mask further with ApplyCapture.
func (l *Logger) BeginRequest(requestType string, op opcode.Op, stmt string) {
	l.Reset()
	l.inRequest = true
	l.requestType = requestType
	l.op = op
	l.stmt = stmt
	l.eventMask = CatInfo
	l.mask = CatInfo
	l.start = l.now()
}

// ApplyCapture widens the capture mask. The event mask selects what is
// appended to the event log; the dump mask selects what is additionally
// printed synchronously as the request runs.
func (l *Logger) ApplyCapture(eventMask, dumpMask Category, trackTables, truncate bool) {
	l.eventMask |= eventMask
	l.dumpMask |= dumpMask
	l.mask = l.eventMask | l.dumpMask
	l.trackTbls = l.trackTbls || trackTables
	l.truncate = truncate
}

// SetDumpSink routes the synchronous trace-as-you-go path. When
// appendTime is set each flushed line carries a " TIME +<ms>" trailer
// relative to the request start.
func (l *Logger) SetDumpSink(sink LineSink, appendTime bool) {
	l.dumpOut = sink
	l.cur = sink
	l.appendTime = appendTime
}

// Finish closes out the request: folds final metrics into the event
// log as info records, flushes any partial dump line and fixes the
// duration. The rule engine evaluates and replays afterwards.
func (l *Logger) Finish(rc int) {
	if l == nil || !l.inRequest {
		return
	}
	if l.rows > 0 {
		l.RecordF(CatInfo, "rowcount=%d", l.rows)
	}
	if l.cost > 0 {
		l.RecordF(CatInfo, "cost=%f", l.cost)
	}
	if l.vreplays > 0 {
		l.RecordF(CatInfo, "verify replays=%d", l.vreplays)
	}
	if l.haveFP {
		l.RecordF(CatInfo, "fingerprint %x", l.fp)
	}
	l.inRequest = false
	l.flushDump()
	l.rc = rc
	l.duration = l.now().Sub(l.start) + l.queueTime
	metrics.RequestDuration.Observe(l.duration.Seconds())
}

// LogTable notes that the request touched a table. No-op unless some
// active rule has a table condition.
func (l *Logger) LogTable(name string) {
	if l == nil || !l.trackTbls {
		return
	}
	for _, t := range l.tables {
		if strings.EqualFold(t, name) {
			return
		}
	}
	l.tables = append(l.tables, name)
}

// TouchedTable reports whether the request touched the named table,
// case-insensitively.
func (l *Logger) TouchedTable(name string) bool {
	for _, t := range l.tables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func (l *Logger) SetQueueTime(d time.Duration) { l.queueTime = d }
func (l *Logger) SetRows(n int)                { l.rows = n }
func (l *Logger) SetCost(c float64)            { l.cost = c }
func (l *Logger) SetRetries(n int)             { l.retries = n }
func (l *Logger) SetVReplays(n int)            { l.vreplays = n }
func (l *Logger) SetAdHocSQL(v bool)           { l.adHocSQL = v }

// SetFingerprint attaches a 16-byte statement fingerprint, reported as
// an info record at the end of the request.
func (l *Logger) SetFingerprint(fp [16]byte) {
	l.fp = fp
	l.haveFP = true
}

func (l *Logger) InRequest() bool      { return l != nil && l.inRequest }
func (l *Logger) Origin() string       { return l.origin }
func (l *Logger) Opcode() opcode.Op    { return l.op }
func (l *Logger) SQL() string          { return l.stmt }
func (l *Logger) AdHocSQL() bool       { return l.adHocSQL }
func (l *Logger) Rows() int            { return l.rows }
func (l *Logger) Cost() float64        { return l.cost }
func (l *Logger) RC() int              { return l.rc }
func (l *Logger) Retries() int         { return l.retries }
func (l *Logger) VReplays() int        { return l.vreplays }
func (l *Logger) Mask() Category       { return l.mask }
func (l *Logger) RequestType() string  { return l.requestType }
func (l *Logger) Fingerprint() ([16]byte, bool) { return l.fp, l.haveFP }

// DurationMS is the request duration in milliseconds, queueing delay
// included. Valid after Finish.
func (l *Logger) DurationMS() int {
	return int(l.duration / time.Millisecond)
}

// BeginStatDump reinitializes the context as a periodic-statistics
// accumulation buffer. Single-writer; the maintenance task owns it.
func (l *Logger) BeginStatDump() {
	l.Reset()
	l.inRequest = true
	l.requestType = "stat dump"
	l.op = opcode.Debug
	l.eventMask = CatInfo
	l.mask = CatInfo
	l.start = l.now()
}
