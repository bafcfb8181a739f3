// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package longreq

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/arena"
	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/opcode"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// runRequest produces a finished request context with the given
// duration.
func runRequest(now *time.Time, base time.Time, dur time.Duration, sql bool) *reqtrace.Logger {
	l := reqtrace.NewLogger("client:1", arena.New(4096, 0))
	l.SetClock(func() time.Time { return *now })
	*now = base
	l.BeginRequest("testreq", opcode.SQL, "select 1")
	l.SetAdHocSQL(sql)
	l.ApplyCapture(reqtrace.CatTrace, 0, false, true)
	l.RecordF(reqtrace.CatTrace, "step\n")
	*now = base.Add(dur)
	l.Finish(0)
	return l
}

func TestLongRequestDump(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000)
	path := filepath.Join(t.TempDir(), "longreqs.log")
	d.SetFile(path)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	l := runRequest(&now, base, 150*time.Millisecond, false)
	d.Observe(l)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "LONG REQUEST 150 msec from client:1 rc 0") {
		t.Errorf("missing long header: %q", got)
	}
	if !strings.Contains(got, "step") {
		t.Errorf("missing trace replay: %q", got)
	}

	if norm, long := d.Stats(); norm != 0 || long != 1 {
		t.Errorf("stats = %d/%d, want 0 norm 1 long", norm, long)
	}
}

func TestLongDumpCarriesInfoFlow(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000)
	path := filepath.Join(t.TempDir(), "longreqs.log")
	d.SetFile(path)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	// no rule armed this context: only the always-on info gathering
	l := reqtrace.NewLogger("client:1", arena.New(4096, 0))
	l.SetClock(func() time.Time { return now })
	l.BeginRequest("testreq", opcode.SQL, "select 1")
	l.RecordF(reqtrace.CatInfo, "sql=select 1")
	l.SetRows(2)
	l.SetCost(0.5)
	now = base.Add(150 * time.Millisecond)
	l.Finish(0)
	d.Observe(l)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"sql=select 1", "rowcount=2", "cost=0.5"} {
		if !strings.Contains(got, want) {
			t.Errorf("long dump missing %q in:\n%s", want, got)
		}
	}
}

func TestStatsDrainOnRead(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	d.Observe(runRequest(&now, base, 50*time.Millisecond, false))
	d.Observe(runRequest(&now, base, 150*time.Millisecond, false))
	if norm, long := d.Stats(); norm != 1 || long != 1 {
		t.Errorf("stats = %d/%d, want 1 norm 1 long", norm, long)
	}
	if norm, long := d.Stats(); norm != 0 || long != 0 {
		t.Errorf("second read = %d/%d, want tallies drained", norm, long)
	}
}

func TestShortRequestIgnored(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	d.Observe(runRequest(&now, base, 50*time.Millisecond, false))
	if def.Len() != 0 {
		t.Errorf("short request produced output: %q", def.String())
	}
	if norm, long := d.Stats(); norm != 1 || long != 0 {
		t.Errorf("stats = %d/%d, want 1 norm 0 long", norm, long)
	}
}

func TestSQLThresholdApplies(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	// transactional threshold 100ms, ad hoc SQL allowed 5s
	d := NewDetector(reg, 100, 5000)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	d.Observe(runRequest(&now, base, 150*time.Millisecond, true))
	if _, long := d.Stats(); long != 0 {
		t.Error("ad hoc SQL under its own threshold should not be long")
	}
	d.Observe(runRequest(&now, base, 6*time.Second, true))
	if _, long := d.Stats(); long != 1 {
		t.Error("ad hoc SQL over its threshold should be long")
	}
}

func TestCoalescedSummary(t *testing.T) {
	var logBuf bytes.Buffer
	logging.SetLogger(zerolog.New(&logBuf))
	defer logging.Init(logging.Config{})

	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000)
	d.SetFile(filepath.Join(t.TempDir(), "longreqs.log"))

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	for _, ms := range []int{150, 200, 120} {
		d.Observe(runRequest(&now, base, time.Duration(ms)*time.Millisecond, false))
		now = base // same wall-clock second for the window
	}
	if strings.Contains(logBuf.String(), "LONG REQUESTS") {
		t.Fatalf("summary emitted before the second rolled over: %q", logBuf.String())
	}

	now = base.Add(time.Second)
	d.Flush()
	got := logBuf.String()
	if !strings.Contains(got, "3 LONG REQUESTS 120 MS - 200 MS logged in") {
		t.Errorf("summary = %q, want count=3 min=120 max=200", got)
	}
	if n := strings.Count(got, "LONG REQUEST"); n != 1 {
		t.Errorf("summary lines = %d, want exactly 1", n)
	}

	// the window reset; a flush with nothing pending emits nothing
	logBuf.Reset()
	now = base.Add(2 * time.Second)
	d.Flush()
	if logBuf.Len() != 0 {
		t.Errorf("empty window flushed output: %q", logBuf.String())
	}
}

func TestSingularSummary(t *testing.T) {
	var logBuf bytes.Buffer
	logging.SetLogger(zerolog.New(&logBuf))
	defer logging.Init(logging.Config{})

	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000)
	d.SetFile(filepath.Join(t.TempDir(), "longreqs.log"))

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	d.Observe(runRequest(&now, base, 150*time.Millisecond, false))
	now = base.Add(time.Second)
	d.Flush()
	if !strings.Contains(logBuf.String(), "LONG REQUEST 150 MS logged in") {
		t.Errorf("singular summary = %q", logBuf.String())
	}
}

func TestSummarySuppressedOnDefaultTarget(t *testing.T) {
	var logBuf bytes.Buffer
	logging.SetLogger(zerolog.New(&logBuf))
	defer logging.Init(logging.Config{})

	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDetector(reg, 100, 5000) // dumps go to the default stream

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	d.Observe(runRequest(&now, base, 150*time.Millisecond, false))
	now = base.Add(time.Second)
	d.Flush()
	if strings.Contains(logBuf.String(), "logged in") {
		t.Errorf("summary should be suppressed for the default target: %q", logBuf.String())
	}
}

func TestDiffStatDump(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDiffStat(reg, "", 60)

	d.Logger().RecordF(reqtrace.CatInfo, "n_reqs 42")
	d.Logger().RecordF(reqtrace.CatInfo, "n_commits 7")
	d.Dump()

	got := def.String()
	if !strings.Contains(got, "n_reqs 42") || !strings.Contains(got, "n_commits 7") {
		t.Errorf("diffstat dump = %q", got)
	}

	// buffer reinitialized: a second dump emits nothing new
	def.Reset()
	d.Dump()
	if def.Len() != 0 {
		t.Errorf("second dump repeated counters: %q", def.String())
	}
}

func TestDiffStatThreshold(t *testing.T) {
	var def bytes.Buffer
	reg := output.NewRegistry(&def)
	d := NewDiffStat(reg, "", 0)
	if d.Threshold() != 0 {
		t.Error("threshold should start disabled")
	}
	d.SetThreshold(30)
	if d.Threshold() != 30 {
		t.Errorf("threshold = %d, want 30", d.Threshold())
	}
}
