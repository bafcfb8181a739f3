// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package rules

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kestreldb/reqtrace/internal/arena"
	"github.com/kestreldb/reqtrace/internal/opcode"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// harness wires an engine, a registry writing its default stream to a
// buffer, and a single worker context with a controllable clock.
type harness struct {
	eng    *Engine
	reg    *output.Registry
	def    *bytes.Buffer
	logger *reqtrace.Logger
	base   time.Time
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{def: &bytes.Buffer{}}
	h.reg = output.NewRegistry(h.def)
	h.eng = NewEngine(h.reg)
	h.logger = reqtrace.NewLogger("client:999", arena.New(4096, 0))
	h.base = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	h.now = h.base
	h.logger.SetClock(func() time.Time { return h.now })
	return h
}

// run drives one request through the engine with the given duration.
func (h *harness) run(op opcode.Op, stmt string, dur time.Duration, rc int, events ...string) {
	h.now = h.base
	h.eng.NewRequest(h.logger, "testreq", op, stmt)
	for _, ev := range events {
		h.logger.RecordF(reqtrace.CatTrace, "%s\n", ev)
	}
	h.now = h.base.Add(dur)
	h.eng.EndRequest(h.logger, rc)
}

func TestDurationRuleWritesToFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "out.log")
	if err := h.eng.SetRuleOutput("7", path); err != nil {
		t.Fatal(err)
	}
	err := h.eng.Mutate("7", func(r *Rule) error {
		var e error
		r.Duration, e = ParseRange("100..200")
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return e
	})
	if err != nil {
		t.Fatal(err)
	}

	h.run(opcode.SQL, "select * from t", 150*time.Millisecond, 0, "select * from t")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "testreq 150 msec from client:999 rc 0") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "select * from t") {
		t.Errorf("missing recorded trace: %q", got)
	}

	// below the range: no further write
	before := len(got)
	h.run(opcode.SQL, "select * from t", 50*time.Millisecond, 0, "select * from t")
	data, _ = os.ReadFile(path)
	if len(data) != before {
		t.Errorf("out-of-range request wrote %d extra bytes", len(data)-before)
	}
}

func TestInfoFlowInPublishedDump(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})

	h.now = h.base
	h.eng.NewSQLRequest(h.logger, "select * from t")
	h.logger.RecordF(reqtrace.CatTrace, "step\n")
	h.logger.SetRows(3)
	h.logger.SetCost(1.5)
	h.now = h.base.Add(150 * time.Millisecond)
	h.eng.EndRequest(h.logger, 0)

	got := h.def.String()
	for _, want := range []string{
		"SQL 150 msec from client:999 rc 0",
		"sql=select * from t",
		"rowcount=3",
		"cost=1.5",
		"fingerprint",
		"step",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dump missing %q in:\n%s", want, got)
		}
	}
}

func TestCountedRuleSelfDeletes(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "out.log")
	_ = h.eng.SetRuleOutput("1", path)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		r.Count = 2
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})

	for i := 0; i < 3; i++ {
		h.run(opcode.SQL, "q", 10*time.Millisecond, 0, "line")
	}

	if len(h.eng.Rules()) != 0 {
		t.Error("rule should have deleted itself after two matches")
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "----------"); n != 2 {
		t.Errorf("replays = %d, want exactly 2", n)
	}
	// the file target's reference was released with the rule
	if got := h.reg.Refs(h.reg.Default()); got != 1 {
		t.Errorf("default refs = %d, want 1", got)
	}
}

func TestTwoRulesSameTargetReplayOnce(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "shared.log")
	_ = h.eng.SetRuleOutput("1", path)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})
	_ = h.eng.SetRuleOutput("2", path)
	_ = h.eng.Mutate("2", func(r *Rule) error {
		r.Mask |= reqtrace.CatResults
		r.Active = true
		return nil
	})

	h.now = h.base
	h.eng.NewRequest(h.logger, "testreq", opcode.SQL, "q")
	h.logger.RecordF(reqtrace.CatTrace, "trace line\n")
	h.logger.RecordF(reqtrace.CatResults, "result line\n")
	h.eng.EndRequest(h.logger, 0)

	data, _ := os.ReadFile(path)
	got := string(data)
	if n := strings.Count(got, "----------"); n != 1 {
		t.Errorf("replays = %d, want 1 (masks merged per target)", n)
	}
	if !strings.Contains(got, "trace line") || !strings.Contains(got, "result line") {
		t.Errorf("merged mask should emit both categories: %q", got)
	}
}

func TestMasterCaptureDecision(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		_ = r.Opcodes.Add(int(opcode.Block), false)
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})

	h.eng.NewRequest(h.logger, "testreq", opcode.SQL, "")
	if h.logger.Mask() != reqtrace.CatInfo {
		t.Error("opcode outside the allow-list should capture only info")
	}
	h.eng.EndRequest(h.logger, 0)

	h.eng.NewRequest(h.logger, "testreq", opcode.Block, "")
	if h.logger.Mask()&reqtrace.CatTrace == 0 {
		t.Error("allow-listed opcode should capture")
	}
	h.eng.EndRequest(h.logger, 0)
}

func TestMasterStmtSubstring(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		r.Stmt = "orders"
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})

	h.eng.NewRequest(h.logger, "testreq", opcode.SQL, "select * from customers")
	if h.logger.Mask() != reqtrace.CatInfo {
		t.Error("statement without the substring should capture only info")
	}
	h.eng.EndRequest(h.logger, 0)

	h.eng.NewRequest(h.logger, "testreq", opcode.SQL, "select * from orders")
	if h.logger.Mask()&reqtrace.CatTrace == 0 {
		t.Error("statement with the substring should capture")
	}
	h.eng.EndRequest(h.logger, 0)
}

func TestRuleWithNoStartConditionsCapturesAll(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		var e error
		r.Duration, e = ParseRange("100+")
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return e
	})
	h.eng.NewRequest(h.logger, "testreq", opcode.Find, "")
	if h.logger.Mask()&reqtrace.CatTrace == 0 {
		t.Error("duration-only rule must force capture for every request")
	}
	h.eng.EndRequest(h.logger, 0)
}

func TestInactiveRuleIgnored(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		r.Mask |= reqtrace.CatTrace
		return nil // never activated
	})
	h.eng.NewRequest(h.logger, "testreq", opcode.SQL, "q")
	if h.logger.Mask() != reqtrace.CatInfo {
		t.Error("inactive rule should not force capture")
	}
	h.eng.EndRequest(h.logger, 0)
	if h.def.Len() != 0 {
		t.Errorf("inactive rule produced output: %q", h.def.String())
	}
}

func TestTableCondition(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		r.Table = "orders"
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})

	h.eng.NewRequest(h.logger, "testreq", opcode.Block, "")
	h.logger.LogTable("ORDERS")
	h.eng.EndRequest(h.logger, 0)
	if !strings.Contains(h.def.String(), "testreq") {
		t.Error("case-insensitive table touch should match")
	}

	h.def.Reset()
	h.eng.NewRequest(h.logger, "testreq", opcode.Block, "")
	h.logger.LogTable("items")
	h.eng.EndRequest(h.logger, 0)
	if h.def.Len() != 0 {
		t.Errorf("wrong table should not match: %q", h.def.String())
	}
}

func TestRCListCondition(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("1", func(r *Rule) error {
		_ = r.RCs.Add(99, false)
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		return nil
	})

	h.run(opcode.SQL, "q", time.Millisecond, 0)
	if h.def.Len() != 0 {
		t.Errorf("rc 0 should not match rc-list {99}: %q", h.def.String())
	}
	h.run(opcode.SQL, "q", time.Millisecond, 99)
	if h.def.Len() == 0 {
		t.Error("rc 99 should match rc-list {99}")
	}
}

func TestDeleteReleasesOutput(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "out.log")
	_ = h.eng.SetRuleOutput("1", path)
	rules := h.eng.Rules()
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	tgt := rules[0].Out
	if got := h.reg.Refs(tgt); got != 1 {
		t.Fatalf("target refs = %d, want 1", got)
	}
	if !h.eng.Delete("1") {
		t.Fatal("delete failed")
	}
	// target closed at refcount zero: reacquire opens a fresh handle
	if h.eng.Delete("1") {
		t.Error("double delete should report missing rule")
	}
}

func TestDescribe(t *testing.T) {
	h := newHarness(t)
	_ = h.eng.Mutate("3", func(r *Rule) error {
		var e error
		r.Duration, e = ParseRange("100+")
		_ = r.Opcodes.Add(int(opcode.SQL), false)
		r.Mask |= reqtrace.CatTrace
		r.Active = true
		r.Count = 5
		return e
	})
	var b bytes.Buffer
	h.eng.Describe(&b)
	got := b.String()
	for _, want := range []string{
		"1 rules currently active",
		"Rule 3:",
		"Log next 5 requests that match",
		"duration 100+ msec",
		"opcode is in",
		"Logging detailed trace",
		"Log to <stdout>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("describe missing %q in:\n%s", want, got)
		}
	}
}
