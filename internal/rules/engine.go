// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package rules

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/metrics"
	"github.com/kestreldb/reqtrace/internal/opcode"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// Engine owns the rule set and the derived master capture state. One
// coarse lock covers rule mutation and end-of-request evaluation; the
// master state is read lock-free on the request-start path.
type Engine struct {
	mu    sync.Mutex
	rules []*Rule

	master atomic.Pointer[master]

	reg      *output.Registry
	verbose  atomic.Bool
	truncate atomic.Bool
	log      zerolog.Logger
}

// NewEngine creates an engine with an empty rule set. Truncation of
// over-long records defaults to on.
func NewEngine(reg *output.Registry) *Engine {
	e := &Engine{
		reg: reg,
		log: logging.Component("rules"),
	}
	e.truncate.Store(true)
	e.master.Store(buildMaster(nil))
	return e
}

// NewRequest arms a worker's context for a request. The master state
// decides, conservatively, whether events must be captured.
func (e *Engine) NewRequest(l *reqtrace.Logger, requestType string, op opcode.Op, stmt string) {
	l.BeginRequest(requestType, op, stmt)
	m := e.master.Load()
	if m.wants(op, stmt) {
		l.ApplyCapture(m.eventMask, 0, m.tableRules, e.truncate.Load())
	} else {
		l.ApplyCapture(0, 0, m.tableRules, e.truncate.Load())
	}
}

// NewSQLRequest arms a context for an ad hoc SQL request with no
// enclosing transaction. The statement is recorded as an info event
// and fingerprinted.
func (e *Engine) NewSQLRequest(l *reqtrace.Logger, stmt string) {
	e.NewRequest(l, "SQL", opcode.SQL, stmt)
	l.SetAdHocSQL(true)
	l.SetFingerprint(reqtrace.FingerprintSQL(stmt))
	l.RecordF(reqtrace.CatInfo, "sql=%s", stmt)
}

// outUse accumulates the merged event mask per distinct output target
// so two rules writing to the same target replay the log once.
type outUse struct {
	out  *output.Target
	mask reqtrace.Category
}

// EndRequest finishes the context, evaluates every active rule
// against its final metrics and replays the event log once per
// distinct matched output target. Rules with an exhausted use count
// delete themselves.
func (e *Engine) EndRequest(l *reqtrace.Logger, rc int) {
	l.Finish(rc)

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.rules) == 0 {
		return
	}

	var uses []outUse
	deleted := false
	kept := e.rules[:0]
	for _, r := range e.rules {
		if !r.Active || !r.matches(l) {
			kept = append(kept, r)
			continue
		}
		if e.verbose.Load() {
			e.log.Info().Str("rule", r.Name).Uint32("mask", uint32(r.Mask)).Msg("matched rule")
		}
		metrics.RuleMatches.WithLabelValues(r.Name).Inc()

		found := false
		for i := range uses {
			if uses[i].out == r.Out {
				uses[i].mask |= r.Mask
				found = true
				break
			}
		}
		if !found {
			e.reg.Retain(r.Out)
			uses = append(uses, outUse{out: r.Out, mask: r.Mask})
		}

		if r.Count > 0 {
			r.Count--
			if r.Count == 0 {
				e.log.Info().Str("rule", r.Name).Msg("discarding logging rule")
				e.reg.Release(r.Out)
				deleted = true
				continue
			}
		}
		kept = append(kept, r)
	}
	e.rules = kept
	if deleted {
		e.rescan()
	}

	for _, u := range uses {
		if e.verbose.Load() {
			e.log.Info().Str("target", u.out.Name()).Uint32("mask", uint32(u.mask)).Msg("replaying to target")
		}
		l.Publish(u.out, u.mask)
		e.reg.Release(u.out)
	}
}

// rescan rebuilds the master capture state. Callers hold e.mu.
func (e *Engine) rescan() {
	e.master.Store(buildMaster(e.rules))
	active := 0
	for _, r := range e.rules {
		if r.Active {
			active++
		}
	}
	metrics.ActiveRules.Set(float64(active))
}

func (e *Engine) findLocked(name string) *Rule {
	for _, r := range e.rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Mutate applies fn to the named rule, creating it (inactive, logging
// to the default target) if absent, then rescans.
func (e *Engine) Mutate(name string, fn func(*Rule) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.findLocked(name)
	if r == nil {
		e.reg.Retain(e.reg.Default())
		r = newRule(name, e.reg.Default())
		e.rules = append(e.rules, r)
	}
	err := fn(r)
	e.rescan()
	return err
}

// Delete removes the named rule and releases its output reference.
func (e *Engine) Delete(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.Name == name {
			e.reg.Release(r.Out)
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			e.rescan()
			return true
		}
	}
	return false
}

// SetRuleOutput points the named rule at a file target, swapping the
// output references.
func (e *Engine) SetRuleOutput(name, filename string) error {
	return e.Mutate(name, func(r *Rule) error {
		old := r.Out
		r.Out = e.reg.Acquire(filename)
		e.reg.Release(old)
		return nil
	})
}

// SetRuleStdout points the named rule back at the default target.
func (e *Engine) SetRuleStdout(name string) error {
	return e.Mutate(name, func(r *Rule) error {
		old := r.Out
		e.reg.Retain(e.reg.Default())
		r.Out = e.reg.Default()
		e.reg.Release(old)
		return nil
	})
}

// Rules returns a snapshot of the current rule set for reporting.
func (e *Engine) Rules() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// ActiveCount reports how many rules are currently active.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, r := range e.rules {
		if r.Active {
			n++
		}
	}
	return n
}

// Describe writes the rule section of the status report.
func (e *Engine) Describe(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := 0
	for _, r := range e.rules {
		if r.Active {
			active++
		}
	}
	fmt.Fprintf(w, "%d rules currently active\n", active)
	for _, r := range e.rules {
		r.Describe(w)
	}
}

func (e *Engine) Verbose() bool      { return e.verbose.Load() }
func (e *Engine) SetVerbose(v bool)  { e.verbose.Store(v) }
func (e *Engine) Truncate() bool     { return e.truncate.Load() }
func (e *Engine) SetTruncate(v bool) { e.truncate.Store(v) }
