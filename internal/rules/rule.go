// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package rules

import (
	"fmt"
	"io"
	"strings"

	"github.com/kestreldb/reqtrace/internal/opcode"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// Rule is one admin-defined logging rule: a set of AND-combined
// conditions, an event mask selecting what to emit and an output
// target. A Rule holds exactly one reference on its target for its
// whole lifetime.
type Rule struct {
	Name   string
	Active bool

	// Count, when positive, is the remaining number of matches; the
	// rule deletes itself when it reaches zero. Zero means unlimited.
	Count int

	Duration Range
	Retries  Range
	VReplays Range
	Rows     Range
	Cost     FloatRange
	Opcodes  List
	RCs      List
	Table    string
	Stmt     string

	Mask reqtrace.Category
	Out  *output.Target
}

func newRule(name string, out *output.Target) *Rule {
	return &Rule{
		Name:     name,
		Duration: NewRange(),
		Retries:  NewRange(),
		VReplays: NewRange(),
		Rows:     NewRange(),
		Cost:     NewFloatRange(),
		Out:      out,
	}
}

// matches tests every condition against a finished request. A rule
// with no conditions matches unconditionally.
func (r *Rule) matches(l *reqtrace.Logger) bool {
	if !r.Retries.Contains(l.Retries()) {
		return false
	}
	if !r.Duration.Contains(l.DurationMS()) {
		return false
	}
	if !r.VReplays.Contains(l.VReplays()) {
		return false
	}
	if !r.Cost.Contains(l.Cost()) {
		return false
	}
	if !r.Rows.Contains(l.Rows()) {
		return false
	}
	if !r.Opcodes.Contains(int(l.Opcode())) {
		return false
	}
	if !r.RCs.Contains(l.RC()) {
		return false
	}
	if r.Stmt != "" && !strings.Contains(l.SQL(), r.Stmt) {
		return false
	}
	if r.Table != "" && !l.TouchedTable(r.Table) {
		return false
	}
	return true
}

// Describe writes the rule's full status-report entry.
func (r *Rule) Describe(w io.Writer) {
	fmt.Fprintf(w, "Rule %s:\n", r.Name)
	if !r.Active {
		fmt.Fprintf(w, "  Inactive\n")
	}
	if r.Count > 0 {
		fmt.Fprintf(w, "  Log next %d requests that match\n", r.Count)
	}
	if r.Duration.IsSet() {
		fmt.Fprintf(w, "    duration %s msec\n", r.Duration)
	}
	if r.Retries.IsSet() {
		fmt.Fprintf(w, "    retries %s\n", r.Retries)
	}
	if r.VReplays.IsSet() {
		fmt.Fprintf(w, "    verify replays %s\n", r.VReplays)
	}
	if r.Cost.IsSet() {
		fmt.Fprintf(w, "    SQL cost %s\n", r.Cost)
	}
	if r.Rows.IsSet() {
		fmt.Fprintf(w, "    SQL rows %s\n", r.Rows)
	}
	if r.RCs.Len() > 0 {
		fmt.Fprintf(w, "    rcode is %s\n", r.RCs.Describe(nil))
	}
	if r.Opcodes.Len() > 0 {
		fmt.Fprintf(w, "    opcode is %s\n", r.Opcodes.Describe(func(v int) string {
			return opcode.Op(v).String()
		}))
	}
	if r.Table != "" {
		fmt.Fprintf(w, "    touches table '%s'\n", r.Table)
	}
	if r.Stmt != "" {
		fmt.Fprintf(w, "    sql statement like '%%%s%%'\n", r.Stmt)
	}
	if r.Mask&reqtrace.CatTrace != 0 {
		fmt.Fprintf(w, "  Logging detailed trace\n")
	}
	if r.Mask&reqtrace.CatResults != 0 {
		fmt.Fprintf(w, "  Logging query results\n")
	}
	fmt.Fprintf(w, "  Log to %s\n", r.Out.Name())
}
