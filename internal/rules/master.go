// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package rules

import (
	"strings"

	"github.com/kestreldb/reqtrace/internal/opcode"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// maxMasterStmts bounds the SQL substrings tracked at request start.
// More active statement conditions than this degrade to capture-all.
const maxMasterStmts = 16

// master is the derived capture state consulted on every request
// start. It is rebuilt from scratch after every rule mutation and
// published atomically; readers never see a partial rebuild. The
// gather decision is deliberately conservative: duration, cost, rows
// and table conditions cannot be tested before the request runs, so
// any rule carrying only those forces capture-all.
type master struct {
	captureAll bool
	eventMask  reqtrace.Category
	allow      List // opcodes from non-inverted rule lists
	deny       List // opcodes from inverted rule lists
	tableRules bool
	stmts      []string
}

func buildMaster(rules []*Rule) *master {
	m := &master{}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if r.Opcodes.Len() == 0 && r.Stmt == "" {
			m.captureAll = true
		}
		for _, op := range r.Opcodes.Values() {
			var err error
			if r.Opcodes.Inverted() {
				err = m.deny.Add(op, true)
			} else {
				err = m.allow.Add(op, false)
			}
			if err != nil {
				m.captureAll = true
			}
		}
		if r.Table != "" {
			m.tableRules = true
		}
		if r.Stmt != "" {
			if len(m.stmts) >= maxMasterStmts {
				m.captureAll = true
			} else {
				m.stmts = append(m.stmts, r.Stmt)
			}
		}
		m.eventMask |= r.Mask
	}
	return m
}

// wants decides whether a starting request might match any active
// rule and therefore must capture events.
func (m *master) wants(op opcode.Op, stmt string) bool {
	if m.captureAll {
		return true
	}
	if m.allow.Len() > 0 && m.allow.Contains(int(op)) {
		return true
	}
	if m.deny.Len() > 0 && m.deny.Contains(int(op)) {
		return true
	}
	if stmt != "" {
		for _, s := range m.stmts {
			if strings.Contains(stmt, s) {
				return true
			}
		}
	}
	return false
}
