// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package opcode names the request opcodes the engine matches on and
// classifies them for per-host traffic reporting.
package opcode

import "strings"

// Op identifies the kind of request a context is tracing.
type Op int

const (
	SQL Op = iota
	Find
	Next
	Prev
	JustFind
	RangeExt
	Block
	LongBlock
	ClearTable
	FastInit
	Debug

	NumOps
)

var names = [NumOps]string{
	SQL:        "SQL",
	Find:       "FIND",
	Next:       "NEXT",
	Prev:       "PREV",
	JustFind:   "JSTFND",
	RangeExt:   "RNGEXT",
	Block:      "BLOCK",
	LongBlock:  "LONGBLOCK",
	ClearTable: "CLEARTABLE",
	FastInit:   "FASTINIT",
	Debug:      "DEBUG",
}

func (o Op) String() string {
	if o.Valid() {
		return names[o]
	}
	return "???"
}

func (o Op) Valid() bool { return o >= 0 && o < NumOps }

// Parse resolves an opcode name case-insensitively. The second return
// is false for unknown names.
func Parse(name string) (Op, bool) {
	for op, n := range names {
		if strings.EqualFold(name, n) {
			return Op(op), true
		}
	}
	return 0, false
}

// Class buckets opcodes for the per-host traffic summary.
type Class int

const (
	ClassFind Class = iota
	ClassRangeExt
	ClassWrite
	ClassOther
)

// Classify maps an opcode to its traffic class.
func Classify(o Op) Class {
	switch o {
	case Find, Next, Prev, JustFind:
		return ClassFind
	case RangeExt:
		return ClassRangeExt
	case Block, LongBlock:
		return ClassWrite
	default:
		return ClassOther
	}
}

// BlockOp identifies an operation inside a block (transaction)
// request, counted separately from top-level opcodes.
type BlockOp int

const (
	BlockAdd BlockOp = iota
	BlockUpdate
	BlockDelete
	BlockSQL
	BlockRecom
	BlockSnapIsol
	BlockSerial

	NumBlockOps
)

var blockNames = [NumBlockOps]string{
	BlockAdd:      "adds",
	BlockUpdate:   "upds",
	BlockDelete:   "dels",
	BlockSQL:      "bsql",
	BlockRecom:    "recom",
	BlockSnapIsol: "snapisol",
	BlockSerial:   "serial",
}

func (b BlockOp) String() string {
	if b >= 0 && b < NumBlockOps {
		return blockNames[b]
	}
	return "???"
}
