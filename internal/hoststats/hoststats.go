// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package hoststats aggregates per-peer-host traffic counters. The
// owning request path bumps raw totals without synchronization; a
// single maintenance sweep periodically folds raw totals into a ring
// of time-sliced delta buckets from which per-second rates are read.
package hoststats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/metrics"
	"github.com/kestreldb/reqtrace/internal/opcode"
)

// Field indexes one counter within a host block. Opcode and block-op
// counters follow the scalar SQL fields in one flat space.
type Field int

const (
	FieldSQLQueries Field = iota
	FieldSQLSteps
	FieldSQLRows
	numScalarFields
)

// NumFields is the size of a host block's counter vector.
const NumFields = int(numScalarFields) + int(opcode.NumOps) + int(opcode.NumBlockOps)

// OpField maps an opcode to its counter field.
func OpField(op opcode.Op) Field {
	return numScalarFields + Field(op)
}

// BlockOpField maps a block operation to its counter field.
func BlockOpField(b opcode.BlockOp) Field {
	return numScalarFields + Field(opcode.NumOps) + Field(b)
}

// NumBuckets is the depth of the delta ring.
const NumBuckets = 10

// Block holds one host's counters. Raw totals are plain atomic adds on
// the request path; everything else belongs to the sweep and is
// guarded by the table lock.
type Block struct {
	host string
	raw  [NumFields]atomic.Uint64

	prev    [NumFields]uint64
	buckets [NumBuckets][NumFields]uint64
	spans   [NumBuckets]time.Duration
	cur     int
}

// Incr bumps a raw counter. Safe from the owning request path without
// further locking.
func (b *Block) Incr(f Field, delta uint64) {
	b.raw[f].Add(delta)
}

// Host returns the peer identity this block counts for.
func (b *Block) Host() string { return b.host }

// Table interns host identities and owns the periodic sweep.
type Table struct {
	blocks *xsync.Map[string, *Block]

	mu        sync.Mutex
	lastSweep time.Time

	now func() time.Time
	log zerolog.Logger
}

// NewTable creates an empty host table.
func NewTable() *Table {
	t := &Table{
		blocks: xsync.NewMap[string, *Block](),
		now:    time.Now,
		log:    logging.Component("hoststats"),
	}
	t.lastSweep = t.now()
	return t
}

// SetClock overrides the wall clock. Tests only.
func (t *Table) SetClock(now func() time.Time) {
	t.now = now
	t.mu.Lock()
	t.lastSweep = now()
	t.mu.Unlock()
}

// ForHost returns the counter block for a host, creating it on first
// use. The create is double-checked inside the map so concurrent first
// requests from one host settle on a single block.
func (t *Table) ForHost(host string) *Block {
	b, _ := t.blocks.LoadOrCompute(host, func() (*Block, bool) {
		return &Block{host: host}, false
	})
	return b
}

// Sweep folds every block's raw totals into the current ring bucket as
// deltas against the previous sweep. One critical section covers all
// hosts so snapshot readers see a consistent bucket set.
func (t *Table) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	span := now.Sub(t.lastSweep)
	t.lastSweep = now

	t.blocks.Range(func(_ string, b *Block) bool {
		for f := 0; f < NumFields; f++ {
			raw := b.raw[f].Load()
			b.buckets[b.cur][f] = raw - b.prev[f]
			b.prev[f] = raw
		}
		b.spans[b.cur] = span
		b.cur = (b.cur + 1) % NumBuckets
		return true
	})
	metrics.HostSweeps.Inc()
}

// Snapshot returns a host's counters summed over the ring. With rates
// set, each sum is scaled to a canonical per-second figure, rounded to
// the nearest integer. The second return is false for unknown hosts.
func (t *Table) Snapshot(host string, rates bool) ([NumFields]uint64, bool) {
	var out [NumFields]uint64
	b, ok := t.blocks.Load(host)
	if !ok {
		return out, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var span time.Duration
	for i := 0; i < NumBuckets; i++ {
		span += b.spans[i]
		for f := 0; f < NumFields; f++ {
			out[f] += b.buckets[i][f]
		}
	}
	if rates {
		if span <= 0 {
			return [NumFields]uint64{}, true
		}
		for f := 0; f < NumFields; f++ {
			out[f] = uint64(math.Round(float64(out[f]) * float64(time.Second) / float64(span)))
		}
	}
	return out, true
}

// Hosts lists known hosts in stable order.
func (t *Table) Hosts() []string {
	var hosts []string
	t.blocks.Range(func(host string, _ *Block) bool {
		hosts = append(hosts, host)
		return true
	})
	sort.Strings(hosts)
	return hosts
}

// Report writes the traffic summary for every host.
func (t *Table) Report(w io.Writer, rates bool) {
	for _, host := range t.Hosts() {
		t.HostReport(w, host, rates)
	}
}

// HostReport writes one host's traffic summary, opcode counters
// grouped by class.
func (t *Table) HostReport(w io.Writer, host string, rates bool) {
	counts, ok := t.Snapshot(host, rates)
	if !ok {
		fmt.Fprintf(w, "no stats for host %s\n", host)
		return
	}
	unit := ""
	if rates {
		unit = "/s"
	}

	var finds, rngexts, writes, other uint64
	for op := opcode.Op(0); op < opcode.NumOps; op++ {
		n := counts[OpField(op)]
		switch opcode.Classify(op) {
		case opcode.ClassFind:
			finds += n
		case opcode.ClassRangeExt:
			rngexts += n
		case opcode.ClassWrite:
			writes += n
		default:
			other += n
		}
	}

	fmt.Fprintf(w, "Traffic from host %s:\n", host)
	fmt.Fprintf(w, "  finds %d%s rngexts %d%s writes %d%s other %d%s\n",
		finds, unit, rngexts, unit, writes, unit, other, unit)
	fmt.Fprintf(w, "  sql queries %d%s steps %d%s rows %d%s\n",
		counts[FieldSQLQueries], unit, counts[FieldSQLSteps], unit, counts[FieldSQLRows], unit)
	fmt.Fprintf(w, "  blockops:")
	for b := opcode.BlockOp(0); b < opcode.NumBlockOps; b++ {
		fmt.Fprintf(w, " %s %d%s", b, counts[BlockOpField(b)], unit)
	}
	fmt.Fprintf(w, "\n")
}
