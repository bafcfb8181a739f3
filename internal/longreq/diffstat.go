// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package longreq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/arena"
	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// DiffStat periodically dumps differential server counters. It reuses
// a request context purely as an event-accumulation buffer: the
// maintenance task records info events into it between dumps.
//
// Single-writer. Only the maintenance task may touch the buffer; this
// type does no locking of its own.
type DiffStat struct {
	l      *reqtrace.Logger
	reg    *output.Registry
	target *output.Target
	thresh atomic.Int64 // seconds, 0 disables
	log    zerolog.Logger
}

// NewDiffStat creates the dumper. path is the stat-request log file;
// empty means the default stream.
func NewDiffStat(reg *output.Registry, path string, threshSeconds int) *DiffStat {
	d := &DiffStat{
		l:   reqtrace.NewLogger("diffstat", arena.New(arena.DefaultChunkSize, 0)),
		reg: reg,
		log: logging.Component("diffstat"),
	}
	if path != "" {
		d.target = reg.Acquire(path)
	} else {
		reg.Retain(reg.Default())
		d.target = reg.Default()
	}
	d.thresh.Store(int64(threshSeconds))
	d.l.BeginStatDump()
	return d
}

// Logger exposes the accumulation buffer. Record counters into it with
// CatInfo events.
func (d *DiffStat) Logger() *reqtrace.Logger { return d.l }

// Dump publishes the accumulated counters and reinitializes the
// buffer.
func (d *DiffStat) Dump() {
	d.l.PublishInfo(d.target)
	d.l.BeginStatDump()
}

// Threshold is the dump interval in seconds. Zero disables dumping.
func (d *DiffStat) Threshold() int { return int(d.thresh.Load()) }

func (d *DiffStat) SetThreshold(seconds int) {
	d.thresh.Store(int64(seconds))
	if seconds == 0 {
		d.log.Info().Msg("diffstat dumping disabled")
	} else {
		d.log.Info().Int("seconds", seconds).Msg("diffstat threshold changed")
	}
}

// Serve dumps every threshold seconds under the supervision tree. A
// zero threshold is re-checked once per second so enabling it via the
// admin console takes effect without a restart.
func (d *DiffStat) Serve(ctx context.Context) error {
	for {
		interval := time.Duration(d.Threshold()) * time.Second
		if interval == 0 {
			interval = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
			if d.Threshold() > 0 {
				d.Dump()
			}
		}
	}
}

func (d *DiffStat) String() string { return "diffstat-dumper" }
