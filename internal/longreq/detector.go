// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package longreq detects long-running requests and periodically dumps
// differential statistics, both built on the request context type.
package longreq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/metrics"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// Detector inspects every finished request and dumps the ones whose
// duration crosses the threshold. Repeated long requests within one
// wall-clock second are coalesced into a single admin-visible summary
// line, flushed at the next second boundary.
type Detector struct {
	thresholdMS    atomic.Int64
	sqlThresholdMS atomic.Int64

	reg *output.Registry
	log zerolog.Logger
	now func() time.Time

	mu        sync.Mutex
	target    *output.Target
	count     int
	minMS     int
	maxMS     int
	lastEpoch int64

	normReqs atomic.Uint64
	longReqs atomic.Uint64
}

// NewDetector creates a detector writing long-request dumps to the
// registry's default target until SetFile points it elsewhere.
func NewDetector(reg *output.Registry, thresholdMS, sqlThresholdMS int) *Detector {
	d := &Detector{
		reg: reg,
		log: logging.Component("longreq"),
		now: time.Now,
	}
	d.thresholdMS.Store(int64(thresholdMS))
	d.sqlThresholdMS.Store(int64(sqlThresholdMS))
	reg.Retain(reg.Default())
	d.target = reg.Default()
	return d
}

// SetClock overrides the wall clock. Tests only.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

// ThresholdMS is the long-request threshold for transactional work.
func (d *Detector) ThresholdMS() int { return int(d.thresholdMS.Load()) }

// SQLThresholdMS is the threshold for ad hoc SQL requests.
func (d *Detector) SQLThresholdMS() int { return int(d.sqlThresholdMS.Load()) }

func (d *Detector) SetThresholdMS(ms int)    { d.thresholdMS.Store(int64(ms)) }
func (d *Detector) SetSQLThresholdMS(ms int) { d.sqlThresholdMS.Store(int64(ms)) }

// SetFile redirects long-request dumps to a file target.
func (d *Detector) SetFile(path string) {
	t := d.reg.Acquire(path)
	d.mu.Lock()
	old := d.target
	d.target = t
	d.mu.Unlock()
	d.reg.Release(old)
}

// TargetName reports where long requests are being logged.
func (d *Detector) TargetName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target.Name()
}

// Observe evaluates a finished request. Long requests get a full dump
// (long header plus trace replay) to the long-request target and are
// folded into the rolling summary window.
func (d *Detector) Observe(l *reqtrace.Logger) {
	thresh := int(d.thresholdMS.Load())
	if l.AdHocSQL() {
		thresh = int(d.sqlThresholdMS.Load())
	}
	dur := l.DurationMS()
	if dur < thresh {
		d.normReqs.Add(1)
		return
	}
	d.longReqs.Add(1)
	metrics.LongRequests.Inc()

	d.mu.Lock()
	target := d.target
	d.mu.Unlock()
	l.PublishLong(target, reqtrace.CatTrace|reqtrace.CatResults)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now().Unix()
	if d.count > 0 && now != d.lastEpoch {
		d.flushLocked()
	}
	if d.count == 0 {
		d.lastEpoch = now
		d.minMS = dur
		d.maxMS = dur
	} else {
		if dur < d.minMS {
			d.minMS = dur
		}
		if dur > d.maxMS {
			d.maxMS = dur
		}
	}
	d.count++
}

// Flush emits the coalesced summary for the current window if the
// wall-clock second has rolled over. The maintenance ticker calls this
// so a trailing window is not stuck waiting for the next long request.
func (d *Detector) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 || d.now().Unix() == d.lastEpoch {
		return
	}
	d.flushLocked()
}

// flushLocked emits one summary line and resets the window. Callers
// hold d.mu. The summary is suppressed when long requests already go
// to the default stream, where the full dumps are visible anyway.
func (d *Detector) flushLocked() {
	if d.target != d.reg.Default() {
		var msg string
		if d.count == 1 {
			msg = fmt.Sprintf("LONG REQUEST %d MS logged in %s", d.minMS, d.target.Name())
		} else {
			msg = fmt.Sprintf("%d LONG REQUESTS %d MS - %d MS logged in %s",
				d.count, d.minMS, d.maxMS, d.target.Name())
		}
		d.log.Warn().Msg(msg)
	}
	d.count = 0
	d.minMS = 0
	d.maxMS = 0
}

// Stats reports how many requests finished under and over the
// threshold since the last read. The tallies drain on read; the status
// report shows per-interval counts.
func (d *Detector) Stats() (norm, long uint64) {
	return d.normReqs.Swap(0), d.longReqs.Swap(0)
}

// Serve runs the once-per-second summary flusher under the supervision
// tree.
func (d *Detector) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Flush()
		}
	}
}

func (d *Detector) String() string { return "longreq-flusher" }
