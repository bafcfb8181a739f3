// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package hoststats

import (
	"context"
	"time"
)

// Sweeper drives the periodic sweep as a supervised service.
type Sweeper struct {
	table    *Table
	interval time.Duration
}

// NewSweeper creates a sweeper for the table. A non-positive interval
// defaults to one second.
func NewSweeper(table *Table, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{table: table, interval: interval}
}

func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.table.Sweep()
		}
	}
}

func (s *Sweeper) String() string { return "hoststats-sweeper" }
