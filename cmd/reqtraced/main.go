// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package main is the entry point for the reqtrace daemon.
//
// Reqtrace attaches rule-driven diagnostic logging to database requests.
// Operators push rules through a line-oriented admin console ("7 ms
// 100..200 trace file /tmp/slow.log go"); requests that match a rule at
// the end of their lifetime have their buffered event trail replayed to
// the rule's logging target. The daemon also detects long-running
// requests, keeps per-host traffic counters over a sliding window, and
// exposes health, Prometheus metrics, and read-only JSON views over
// HTTP.
//
// The daemon initializes in the following order:
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Logging: zerolog, level and format from configuration
//  3. Output registry: shared, refcounted logging targets
//  4. Rule engine, long-request detector, diffstat dumper, host counters
//  5. Supervision tree (suture): periodic services and listeners
//
// Shutdown is graceful on SIGINT and SIGTERM: listeners stop accepting,
// in-flight work completes, and open logging targets are closed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestreldb/reqtrace/internal/admin"
	"github.com/kestreldb/reqtrace/internal/api"
	"github.com/kestreldb/reqtrace/internal/config"
	"github.com/kestreldb/reqtrace/internal/hoststats"
	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/longreq"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/rules"
	"github.com/kestreldb/reqtrace/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger not configured yet.
		fmt.Fprintf(os.Stderr, "reqtraced: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	log := logging.Component("main")
	log.Info().
		Str("http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("admin_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort)).
		Int("long_request_ms", cfg.Trace.LongRequestMS).
		Msg("starting reqtraced")

	reg := output.NewRegistry(os.Stdout)
	defer reg.Close()

	eng := rules.NewEngine(reg)
	eng.SetTruncate(cfg.Trace.Truncate)

	det := longreq.NewDetector(reg, cfg.Trace.LongRequestMS, cfg.Trace.LongSQLRequestMS)
	if cfg.Trace.LongReqFile != "" {
		det.SetFile(cfg.Trace.LongReqFile)
	}

	diff := longreq.NewDiffStat(reg, cfg.Trace.StatReqFile, cfg.Trace.DiffstatSeconds)
	hosts := hoststats.NewTable()

	proc := admin.NewProcessor(eng, det, diff, hosts, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddStats(hoststats.NewSweeper(hosts, time.Duration(cfg.Stats.SweepSeconds)*time.Second))
	tree.AddStats(det)
	tree.AddStats(diff)
	tree.AddServing(admin.NewConsole(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort), proc))
	tree.AddServing(api.NewServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		api.NewRouter(eng, det, hosts),
	))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("supervisor tree exited")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
