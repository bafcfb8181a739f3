// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the request diagnostics engine:
// - event recording volume and arena pressure
// - rule matching and replay activity
// - long-request detection
// - per-host counter maintenance

var (
	EventsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_events_recorded_total",
			Help: "Trace events appended to request event logs",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_events_dropped_total",
			Help: "Trace events dropped because the request arena was exhausted",
		},
	)

	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_rule_matches_total",
			Help: "Requests matched per logging rule",
		},
		[]string{"rule"},
	)

	Replays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_replays_total",
			Help: "Event log replays performed (one per matched output target)",
		},
	)

	ActiveRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqtrace_active_rules",
			Help: "Logging rules currently active",
		},
	)

	OpenOutputs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqtrace_open_outputs",
			Help: "Output targets currently open, including the default stream",
		},
	)

	LongRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_long_requests_total",
			Help: "Requests whose duration exceeded the long-request threshold",
		},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqtrace_request_duration_seconds",
			Help:    "Duration of requests observed at end-of-request evaluation",
			Buckets: prometheus.DefBuckets, // 0.005s .. 10s
		},
	)

	HostSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_host_sweeps_total",
			Help: "Periodic per-host counter sweeps completed",
		},
	)
)
