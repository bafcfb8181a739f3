// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package api serves the daemon's HTTP operational surface: health,
// Prometheus metrics, and read-only JSON views of the rule engine and
// per-host traffic counters.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/hoststats"
	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/longreq"
	"github.com/kestreldb/reqtrace/internal/rules"
)

// Router wires handlers over the live engine state.
type Router struct {
	eng   *rules.Engine
	det   *longreq.Detector
	hosts *hoststats.Table
	log   zerolog.Logger
}

// NewRouter builds the chi router.
func NewRouter(eng *rules.Engine, det *longreq.Detector, hosts *hoststats.Table) http.Handler {
	rt := &Router{
		eng:   eng,
		det:   det,
		hosts: hosts,
		log:   logging.Component("api"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", rt.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rules", rt.handleRules)
		r.Get("/hosts", rt.handleHosts)
		r.Get("/hosts/{host}", rt.handleHost)
		r.Get("/status", rt.handleStatus)
	})

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rt.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ruleView is the wire shape of a logging rule. Range conditions use
// their admin-console text form ("100..200", "50+", "any").
type ruleView struct {
	Name     string   `json:"name"`
	Active   bool     `json:"active"`
	Count    int      `json:"count,omitempty"`
	Duration string   `json:"duration_ms"`
	Retries  string   `json:"retries"`
	VReplays string   `json:"vreplays"`
	Rows     string   `json:"rows"`
	Cost     string   `json:"cost"`
	Opcodes  []int    `json:"opcodes,omitempty"`
	OpcodeIn bool     `json:"opcodes_inverted,omitempty"`
	RCs      []int    `json:"rcs,omitempty"`
	RCIn     bool     `json:"rcs_inverted,omitempty"`
	Table    string   `json:"table,omitempty"`
	Stmt     string   `json:"stmt,omitempty"`
	Mask     string   `json:"mask"`
	Target   string   `json:"target"`
}

func (rt *Router) handleRules(w http.ResponseWriter, _ *http.Request) {
	rs := rt.eng.Rules()
	views := make([]ruleView, 0, len(rs))
	for _, r := range rs {
		views = append(views, ruleView{
			Name:     r.Name,
			Active:   r.Active,
			Count:    r.Count,
			Duration: r.Duration.String(),
			Retries:  r.Retries.String(),
			VReplays: r.VReplays.String(),
			Rows:     r.Rows.String(),
			Cost:     r.Cost.String(),
			Opcodes:  r.Opcodes.Values(),
			OpcodeIn: r.Opcodes.Inverted(),
			RCs:      r.RCs.Values(),
			RCIn:     r.RCs.Inverted(),
			Table:    r.Table,
			Stmt:     r.Stmt,
			Mask:     r.Mask.String(),
			Target:   r.Out.Name(),
		})
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"active": rt.eng.ActiveCount(),
		"rules":  views,
	})
}

func (rt *Router) handleHosts(w http.ResponseWriter, r *http.Request) {
	rates := r.URL.Query().Get("rates") == "1"
	hosts := rt.hosts.Hosts()
	out := make([]map[string]any, 0, len(hosts))
	for _, h := range hosts {
		if snap, ok := rt.hosts.Snapshot(h, rates); ok {
			out = append(out, hostView(h, snap, rates))
		}
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"hosts": out})
}

func (rt *Router) handleHost(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	rates := r.URL.Query().Get("rates") == "1"
	snap, ok := rt.hosts.Snapshot(host, rates)
	if !ok {
		rt.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown host"})
		return
	}
	rt.writeJSON(w, http.StatusOK, hostView(host, snap, rates))
}

func hostView(host string, snap [hoststats.NumFields]uint64, rates bool) map[string]any {
	return map[string]any{
		"host":        host,
		"rates":       rates,
		"sql_queries": snap[hoststats.FieldSQLQueries],
		"sql_steps":   snap[hoststats.FieldSQLSteps],
		"sql_rows":    snap[hoststats.FieldSQLRows],
	}
}

func (rt *Router) handleStatus(w http.ResponseWriter, _ *http.Request) {
	norm, long := rt.det.Stats()
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"long_request_ms":     rt.det.ThresholdMS(),
		"long_sql_request_ms": rt.det.SQLThresholdMS(),
		"long_request_target": rt.det.TargetName(),
		"requests_normal":     norm,
		"requests_long":       long,
		"rules_active":        rt.eng.ActiveCount(),
		"truncate":            rt.eng.Truncate(),
		"verbose":             rt.eng.Verbose(),
	})
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rt.log.Error().Err(err).Msg("encoding response")
	}
}
