// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/kestreldb/reqtrace/internal/hoststats"
	"github.com/kestreldb/reqtrace/internal/longreq"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
	"github.com/kestreldb/reqtrace/internal/rules"
)

func testRouter(t *testing.T) (http.Handler, *rules.Engine, *hoststats.Table) {
	t.Helper()
	reg := output.NewRegistry(&bytes.Buffer{})
	eng := rules.NewEngine(reg)
	det := longreq.NewDetector(reg, 2000, 5000)
	hosts := hoststats.NewTable()
	return NewRouter(eng, det, hosts), eng, hosts
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _ := testRouter(t)
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := testRouter(t)
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRulesEndpoint(t *testing.T) {
	h, eng, _ := testRouter(t)
	err := eng.Mutate("7", func(r *rules.Rule) error {
		r.Active = true
		r.Mask |= reqtrace.CatTrace
		rng, err := rules.ParseRange("100..200")
		if err != nil {
			return err
		}
		r.Duration = rng
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := get(t, h, "/api/v1/rules")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Active int `json:"active"`
		Rules  []struct {
			Name     string `json:"name"`
			Active   bool   `json:"active"`
			Duration string `json:"duration_ms"`
			Target   string `json:"target"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Active != 1 || len(body.Rules) != 1 {
		t.Fatalf("body = %+v", body)
	}
	r := body.Rules[0]
	if r.Name != "7" || !r.Active || r.Duration != "100..200" || r.Target != output.DefaultName {
		t.Errorf("rule view = %+v", r)
	}
}

func TestHostsEndpoint(t *testing.T) {
	h, _, hosts := testRouter(t)
	hosts.ForHost("app1").Incr(hoststats.FieldSQLQueries, 3)
	hosts.Sweep()

	rec := get(t, h, "/api/v1/hosts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Hosts []struct {
			Host       string `json:"host"`
			SQLQueries uint64 `json:"sql_queries"`
		} `json:"hosts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Hosts) != 1 || body.Hosts[0].Host != "app1" || body.Hosts[0].SQLQueries != 3 {
		t.Errorf("hosts = %+v", body.Hosts)
	}

	if rec := get(t, h, "/api/v1/hosts/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown host status = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, _, _ := testRouter(t)
	rec := get(t, h, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["long_request_ms"].(float64) != 2000 {
		t.Errorf("threshold = %v", body["long_request_ms"])
	}
	if body["truncate"].(bool) != true {
		t.Error("truncate should default on")
	}
}
