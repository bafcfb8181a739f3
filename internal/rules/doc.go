// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package rules implements the rule engine: the admin-editable rule
// set, the derived master capture state consulted at request start,
// and the end-of-request evaluation that decides which output targets
// receive a replay of the event log.
//
// Matching is two-phase. At request start only the opcode and the SQL
// text are known, so the master state over-captures: any rule whose
// conditions cannot be tested yet forces capture for every request.
// At request end all conditions are tested and the event log is
// replayed once per distinct matched target with the union of those
// rules' event masks.
package rules
