// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package output manages the shared, reference-counted append targets
// that rules and the built-in detectors write to.
package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/metrics"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// DefaultName is the name of the immortal default target.
const DefaultName = "<stdout>"

// Target is one append destination. All writes are serialized by the
// target's own lock; a Batch holds that lock for a whole replay so
// multi-line output is never interleaved.
type Target struct {
	mu   sync.Mutex
	name string
	f    *os.File  // nil for the default target
	w    io.Writer // destination stream

	refs int // guarded by the registry lock

	// per-second cached time prefix, file targets only
	timePrefix []byte
	lastSec    int64

	now func() time.Time
}

func (t *Target) Name() string { return t.name }

func (t *Target) isDefault() bool { return t.f == nil }

// WriteLine emits one line under the target's lock.
func (t *Target) WriteLine(prefix, line []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLine(prefix, line)
}

// Batch runs fn holding the target's lock. The LineWriter passed to fn
// writes without re-locking.
func (t *Target) Batch(fn func(w reqtrace.LineWriter)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(unlockedWriter{t})
}

type unlockedWriter struct{ t *Target }

func (u unlockedWriter) WriteLine(prefix, line []byte) { u.t.writeLine(prefix, line) }

func (t *Target) writeLine(prefix, line []byte) {
	buf := make([]byte, 0, len(t.timePrefix)+len(prefix)+len(line)+17)
	if !t.isDefault() {
		buf = append(buf, t.cachedTimePrefix()...)
	}
	buf = append(buf, prefix...)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, _ = t.w.Write(buf)
}

// cachedTimePrefix recomputes the "mm/dd hh:mm:ss: " prefix only when
// the wall-clock second changes.
func (t *Target) cachedTimePrefix() []byte {
	now := t.now()
	if sec := now.Unix(); sec != t.lastSec {
		t.lastSec = sec
		t.timePrefix = now.AppendFormat(t.timePrefix[:0], "01/02 15:04:05")
		t.timePrefix = append(t.timePrefix, ':', ' ')
	}
	return t.timePrefix
}

// Registry holds all open targets. The default target exists for the
// registry's whole lifetime and is never closed.
type Registry struct {
	mu      sync.Mutex
	targets []*Target
	def     *Target
	log     zerolog.Logger
	now     func() time.Time
}

// NewRegistry creates a registry whose default target writes to w.
func NewRegistry(w io.Writer) *Registry {
	r := &Registry{
		log: logging.Component("output"),
		now: time.Now,
	}
	r.def = &Target{name: DefaultName, w: w, refs: 1, now: r.now}
	r.targets = append(r.targets, r.def)
	metrics.OpenOutputs.Set(1)
	return r
}

// SetClock overrides the wall clock used for time prefixes. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
	for _, t := range r.targets {
		t.now = now
	}
}

// Default returns the immortal default target.
func (r *Registry) Default() *Target { return r.def }

// Acquire returns a referenced handle to the named target, opening the
// file on first use. Open failure falls back to the default target so
// a rule never ends up without a destination.
func (r *Registry) Acquire(filename string) *Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.name == filename {
			t.refs++
			return t
		}
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	if err != nil {
		r.log.Error().Err(err).Str("file", filename).Msg("cannot open log target, using default")
		r.def.refs++
		return r.def
	}
	r.log.Info().Str("file", filename).Msg("opened request log target")
	t := &Target{name: filename, f: f, w: f, refs: 1, now: r.now}
	r.targets = append(r.targets, t)
	metrics.OpenOutputs.Set(float64(len(r.targets)))
	return t
}

// Retain adds a reference to an already-held target.
func (r *Registry) Retain(t *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.refs++
}

// Release drops a reference. At zero the target is closed and removed,
// unless it is the default target.
func (r *Registry) Release(t *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.refs--
	if t.refs > 0 || t == r.def {
		return
	}
	if err := t.f.Close(); err != nil {
		r.log.Error().Err(err).Str("file", t.name).Msg("closing log target")
	}
	for i, o := range r.targets {
		if o == t {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			break
		}
	}
	metrics.OpenOutputs.Set(float64(len(r.targets)))
}

// Refs reports a target's reference count. Tests only.
func (r *Registry) Refs(t *Target) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return t.refs
}

// Describe writes the open-target section of the status report.
func (r *Registry) Describe(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(w, "Open logging targets:\n")
	for _, t := range r.targets {
		fmt.Fprintf(w, "  %s (refs %d)\n", t.name, t.refs)
	}
}

// Close releases every file target regardless of refcount. Shutdown
// path only.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.f != nil {
			_ = t.f.Close()
		}
	}
	r.targets = r.targets[:1]
	r.targets[0] = r.def
	metrics.OpenOutputs.Set(1)
}
