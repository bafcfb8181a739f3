// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package arena

import (
	"bytes"
	"testing"
)

func TestAllocWithinChunk(t *testing.T) {
	a := New(4096, 0)
	p1 := a.Alloc(100)
	p2 := a.Alloc(100)
	if p1 == nil || p2 == nil {
		t.Fatal("alloc failed within a fresh chunk")
	}
	if a.Used() != 200 {
		t.Errorf("Used() = %d, want 200", a.Used())
	}
}

func TestAllocOverflowsIntoNewChunk(t *testing.T) {
	a := New(1024, 0)
	if p := a.Alloc(1000); p == nil {
		t.Fatal("first alloc failed")
	}
	// does not fit in the remainder of the first chunk
	p := a.Alloc(500)
	if p == nil {
		t.Fatal("overflow alloc failed")
	}
	if len(a.chunks) != 2 {
		t.Errorf("chunks = %d, want 2", len(a.chunks))
	}
}

func TestAllocLargerThanChunk(t *testing.T) {
	a := New(1024, 0)
	p := a.Alloc(10000)
	if len(p) != 10000 {
		t.Fatalf("len = %d, want 10000", len(p))
	}
}

func TestLimit(t *testing.T) {
	a := New(1024, 2048)
	if p := a.Alloc(2000); p == nil {
		t.Fatal("alloc under limit failed")
	}
	if p := a.Alloc(100); p != nil {
		t.Error("alloc over limit should return nil")
	}
	a.Reset()
	if p := a.Alloc(100); p == nil {
		t.Error("alloc after reset should succeed")
	}
}

func TestCopy(t *testing.T) {
	a := New(1024, 0)
	src := []byte("select * from t")
	p := a.Copy(src)
	if !bytes.Equal(p, src) {
		t.Errorf("Copy = %q, want %q", p, src)
	}
	src[0] = 'X'
	if p[0] == 'X' {
		t.Error("Copy aliases the source")
	}
	if q := a.CopyString("abc"); string(q) != "abc" {
		t.Errorf("CopyString = %q", q)
	}
}

func TestResetReusesFirstChunk(t *testing.T) {
	a := New(1024, 0)
	p1 := a.Alloc(16)
	a.Reset()
	if a.Used() != 0 {
		t.Errorf("Used() after reset = %d, want 0", a.Used())
	}
	p2 := a.Alloc(16)
	if &p1[0] != &p2[0] {
		t.Error("reset should reuse the first chunk's storage")
	}
}
