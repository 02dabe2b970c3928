// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package shm

import (
	"path/filepath"
	"testing"
)

func TestMainRegionCounters(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenMain(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if got := m.NextConnID(); got != 1 {
		t.Fatalf("first conn id = %d, want 1", got)
	}
	if got := m.NextConnID(); got != 2 {
		t.Fatalf("second conn id = %d, want 2", got)
	}
	if got := m.NextSessionID(); got != 1 {
		t.Fatalf("first session id = %d, want 1", got)
	}
}

func TestMainRegionModuleDirectory(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenMain(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	rec := ModuleRecord{
		Name: "interfaces", Revision: "2021-01-01",
		ChangeSubHead: -1, OperSubHead: -1, RPCSubHead: -1, NotifSubHead: -1, DataLockHeader: -1,
	}
	if err := m.PutModule(rec); err != nil {
		t.Fatal(err)
	}
	got, ok := m.FindModule("interfaces")
	if !ok {
		t.Fatal("module not found after PutModule")
	}
	if got.Revision != "2021-01-01" {
		t.Fatalf("revision = %q, want 2021-01-01", got.Revision)
	}

	rec.ReplaySupport = true
	rec.ChangeSubHead = 128
	if err := m.PutModule(rec); err != nil {
		t.Fatal(err)
	}
	got, _ = m.FindModule("interfaces")
	if !got.ReplaySupport || got.ChangeSubHead != 128 {
		t.Fatalf("update did not persist: %+v", got)
	}
	if len(m.Modules()) != 1 {
		t.Fatalf("expected single directory entry after update, got %d", len(m.Modules()))
	}
}

func TestExtRegionAllocFree(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenExt(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	off1, err := e.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	off2, err := e.Alloc(128)
	if err != nil {
		t.Fatal(err)
	}
	if off2 == off1 {
		t.Fatal("two allocations returned the same offset")
	}

	e.Free(off1, 64)
	off3, err := e.Alloc(32)
	if err != nil {
		t.Fatal(err)
	}
	if off3 != off1 {
		t.Fatalf("first-fit should reuse freed hole at %d, got %d", off1, off3)
	}
}

func TestExtRegionGrowsWhenExhausted(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenExt(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	// Force a grow by requesting more than the initial region size.
	big := extInitialSize + 1024
	off, err := e.Alloc(big)
	if err != nil {
		t.Fatalf("alloc past initial size should grow-and-remap: %v", err)
	}
	if off < 0 {
		t.Fatalf("unexpected offset %d", off)
	}
}

func TestSubRegionNaming(t *testing.T) {
	dir := t.TempDir()
	name1 := SubRegionName("interfaces", "/interfaces/interface[name='eth0']", ChannelOperGet)
	name2 := SubRegionName("interfaces", "/interfaces/interface[name='eth1']", ChannelOperGet)
	if name1 == name2 {
		t.Fatal("distinct paths hashed to the same segment name")
	}
	if got := filepath.Base(SubRegionPath(dir, "interfaces", "", ChannelChange)); got != "interfaces.change" {
		t.Fatalf("unhashed change-channel name = %q", got)
	}
}

func TestSubRegionPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSub(dir, "interfaces", "", ChannelChange)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.SetHeader(EventHeader{EventID: 42, Priority: 10})
	if err := s.SetPayload([]byte("diff-tree-bytes")); err != nil {
		t.Fatal(err)
	}
	if got := string(s.Payload()); got != "diff-tree-bytes" {
		t.Fatalf("payload round-trip = %q", got)
	}
	if h := s.Header(); h.EventID != 42 || h.Priority != 10 {
		t.Fatalf("header round-trip = %+v", h)
	}
}
