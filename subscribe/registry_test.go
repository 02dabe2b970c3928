// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package subscribe

import (
	"testing"

	"github.com/danos/tsd/lock"
	"github.com/danos/tsd/shm"
)

func newTestRegistry(t *testing.T) (*Registry, func()) {
	t.Helper()
	dir := t.TempDir()
	main, err := shm.OpenMain(dir)
	if err != nil {
		t.Fatal(err)
	}
	ext, err := shm.OpenExt(dir)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := lock.NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	return NewRegistry(main, ext, lm), func() {
		main.Close()
		ext.Close()
		lm.Close()
	}
}

func TestRegistryAddListRemove(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()

	s1, err := r.Add(Subscription{ID: 1, Module: "interfaces", Kind: shm.ChannelChange, ConnID: 10, Priority: 5})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := r.Add(Subscription{ID: 2, Module: "interfaces", Kind: shm.ChannelChange, ConnID: 11, Priority: 1})
	if err != nil {
		t.Fatal(err)
	}
	if s1.offset == s2.offset {
		t.Fatal("expected distinct offsets")
	}

	subs, err := r.List("interfaces", shm.ChannelChange)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
	// Add prepends, so the most recent (id=2) should be first.
	if subs[0].ID != 2 || subs[1].ID != 1 {
		t.Fatalf("unexpected order: %+v", subs)
	}

	if err := r.Remove("interfaces", shm.ChannelChange, 2); err != nil {
		t.Fatal(err)
	}
	subs, err = r.List("interfaces", shm.ChannelChange)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].ID != 1 {
		t.Fatalf("expected only id=1 remaining, got %+v", subs)
	}
}

func TestRegistrySuspendResume(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()

	if _, err := r.Add(Subscription{ID: 1, Module: "m", Kind: shm.ChannelNotif, Filter: "/a/b"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Suspend("m", shm.ChannelNotif, 1); err != nil {
		t.Fatal(err)
	}
	subs, _ := r.List("m", shm.ChannelNotif)
	if !subs[0].Has(FlagSuspended) {
		t.Fatal("expected suspended flag set")
	}
	if err := r.Resume("m", shm.ChannelNotif, 1); err != nil {
		t.Fatal(err)
	}
	subs, _ = r.List("m", shm.ChannelNotif)
	if subs[0].Has(FlagSuspended) {
		t.Fatal("expected suspended flag cleared")
	}
}

func TestRegistrySuspendResumeNotifiesNotifOnly(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()

	type call struct {
		module string
		kind   shm.ChannelKind
		subID  uint64
		meta   MetaEvent
	}
	var calls []call
	r.SetMetaNotifier(func(module string, kind shm.ChannelKind, subID uint64, meta MetaEvent) {
		calls = append(calls, call{module, kind, subID, meta})
	})

	if _, err := r.Add(Subscription{ID: 1, Module: "m", Kind: shm.ChannelNotif, Filter: "/a/b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add(Subscription{ID: 2, Module: "m", Kind: shm.ChannelChange}); err != nil {
		t.Fatal(err)
	}

	if err := r.Suspend("m", shm.ChannelNotif, 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Suspend("m", shm.ChannelChange, 2); err != nil {
		t.Fatal(err)
	}
	if err := r.Resume("m", shm.ChannelNotif, 1); err != nil {
		t.Fatal(err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 meta-events (notif suspend + notif resume), got %d: %+v", len(calls), calls)
	}
	if calls[0].kind != shm.ChannelNotif || calls[0].subID != 1 || calls[0].meta != MetaSuspended {
		t.Fatalf("unexpected first call: %+v", calls[0])
	}
	if calls[1].kind != shm.ChannelNotif || calls[1].subID != 1 || calls[1].meta != MetaResumed {
		t.Fatalf("unexpected second call: %+v", calls[1])
	}
	if calls[0].meta.String() != "suspended" || calls[1].meta.String() != "resumed" {
		t.Fatalf("unexpected MetaEvent.String(): %q / %q", calls[0].meta, calls[1].meta)
	}
}

func TestRegistryRecoverDeadConnections(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()

	r.Add(Subscription{ID: 1, Module: "m", Kind: shm.ChannelChange, ConnID: 100})
	r.Add(Subscription{ID: 2, Module: "m", Kind: shm.ChannelChange, ConnID: 200})

	live := map[uint64]int{100: 12345} // 200 untracked => dead
	removed, err := r.RecoverDeadConnections(live, func(pid int) bool { return pid == 12345 })
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	subs, _ := r.List("m", shm.ChannelChange)
	if len(subs) != 1 || subs[0].ConnID != 100 {
		t.Fatalf("expected only conn 100's subscription to survive, got %+v", subs)
	}
}

func TestEventPipeWake(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateEventPipe(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	rd, err := p.Reader()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wake(); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 1)
	n, err := rd.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 byte woken, got %d", n)
	}
}
