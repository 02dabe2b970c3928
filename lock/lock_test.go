// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package lock

import (
	"testing"
	"time"

	"github.com/danos/tsd/errkind"
)

func TestRWLockMultipleReaders(t *testing.T) {
	l := NewRWLock()
	g1, err := l.RLock(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	g2, err := l.RLock(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	g1.Release()
	g2.Release()
}

func TestRWLockWriterExcludesReaders(t *testing.T) {
	l := NewRWLock()
	wg, err := l.Lock(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(50 * time.Millisecond)
	_, err = l.RLock(deadline)
	if err == nil {
		t.Fatal("expected read lock to time out while writer holds the lock")
	}
	if !errkind.Is(err, errkind.Locked) {
		t.Fatalf("expected LOCKED, got %v", err)
	}
	wg.Release()
	g, err := l.RLock(time.Now().Add(50 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	g.Release()
}

func TestRWLockUpgrade(t *testing.T) {
	l := NewRWLock()
	g, err := l.RLock(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	wg, err := g.Upgrade(time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	// No other reader existed, so the upgrade must succeed immediately
	// and exclude new readers until released.
	deadline := time.Now().Add(50 * time.Millisecond)
	if _, err := l.RLock(deadline); err == nil {
		t.Fatal("expected read lock to be excluded by the upgraded writer")
	}
	wg.Release()
}

func TestRWLockUpgradeBlocksOnOtherReaders(t *testing.T) {
	l := NewRWLock()
	g1, _ := l.RLock(time.Time{})
	_, err := l.RLock(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(50 * time.Millisecond)
	if _, err := g1.Upgrade(deadline); err == nil {
		t.Fatal("expected upgrade to time out with a second reader still present")
	}
}

func TestManagerLockDataMultiOrdering(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	guards, err := mgr.LockDataMulti([]string{"zzz", "aaa", "mmm"}, "running", time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(guards) != 3 {
		t.Fatalf("expected 3 guards, got %d", len(guards))
	}
	for _, g := range guards {
		g.Release()
	}
}

func TestDSLockOwnership(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	if err := mgr.AcquireDSLock("interfaces", "running", 1); err != nil {
		t.Fatal(err)
	}
	if err := mgr.AcquireDSLock("interfaces", "running", 2); err == nil {
		t.Fatal("expected second session to be denied the DS-lock")
	}
	if err := mgr.ReleaseDSLock("interfaces", "running", 2); err == nil {
		t.Fatal("expected non-owner release to fail")
	}
	if err := mgr.ReleaseDSLock("interfaces", "running", 1); err != nil {
		t.Fatal(err)
	}
	if _, held := mgr.DSLockHolder("interfaces", "running"); held {
		t.Fatal("lock should be released")
	}
}

func TestReleaseAllDSLocksForSession(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	mgr.AcquireDSLock("a", "running", 7)
	mgr.AcquireDSLock("b", "running", 7)
	mgr.ReleaseAllDSLocksForSession(7)
	if _, held := mgr.DSLockHolder("a", "running"); held {
		t.Fatal("expected a/running to be released")
	}
	if _, held := mgr.DSLockHolder("b", "running"); held {
		t.Fatal("expected b/running to be released")
	}
}

func TestFileLockCrossHandle(t *testing.T) {
	dir := t.TempDir()
	fl1, err := OpenFileLock(dir + "/x.lock")
	if err != nil {
		t.Fatal(err)
	}
	defer fl1.Close()
	fl2, err := OpenFileLock(dir + "/x.lock")
	if err != nil {
		t.Fatal(err)
	}
	defer fl2.Close()

	if err := fl1.Lock(time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err := fl2.Lock(time.Now().Add(50 * time.Millisecond)); err == nil {
		t.Fatal("expected second handle to fail acquiring the same flock")
	}
	fl1.Unlock()
	if err := fl2.Lock(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	fl2.Unlock()
}
