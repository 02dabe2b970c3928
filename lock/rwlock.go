// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package lock implements the lock manager (component E, §4.E): the
// process-wide create-lock and ext-remap lock (both real advisory file
// locks via golang.org/x/sys/unix, so they genuinely serialize unrelated
// processes touching the same installation), and the per-module data
// lock with upgradeable read mode and per-(module,datastore) DS-lock
// bookkeeping (in-process, mirroring how the teacher's own
// session.Session.Lock/Unlock keeps lock ownership as plain in-memory
// state on the single daemon process rather than in shared memory — see
// DESIGN.md).
package lock

import (
	"sync"
	"time"

	"github.com/danos/tsd/errkind"
)

// Guard is a scoped lock holder whose release is guaranteed on all exit
// paths by the caller's defer (§9 "Locks as typed guards").
type Guard struct {
	l        *RWLock
	write    bool
	released bool
}

// Release drops the guard's hold. Safe to call at most once; a second
// call is a no-op.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if g.write {
		g.l.unlock()
	} else {
		g.l.runlock()
	}
}

// RWLock is a reader/writer/upgradeable lock with deadline-bounded
// acquisition (§4.E "every acquire takes a monotonic deadline; on
// timeout returns LOCKED").
type RWLock struct {
	mu         sync.Mutex
	cond       *sync.Cond
	readers    int
	writer     bool
	upgrading  bool // a reader is mid-upgrade; blocks new readers and writers
}

func NewRWLock() *RWLock {
	l := &RWLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// waitUntil blocks on l.cond until pred() is true or deadline passes,
// returning false on timeout. l.mu must be held by the caller.
func (l *RWLock) waitUntil(deadline time.Time, pred func() bool) bool {
	if pred() {
		return true
	}
	if deadline.IsZero() {
		for !pred() {
			l.cond.Wait()
		}
		return true
	}
	done := make(chan struct{})
	timer := time.AfterFunc(time.Until(deadline), func() {
		close(done)
		l.cond.Broadcast()
	})
	defer timer.Stop()
	for !pred() {
		select {
		case <-done:
			if pred() {
				return true
			}
			return false
		default:
		}
		l.cond.Wait()
	}
	return true
}

// RLock acquires a read hold, blocked only while a writer holds the lock
// or an upgrade is in flight. deadline is the zero Time for "wait
// forever".
func (l *RWLock) RLock(deadline time.Time) (*Guard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok := l.waitUntil(deadline, func() bool { return !l.writer && !l.upgrading })
	if !ok {
		return nil, errkind.New(errkind.Locked, "", "timed out acquiring read lock")
	}
	l.readers++
	return &Guard{l: l, write: false}, nil
}

func (l *RWLock) runlock() {
	l.mu.Lock()
	l.readers--
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Lock acquires the exclusive write hold.
func (l *RWLock) Lock(deadline time.Time) (*Guard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok := l.waitUntil(deadline, func() bool { return !l.writer && l.readers == 0 && !l.upgrading })
	if !ok {
		return nil, errkind.New(errkind.Locked, "", "timed out acquiring write lock")
	}
	l.writer = true
	return &Guard{l: l, write: true}, nil
}

func (l *RWLock) unlock() {
	l.mu.Lock()
	l.writer = false
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Upgrade converts a read guard to a write guard atomically: no other
// acquirer can slip in a write lock between the release of the read
// hold and the grant of the write hold (§4.E "upgrading from read to
// write is atomic and waits; a write lock cannot be acquired while any
// reader, other than the upgrader itself, holds it"). On success g is
// consumed (promoted into the returned write guard); on timeout g keeps
// its read hold and the caller still releases it.
func (g *Guard) Upgrade(deadline time.Time) (*Guard, error) {
	if g.write {
		return g, nil
	}
	l := g.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if g.released {
		return nil, errkind.New(errkind.Internal, "", "upgrade called on released guard")
	}
	l.upgrading = true
	ok := l.waitUntil(deadline, func() bool { return l.readers == 1 })
	if !ok {
		l.upgrading = false
		l.cond.Broadcast()
		return nil, errkind.New(errkind.Locked, "", "timed out upgrading read lock to write")
	}
	l.readers = 0
	l.writer = true
	l.upgrading = false
	g.released = true
	return &Guard{l: l, write: true}, nil
}
