// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package conn implements the session and connection lifecycle of §4.H:
// a Connection owns the process's end of shared memory plus its session
// list and a per-connection mutex protecting it, generalizing the
// teacher's server/conn.go (connection, credentials, per-conn state) and
// session/sessionmgr.go (id allocation, session map, monitor-style
// locking) away from the teacher's net.UnixConn-backed RPC transport and
// onto a plain library surface over package shm/lock/subscribe/event.
package conn

import (
	"sync"
	"time"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/event"
	"github.com/danos/tsd/lock"
	"github.com/danos/tsd/shm"
	"github.com/danos/tsd/subscribe"
)

// Connection owns one process's view of an installation's shared memory
// (§4.H: "A connection owns the process's end of the shared memory, a
// session list, and a per-connection mutex protecting those lists").
type Connection struct {
	ID       uint64
	RepoRoot string
	Pid      int

	Main  *shm.MainRegion
	Ext   *shm.ExtRegion
	Locks *lock.Manager
	Subs  *subscribe.Registry
	Bus   *event.Bus

	mu       sync.RWMutex
	sessions map[uint64]*Session
}

// Connect opens (or joins) the installation's shared memory under
// repoRoot and allocates a fresh connection id (§4.D's "next connection
// id" counter).
func Connect(repoRoot string, pid int) (*Connection, error) {
	main, err := shm.OpenMain(repoRoot)
	if err != nil {
		return nil, err
	}
	ext, err := shm.OpenExt(repoRoot)
	if err != nil {
		main.Close()
		return nil, err
	}
	lm, err := lock.NewManager(repoRoot)
	if err != nil {
		main.Close()
		ext.Close()
		return nil, err
	}

	if err := lm.CreateLock.Lock(time.Time{}); err != nil {
		main.Close()
		ext.Close()
		lm.Close()
		return nil, err
	}
	id := main.NextConnID()
	lm.CreateLock.Unlock()

	c := &Connection{
		ID:       id,
		RepoRoot: repoRoot,
		Pid:      pid,
		Main:     main,
		Ext:      ext,
		Locks:    lm,
		Bus:      event.NewBus(),
		sessions: make(map[uint64]*Session),
	}
	c.Subs = subscribe.NewRegistry(main, ext, lm)
	return c, nil
}

// Disconnect stops every session owned by c and releases its shared
// memory mappings.
func Disconnect(c *Connection) error {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = make(map[uint64]*Session)
	c.mu.Unlock()

	for _, s := range sessions {
		s.stopNotifBuffer()
	}

	var firstErr error
	if err := c.Locks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Ext.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Main.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// GetContentID returns a coarse version stamp of the installation's
// module directory (§6 "get_content_id(conn) -> u32"): a hash over
// every directory entry's name and revision, in directory order, so it
// changes when the set of installed modules or their revisions changes.
// Callers use it to detect whether their cached module list
// needs refreshing.
func (c *Connection) GetContentID() uint32 {
	var id uint32
	for _, m := range c.Main.Modules() {
		id = id*31 + hashString(m.Name) + hashString(m.Revision)
	}
	return id
}

func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// StartSession allocates a session bound to ds and owned by c (§4.H,
// "Sessions cannot be shared across connections").
func (c *Connection) StartSession(ds string) (*Session, error) {
	id := c.Main.NextSessionID()
	s := newSession(id, c.ID, ds)

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()
	return s, nil
}

// StopSession removes and tears down a previously started session.
func (c *Connection) StopSession(sessionID uint64) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if ok {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return errkind.New(errkind.NotFound, "", "session %d not found", sessionID)
	}
	s.stopNotifBuffer()
	c.Locks.ReleaseAllDSLocksForSession(sessionID)
	return nil
}

// Session looks up a session owned by c.
func (c *Connection) Session(sessionID uint64) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "", "session %d not found", sessionID)
	}
	return s, nil
}

// Sessions returns a snapshot of every session currently owned by c.
func (c *Connection) Sessions() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}
