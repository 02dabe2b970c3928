// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package lock

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/danos/tsd/errkind"
	"golang.org/x/sys/unix"
)

// FileLock is a real, cross-process advisory exclusive lock backed by
// flock(2) via golang.org/x/sys/unix, used for the create-lock and the
// ext-remap lock (§4.E): both classes are process-wide and coarse enough
// that a plain OS file lock is the right primitive, unlike the
// fine-grained per-module data lock above.
type FileLock struct {
	f *os.File
}

func OpenFileLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// Lock blocks until the exclusive flock is acquired or deadline passes.
func (fl *FileLock) Lock(deadline time.Time) error {
	for {
		err := unix.Flock(int(fl.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return errkind.New(errkind.Locked, "", "timed out acquiring file lock %s", fl.f.Name())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (fl *FileLock) Unlock() error {
	return unix.Flock(int(fl.f.Fd()), unix.LOCK_UN)
}

func (fl *FileLock) Close() error { return fl.f.Close() }

// moduleDSKey keys the per-(module, datastore) data-lock and DS-lock
// maps. It imposes no order; the multi-module lock ordering of §4.E is
// done by OrderModules.
type moduleDSKey struct {
	module    string
	datastore string
}

// DSLockInfo is the advisory exclusive lock held by one session to block
// all writers on a (module, datastore) (§4.E "DS-lock").
type DSLockInfo struct {
	SessionID uint64
	Since     time.Time
}

// Manager owns the per-(module,datastore) data locks and DS-lock
// bookkeeping for one installation. The create-lock and ext-remap lock
// live alongside it but are acquired directly via their FileLock value
// since they guard region-level operations, not module data.
type Manager struct {
	CreateLock   *FileLock
	ExtRemap     *FileLock
	mu           sync.Mutex
	dataLocks    map[moduleDSKey]*RWLock
	dsLocks      map[moduleDSKey]DSLockInfo
}

func NewManager(repoRoot string) (*Manager, error) {
	create, err := OpenFileLock(filepath.Join(repoRoot, "shm", "tsd.create.lock"))
	if err != nil {
		return nil, err
	}
	ext, err := OpenFileLock(filepath.Join(repoRoot, "shm", "tsd.ext.lock"))
	if err != nil {
		create.Close()
		return nil, err
	}
	return &Manager{
		CreateLock: create,
		ExtRemap:   ext,
		dataLocks:  make(map[moduleDSKey]*RWLock),
		dsLocks:    make(map[moduleDSKey]DSLockInfo),
	}, nil
}

func (m *Manager) Close() error {
	m.CreateLock.Close()
	m.ExtRemap.Close()
	return nil
}

func (m *Manager) dataLock(module, datastore string) *RWLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := moduleDSKey{module, datastore}
	l, ok := m.dataLocks[k]
	if !ok {
		l = NewRWLock()
		m.dataLocks[k] = l
	}
	return l
}

// RLockData/LockData acquire the per-(module,datastore) data lock.
func (m *Manager) RLockData(module, datastore string, deadline time.Time) (*Guard, error) {
	return m.dataLock(module, datastore).RLock(deadline)
}

func (m *Manager) LockData(module, datastore string, deadline time.Time) (*Guard, error) {
	return m.dataLock(module, datastore).Lock(deadline)
}

// OrderModules sorts module names lexicographically, the canonical order
// a caller touching multiple modules must acquire per-module locks in to
// avoid deadlock (§4.E "Ordering").
func OrderModules(modules []string) []string {
	out := make([]string, len(modules))
	copy(out, modules)
	sort.Strings(out)
	return out
}

// LockDataMulti acquires write locks on every (module, datastore) pair
// in canonical module-name order, releasing everything already acquired
// if a later one times out.
func (m *Manager) LockDataMulti(modules []string, datastore string, deadline time.Time) ([]*Guard, error) {
	ordered := OrderModules(modules)
	guards := make([]*Guard, 0, len(ordered))
	for _, mod := range ordered {
		g, err := m.LockData(mod, datastore, deadline)
		if err != nil {
			for _, held := range guards {
				held.Release()
			}
			return nil, err
		}
		guards = append(guards, g)
	}
	return guards, nil
}

// AcquireDSLock grants the exclusive advisory DS-lock on (module,
// datastore) to sessionID, failing with LOCKED if another session
// already holds it.
func (m *Manager) AcquireDSLock(module, datastore string, sessionID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := moduleDSKey{module, datastore}
	if info, held := m.dsLocks[k]; held && info.SessionID != sessionID {
		return errkind.New(errkind.Locked, "", "datastore %s/%s locked by session %d", module, datastore, info.SessionID)
	}
	m.dsLocks[k] = DSLockInfo{SessionID: sessionID, Since: time.Now()}
	return nil
}

// ReleaseDSLock releases the DS-lock iff held by sessionID; releasing a
// lock you don't own is OPERATION_FAILED per §7.
func (m *Manager) ReleaseDSLock(module, datastore string, sessionID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := moduleDSKey{module, datastore}
	info, held := m.dsLocks[k]
	if !held {
		return errkind.New(errkind.OperationFailed, "", "datastore %s/%s is not locked", module, datastore)
	}
	if info.SessionID != sessionID {
		return errkind.New(errkind.OperationFailed, "", "datastore %s/%s is locked by another session", module, datastore)
	}
	delete(m.dsLocks, k)
	return nil
}

// DSLockHolder reports the current DS-lock owner, if any.
func (m *Manager) DSLockHolder(module, datastore string) (DSLockInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.dsLocks[moduleDSKey{module, datastore}]
	return info, ok
}

// ReleaseAllDSLocksForSession drops every DS-lock owned by sessionID,
// the recovery behavior on session/connection termination mirroring
// server/conn.go's "UnlockAllPid" deferred cleanup in the teacher.
func (m *Manager) ReleaseAllDSLocksForSession(sessionID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, info := range m.dsLocks {
		if info.SessionID == sessionID {
			delete(m.dsLocks, k)
		}
	}
}
