// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package module implements the module metadata store of §4.I: the
// installed-module directory (name, revision, enabled features, inverse
// data dependencies, replay-support flag) plus a queue of scheduled
// operations (install/update/remove/feature toggle) applied atomically
// at connect time. It generalizes the teacher's session/session.go
// model-set/feature bookkeeping and client/vci.go's module-lookup shape
// away from a live YANG ModelSet and onto the plain metadata record
// package shm's MainRegion module directory already stores.
package module

import (
	"sync"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/shm"
)

// Module is the in-memory view of one installed module's metadata,
// layered on top of the shared-memory directory entry (which only
// carries name/revision/flags/replay-support/subscription-list heads).
type Module struct {
	Name          string
	Revision      string
	Features      map[string]bool
	InverseDeps   []string // modules that depend on this one
	ReplaySupport bool
}

// OpKind enumerates the scheduled-operation kinds of §4.I.
type OpKind int

const (
	OpInstall OpKind = iota
	OpUpdate
	OpRemove
	OpEnableFeature
	OpDisableFeature
)

func (k OpKind) String() string {
	switch k {
	case OpInstall:
		return "install"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpEnableFeature:
		return "enable-feature"
	case OpDisableFeature:
		return "disable-feature"
	}
	return "unknown"
}

// ScheduledOp is one queued module-admin operation, processed atomically
// the next time ApplyScheduled runs (§4.I "At connection time the first
// connection processes scheduled operations atomically").
type ScheduledOp struct {
	Kind        OpKind
	Module      string
	Revision    string
	YANGText    []byte // cached schema text for install/update
	InitialData []byte // optional initial data for install
	Feature     string // for enable/disable-feature
}

// Store is the installed-module directory plus its pending schedule.
// The schema-bound "well-known path" tree the spec describes is realized
// here as this plain Go struct synchronized onto shm.MainRegion's module
// directory rather than as a data tree instance of itself, since a
// config/state tree representation of the daemon's own bootstrap
// metadata would need the daemon's schema compiler to already be
// running — a bootstrapping problem the teacher itself avoids by
// keeping its equivalent model-set bookkeeping in plain Go fields on
// session.Session, not in a YANG-modeled tree.
type Store struct {
	main *shm.MainRegion

	mu        sync.Mutex
	modules   map[string]*Module
	scheduled []ScheduledOp
}

func NewStore(main *shm.MainRegion) *Store {
	s := &Store{main: main, modules: make(map[string]*Module)}
	for _, rec := range main.Modules() {
		s.modules[rec.Name] = &Module{
			Name: rec.Name, Revision: rec.Revision,
			Features: make(map[string]bool), ReplaySupport: rec.ReplaySupport,
		}
	}
	return s
}

// Get returns the metadata for an installed module.
func (s *Store) Get(name string) (*Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[name]
	return m, ok
}

// List returns a snapshot of every installed module.
func (s *Store) List() []*Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	return out
}

// Schedule queues op for the next ApplyScheduled pass (§6 module-admin
// operations: install_module/remove_module/update_module/enable_feature
// all go through the schedule rather than mutating the directory
// in-line, so a partially-applied admin operation can never be
// observed).
func (s *Store) Schedule(op ScheduledOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, op)
}

// Scheduled returns a snapshot of the pending schedule.
func (s *Store) Scheduled() []ScheduledOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledOp, len(s.scheduled))
	copy(out, s.scheduled)
	return out
}

// Validator builds a tentative new schema context from the pending
// schedule and checks that every remaining module's dependencies are
// still satisfied (§4.I "constructs a tentative new schema context,
// validates that all dependencies remain satisfied"). Reparse parses
// existing persisted data through the old context and then the new one.
// Both are supplied by the caller (package client, which owns the
// schema compiler this package has no dependency on), the same
// dependency-injection shape event.Publish uses for RefineFunc/StoreFunc.
type Validator func(ops []ScheduledOp) error
type Reparser func(ops []ScheduledOp) error

// ApplyScheduled processes the pending schedule atomically: validate,
// then reparse, and only on both succeeding does it mutate the
// in-memory directory and the shared-memory module records; on any
// failure the schedule is left untouched and logInfo receives a
// human-readable reason (§4.I "on any failure the schedule is left in
// place and an info message is logged").
func (s *Store) ApplyScheduled(validate Validator, reparse Reparser, logInfo func(string)) error {
	s.mu.Lock()
	ops := make([]ScheduledOp, len(s.scheduled))
	copy(ops, s.scheduled)
	s.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	if err := validate(ops); err != nil {
		if logInfo != nil {
			logInfo("module schedule left in place: validation failed: " + err.Error())
		}
		return err
	}
	if err := reparse(ops); err != nil {
		if logInfo != nil {
			logInfo("module schedule left in place: reparse failed: " + err.Error())
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if err := s.finalize(op); err != nil {
			return err
		}
	}
	s.scheduled = nil
	return nil
}

func (s *Store) finalize(op ScheduledOp) error {
	switch op.Kind {
	case OpInstall, OpUpdate:
		m := s.modules[op.Module]
		if m == nil {
			m = &Module{Name: op.Module, Features: make(map[string]bool)}
			s.modules[op.Module] = m
		}
		m.Revision = op.Revision
		rec, _ := s.main.FindModule(op.Module)
		rec.Name = op.Module
		rec.Revision = op.Revision
		if rec.ChangeSubHead == 0 {
			rec.ChangeSubHead, rec.OperSubHead, rec.RPCSubHead, rec.NotifSubHead, rec.DataLockHeader = -1, -1, -1, -1, -1
		}
		return s.main.PutModule(rec)
	case OpRemove:
		if _, ok := s.modules[op.Module]; !ok {
			return errkind.New(errkind.NotFound, "", "module %q is not installed", op.Module)
		}
		delete(s.modules, op.Module)
		return nil
	case OpEnableFeature, OpDisableFeature:
		m, ok := s.modules[op.Module]
		if !ok {
			return errkind.New(errkind.NotFound, "", "module %q is not installed", op.Module)
		}
		m.Features[op.Feature] = op.Kind == OpEnableFeature
		return nil
	}
	return errkind.New(errkind.Internal, "", "unknown scheduled op kind %v", op.Kind)
}

// SetReplaySupport toggles a module's notification-replay flag
// immediately (§6 "set_replay_support(conn, mod, on)"); unlike
// install/update/remove this is not scheduled since it has no schema
// dependency implications.
func (s *Store) SetReplaySupport(name string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[name]
	if !ok {
		return errkind.New(errkind.NotFound, "", "module %q is not installed", name)
	}
	m.ReplaySupport = on
	rec, ok := s.main.FindModule(name)
	if !ok {
		return errkind.New(errkind.NotFound, "", "module %q has no directory entry", name)
	}
	rec.ReplaySupport = on
	return s.main.PutModule(rec)
}

// AddInverseDep records that dependent consumes data from module (§4.I
// "inverse data dependencies"), used by Validator implementations to
// check a removal or feature change doesn't orphan a dependent module.
func (s *Store) AddInverseDep(module, dependent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[module]
	if !ok {
		return errkind.New(errkind.NotFound, "", "module %q is not installed", module)
	}
	for _, d := range m.InverseDeps {
		if d == dependent {
			return nil
		}
	}
	m.InverseDeps = append(m.InverseDeps, dependent)
	return nil
}
