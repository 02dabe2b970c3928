// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package module_test

import (
	"errors"
	"testing"

	"github.com/danos/tsd/module"
	"github.com/danos/tsd/shm"
)

func newTestStore(t *testing.T) (*module.Store, func()) {
	t.Helper()
	dir := t.TempDir()
	main, err := shm.OpenMain(dir)
	if err != nil {
		t.Fatal(err)
	}
	return module.NewStore(main), func() { main.Close() }
}

func TestScheduleInstallAppliesAtomically(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	s.Schedule(module.ScheduledOp{Kind: module.OpInstall, Module: "interfaces", Revision: "2024-01-01"})

	var validated, reparsed bool
	err := s.ApplyScheduled(
		func(ops []module.ScheduledOp) error { validated = true; return nil },
		func(ops []module.ScheduledOp) error { reparsed = true; return nil },
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	if !validated || !reparsed {
		t.Fatal("expected both validate and reparse to run")
	}
	m, ok := s.Get("interfaces")
	if !ok {
		t.Fatal("expected module to be installed")
	}
	if m.Revision != "2024-01-01" {
		t.Fatalf("unexpected revision %q", m.Revision)
	}
	if len(s.Scheduled()) != 0 {
		t.Fatal("expected schedule to be drained")
	}
}

func TestScheduleLeftInPlaceOnValidationFailure(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	s.Schedule(module.ScheduledOp{Kind: module.OpInstall, Module: "interfaces", Revision: "2024-01-01"})

	var loggedInfo string
	err := s.ApplyScheduled(
		func(ops []module.ScheduledOp) error { return errors.New("dependency unsatisfied") },
		func(ops []module.ScheduledOp) error { t.Fatal("reparse must not run after validation failure"); return nil },
		func(msg string) { loggedInfo = msg },
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if loggedInfo == "" {
		t.Fatal("expected an info message to be logged")
	}
	if _, ok := s.Get("interfaces"); ok {
		t.Fatal("module must not be installed after a failed schedule")
	}
	if len(s.Scheduled()) != 1 {
		t.Fatal("expected schedule to remain queued")
	}
}

func TestEnableFeatureAndReplaySupport(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	s.Schedule(module.ScheduledOp{Kind: module.OpInstall, Module: "interfaces", Revision: "r1"})
	if err := s.ApplyScheduled(noop, noop, nil); err != nil {
		t.Fatal(err)
	}

	s.Schedule(module.ScheduledOp{Kind: module.OpEnableFeature, Module: "interfaces", Feature: "vlans"})
	if err := s.ApplyScheduled(noop, noop, nil); err != nil {
		t.Fatal(err)
	}
	m, _ := s.Get("interfaces")
	if !m.Features["vlans"] {
		t.Fatal("expected vlans feature to be enabled")
	}

	if err := s.SetReplaySupport("interfaces", true); err != nil {
		t.Fatal(err)
	}
	m, _ = s.Get("interfaces")
	if !m.ReplaySupport {
		t.Fatal("expected replay support flag set")
	}
}

func TestRemoveUnknownModuleFails(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	s.Schedule(module.ScheduledOp{Kind: module.OpRemove, Module: "nope"})
	if err := s.ApplyScheduled(noop, noop, nil); err == nil {
		t.Fatal("expected NOT_FOUND for removing an uninstalled module")
	}
}

func noop(ops []module.ScheduledOp) error { return nil }
