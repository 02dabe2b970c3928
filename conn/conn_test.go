// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package conn_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danos/tsd/conn"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

func TestConnectStartStopSession(t *testing.T) {
	dir := t.TempDir()
	c, err := conn.Connect(dir, 1234)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Disconnect(c)

	s, err := c.StartSession("running")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Datastore(); got != "running" {
		t.Fatalf("datastore = %q, want running", got)
	}

	if _, err := c.Session(s.ID); err != nil {
		t.Fatalf("Session lookup failed: %v", err)
	}

	if err := c.StopSession(s.ID); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if _, err := c.Session(s.ID); err == nil {
		t.Fatal("expected NOT_FOUND after StopSession")
	}
}

func TestSessionSwitchDSDropsPending(t *testing.T) {
	dir := t.TempDir()
	c, err := conn.Connect(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Disconnect(c)

	s, err := c.StartSession("running")
	if err != nil {
		t.Fatal(err)
	}

	root := tree.New(schema.New("tsd-interfaces", "interfaces", schema.Container), "")
	s.SetPendingEdit("tsd-interfaces", root)
	if len(s.PendingModules()) != 1 {
		t.Fatalf("expected one pending module before switch")
	}

	s.SwitchDS("candidate")
	if got := s.Datastore(); got != "candidate" {
		t.Fatalf("datastore = %q, want candidate", got)
	}
	if len(s.PendingModules()) != 0 {
		t.Fatal("expected pending edits dropped across SwitchDS")
	}
}

func TestSessionOriginatorAndErrorState(t *testing.T) {
	dir := t.TempDir()
	c, err := conn.Connect(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Disconnect(c)

	s, err := c.StartSession("running")
	if err != nil {
		t.Fatal(err)
	}

	s.SetOriginator("cli", []byte("blob"))
	orig := s.Originator()
	if orig.Name != "cli" || string(orig.Data) != "blob" {
		t.Fatalf("unexpected originator %+v", orig)
	}

	s.PushErrorData([]byte("err-data"))
	s.SetError(errors.New("boom"))
	err2, blob := s.GetError()
	if err2 == nil || err2.Error() != "boom" {
		t.Fatalf("unexpected GetError err: %v", err2)
	}
	if string(blob) != "err-data" {
		t.Fatalf("unexpected error-data blob: %q", blob)
	}
}

func TestNotifBufferFlushesOnStop(t *testing.T) {
	var mu sync.Mutex
	var got [][]byte

	nb := conn.NewNotifBuffer(func(rec []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, rec)
		return nil
	})

	for i := 0; i < 10; i++ {
		if err := nb.Push([]byte{byte(i)}, time.Time{}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	nb.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("flushed %d records, want 10", len(got))
	}
}

func TestConfirmedApplyRollsBackOnTimeout(t *testing.T) {
	root := schema.New("", "root", schema.Container)

	var mu sync.Mutex
	var applied []string

	apply := func(d *tree.Node) (*tree.Node, error) {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, d.Value)
		return d, nil
	}

	committedDiff := tree.New(root, "committed")
	rollbackCh := make(chan error, 1)
	guard, _, err := conn.ConfirmedApply(apply, committedDiff, 20*time.Millisecond, func(err error) {
		rollbackCh <- err
	})
	if err != nil {
		t.Fatal(err)
	}
	if guard == nil {
		t.Fatal("expected non-nil guard for positive timeout")
	}

	select {
	case <-rollbackCh:
	case <-time.After(2 * time.Second):
		t.Fatal("rollback callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 2 || applied[0] != "committed" {
		t.Fatalf("applied = %v, want [committed, <reverse-of-committed>]", applied)
	}
}

func TestConfirmedApplyConfirmCancelsRollback(t *testing.T) {
	root := schema.New("", "root", schema.Container)
	apply := func(d *tree.Node) (*tree.Node, error) { return d, nil }

	guard, _, err := conn.ConfirmedApply(apply, tree.New(root, ""), 50*time.Millisecond, func(error) {
		t.Fatal("rollback must not fire after ConfirmCommit")
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := guard.ConfirmCommit(); err != nil {
		t.Fatalf("ConfirmCommit: %v", err)
	}
	if err := guard.ConfirmCommit(); err == nil {
		t.Fatal("expected OPERATION_FAILED on second ConfirmCommit")
	}

	time.Sleep(100 * time.Millisecond)
}

func TestStopSessionUnknownIsNotFound(t *testing.T) {
	dir := t.TempDir()
	c, err := conn.Connect(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Disconnect(c)

	if err := c.StopSession(9999); err == nil {
		t.Fatal("expected NOT_FOUND for unknown session id")
	}
}
