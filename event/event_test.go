// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package event_test

import (
	"errors"
	"testing"
	"time"

	"github.com/danos/tsd/event"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/tree"
)

func diffNode() *tree.Node {
	root := schema.New("", "root", schema.Container)
	ifaces := schema.New("tsd-interfaces", "interfaces", schema.Container)
	root.AddChild(ifaces)
	return tree.New(ifaces, "")
}

// recorder is a Handler that records which phases it was called for and
// can be told to fail a given phase.
type recorder struct {
	name                          string
	failUpdate, failChange        bool
	refinement                    *tree.Node
	calls                         []string
}

func (r *recorder) OnUpdate(env event.Envelope) (*tree.Node, error) {
	r.calls = append(r.calls, "update")
	if r.failUpdate {
		return nil, errors.New("update boom")
	}
	return r.refinement, nil
}

func (r *recorder) OnChange(env event.Envelope) error {
	r.calls = append(r.calls, "change")
	if r.failChange {
		return errors.New("change boom")
	}
	return nil
}

func (r *recorder) OnDone(env event.Envelope)    { r.calls = append(r.calls, "done") }
func (r *recorder) OnAbort(env event.Envelope)   { r.calls = append(r.calls, "abort") }
func (r *recorder) OnEnabled(env event.Envelope) { r.calls = append(r.calls, "enabled") }

func TestPublishHappyPath(t *testing.T) {
	bus := event.NewBus()
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Priority: 10, Handler: a})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, Priority: 5, Handler: b})

	stored := false
	final, err := event.Publish(bus, 1, "interfaces", "running", diffNode(), event.Originator{Name: "cli"}, nil,
		func() error { stored = true; return nil }, event.DefaultDeadlines())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if final == nil {
		t.Fatal("expected non-nil final diff")
	}
	if !stored {
		t.Fatal("expected store to run")
	}
	for _, r := range []*recorder{a, b} {
		if len(r.calls) != 2 || r.calls[0] != "change" || r.calls[1] != "done" {
			t.Fatalf("%s: expected change then done, got %v", r.name, r.calls)
		}
	}
}

// S6 -- an update-phase subscriber returns a refinement that must be
// folded into the diff seen by the change phase.
func TestPublishUpdateRefinement(t *testing.T) {
	bus := event.NewBus()
	refinement := diffNode()
	updater := &recorder{name: "updater", refinement: refinement}
	changer := &recorder{name: "changer"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Update: true, Handler: updater})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, Handler: changer})

	var refinedWith *tree.Node
	refine := func(r *tree.Node) (*tree.Node, error) {
		refinedWith = r
		return r, nil
	}

	final, err := event.Publish(bus, 2, "interfaces", "running", diffNode(), event.Originator{}, refine,
		func() error { return nil }, event.DefaultDeadlines())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if refinedWith != refinement {
		t.Fatal("expected refine to be called with the update-phase refinement")
	}
	if final != refinement {
		t.Fatal("expected the refined diff to propagate to the change phase and back")
	}
	if len(changer.calls) != 2 || changer.calls[0] != "change" || changer.calls[1] != "done" {
		t.Fatalf("expected changer to see the refined diff (change then done), got %v", changer.calls)
	}
}

// Update-phase failure aborts the whole transaction before any change
// subscriber or the store function runs, and delivers no abort events
// (nothing was committed yet).
func TestPublishUpdateFailureStopsBeforeChange(t *testing.T) {
	bus := event.NewBus()
	updater := &recorder{name: "updater", failUpdate: true}
	changer := &recorder{name: "changer"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Update: true, Handler: updater})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, Handler: changer})

	stored := false
	_, err := event.Publish(bus, 3, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { stored = true; return nil }, event.DefaultDeadlines())
	if err == nil {
		t.Fatal("expected error")
	}
	if stored {
		t.Fatal("store must not run after an update-phase failure")
	}
	if len(changer.calls) != 0 {
		t.Fatalf("expected no change-phase calls, got %v", changer.calls)
	}
}

// A change-phase failure aborts only the subscribers already invoked
// this phase, in reverse order, and never reaches the store function.
func TestPublishChangeFailureAbortsInvokedOnly(t *testing.T) {
	bus := event.NewBus()
	first := &recorder{name: "first"}
	second := &recorder{name: "second", failChange: true}
	third := &recorder{name: "third"}
	// Descending priority: first runs before second, second before third.
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Priority: 30, Handler: first})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, Priority: 20, Handler: second})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 3, Priority: 10, Handler: third})

	stored := false
	_, err := event.Publish(bus, 4, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { stored = true; return nil }, event.DefaultDeadlines())
	if err == nil {
		t.Fatal("expected error")
	}
	if stored {
		t.Fatal("store must not run after a change-phase failure")
	}
	if len(first.calls) != 2 || first.calls[0] != "change" || first.calls[1] != "abort" {
		t.Fatalf("first: expected change then abort, got %v", first.calls)
	}
	if len(second.calls) != 1 || second.calls[0] != "change" {
		t.Fatalf("second: expected only its failing change call, got %v", second.calls)
	}
	if len(third.calls) != 0 {
		t.Fatalf("third: expected no calls (never reached), got %v", third.calls)
	}
}

// A store failure aborts every change-phase subscriber, in reverse
// order, same as a change-phase failure.
func TestPublishStoreFailureAbortsAll(t *testing.T) {
	bus := event.NewBus()
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Priority: 10, Handler: a})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, Priority: 5, Handler: b})

	_, err := event.Publish(bus, 5, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { return errors.New("store boom") }, event.DefaultDeadlines())
	if err == nil {
		t.Fatal("expected error")
	}
	for _, r := range []*recorder{a, b} {
		if len(r.calls) != 2 || r.calls[1] != "abort" {
			t.Fatalf("%s: expected change then abort, got %v", r.name, r.calls)
		}
	}
}

// Suspended and non-matching-filter subscribers are skipped entirely and
// counted in FilteredOut.
func TestPublishSkipsSuspendedAndFiltered(t *testing.T) {
	bus := event.NewBus()
	suspended := &recorder{name: "suspended"}
	filtered := &recorder{name: "filtered"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Suspended: true, Handler: suspended})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, Filter: "/routing", Handler: filtered})

	_, err := event.Publish(bus, 6, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { return nil }, event.DefaultDeadlines())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(suspended.calls) != 0 {
		t.Fatalf("suspended subscriber should not be called, got %v", suspended.calls)
	}
	if len(filtered.calls) != 0 {
		t.Fatalf("non-matching filter subscriber should not be called, got %v", filtered.calls)
	}
	if bus.FilteredOut[2] != 1 {
		t.Fatalf("expected FilteredOut[2]==1, got %d", bus.FilteredOut[2])
	}
}

// A subscriber that blows past its deadline counts as a failed callback.
func TestPublishChangeTimeout(t *testing.T) {
	bus := event.NewBus()
	slow := slowHandler{delay: 50 * time.Millisecond}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Handler: slow})

	dl := event.DefaultDeadlines()
	dl.Change = 5 * time.Millisecond
	_, err := event.Publish(bus, 7, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { return nil }, dl)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

// A DoneOnly subscriber never sees update or change (and so can never
// abort a transaction) but does receive the final done event.
func TestPublishDoneOnlySkipsChangeReceivesDone(t *testing.T) {
	bus := event.NewBus()
	changer := &recorder{name: "changer"}
	doneOnly := &recorder{name: "done-only"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Handler: changer})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, DoneOnly: true, Handler: doneOnly})

	_, err := event.Publish(bus, 8, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { return nil }, event.DefaultDeadlines())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(changer.calls) != 2 || changer.calls[0] != "change" || changer.calls[1] != "done" {
		t.Fatalf("changer: expected change then done, got %v", changer.calls)
	}
	if len(doneOnly.calls) != 1 || doneOnly.calls[0] != "done" {
		t.Fatalf("done-only: expected only a done call, got %v", doneOnly.calls)
	}
}

// If the change phase fails, a DoneOnly subscriber was never invoked and
// so must receive neither change, abort, nor done.
func TestPublishDoneOnlySkippedOnChangeFailure(t *testing.T) {
	bus := event.NewBus()
	failing := &recorder{name: "failing", failChange: true}
	doneOnly := &recorder{name: "done-only"}
	bus.Register("interfaces", "running", &event.Subscriber{ID: 1, Handler: failing})
	bus.Register("interfaces", "running", &event.Subscriber{ID: 2, DoneOnly: true, Handler: doneOnly})

	_, err := event.Publish(bus, 9, "interfaces", "running", diffNode(), event.Originator{}, nil,
		func() error { return nil }, event.DefaultDeadlines())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(doneOnly.calls) != 0 {
		t.Fatalf("done-only: expected no calls after a change-phase failure, got %v", doneOnly.calls)
	}
}

type slowHandler struct{ delay time.Duration }

func (s slowHandler) OnUpdate(event.Envelope) (*tree.Node, error) { return nil, nil }
func (s slowHandler) OnChange(event.Envelope) error {
	time.Sleep(s.delay)
	return nil
}
func (s slowHandler) OnDone(event.Envelope)    {}
func (s slowHandler) OnAbort(event.Envelope)   {}
func (s slowHandler) OnEnabled(event.Envelope) {}
