// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package event

import (
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/tree"
)

// StoreFunc persists the committed tree under the per-module write lock
// (§4.G "Store phase"); owned by the caller (package client), which knows
// about package lock and package store.
type StoreFunc func() error

// Publish drives one change transaction through the four-phase protocol
// of §4.G/§8 property 6: update (only Update-flagged subscribers,
// highest priority first, refinements folded back via refine), change
// (every other non-suspended, filter-matching subscriber, highest
// priority first; a failure aborts everyone already invoked this phase,
// in reverse order), store (under the caller-supplied StoreFunc), and
// done (every change-phase subscriber, best effort). It returns the diff
// as finally delivered to the change phase (after any update-phase
// refinements).
func Publish(
	bus *Bus,
	eventID uint64,
	module, datastore string,
	diff *tree.Node,
	orig Originator,
	refine RefineFunc,
	store StoreFunc,
	dl Deadlines,
) (finalDiff *tree.Node, err error) {
	working := diff

	if err := runUpdatePhase(bus, eventID, module, datastore, &working, orig, refine, dl); err != nil {
		// §4.G: update-phase failure sends no abort (no committed
		// state exists yet); the transaction simply fails.
		return nil, err
	}

	invoked, err := runChangePhase(bus, eventID, module, datastore, working, orig, dl)
	if err != nil {
		runAbortPhase(bus, eventID, module, datastore, working, orig, invoked, dl)
		return nil, err
	}

	if store != nil {
		if serr := store(); serr != nil {
			runAbortPhase(bus, eventID, module, datastore, working, orig, invoked, dl)
			return nil, serr
		}
	}

	runDonePhase(bus, eventID, module, datastore, working, orig, invoked)
	return working, nil
}

func envelope(eventID uint64, module, datastore string, diff *tree.Node, orig Originator) Envelope {
	return Envelope{EventID: eventID, Module: module, Datastore: datastore, Diff: diff, Originator: orig}
}

// runUpdatePhase invokes every Update-flagged subscriber, highest
// priority first, folding any returned refinement back into *working via
// refine before continuing. A subscriber error halts the whole phase.
func runUpdatePhase(bus *Bus, eventID uint64, module, datastore string, working **tree.Node, orig Originator, refine RefineFunc, dl Deadlines) error {
	subs := bus.snapshot(module, datastore)
	for _, s := range subs {
		if !s.Update || s.Suspended {
			continue
		}
		if !matchesFilter(*working, s.Filter) {
			bus.noteFiltered(s.ID)
			continue
		}
		var refinement *tree.Node
		env := envelope(eventID, module, datastore, *working, orig)
		cbErr := callWithDeadline(dl.Update, func() error {
			var uerr error
			refinement, uerr = s.Handler.OnUpdate(env)
			return uerr
		})
		if cbErr != nil {
			if _, ok := errkind.Classify(cbErr); ok {
				return cbErr
			}
			return errkind.NewCallbackFailed(cbErr, nil)
		}
		if refinement != nil {
			if refine == nil {
				return errkind.New(errkind.Internal, "", "update subscriber %d returned a refinement but no RefineFunc was supplied", s.ID)
			}
			nd, rerr := refine(refinement)
			if rerr != nil {
				return rerr
			}
			*working = nd
		}
	}
	return nil
}

// runChangePhase invokes every non-Update, non-DoneOnly subscriber,
// highest priority first, returning the list actually invoked (for the
// abort phase) and the first error encountered. DoneOnly subscribers
// are excluded here (§4.F: they only want the final done event) and are
// invoked instead by runDonePhase.
func runChangePhase(bus *Bus, eventID uint64, module, datastore string, diff *tree.Node, orig Originator, dl Deadlines) ([]*Subscriber, error) {
	subs := bus.snapshot(module, datastore)
	env := envelope(eventID, module, datastore, diff, orig)
	invoked := make([]*Subscriber, 0, len(subs))
	for _, s := range subs {
		if s.Update || s.Suspended || s.DoneOnly {
			continue
		}
		if !matchesFilter(diff, s.Filter) {
			bus.noteFiltered(s.ID)
			continue
		}
		cbErr := callWithDeadline(dl.Change, func() error { return s.Handler.OnChange(env) })
		if cbErr != nil {
			if _, ok := errkind.Classify(cbErr); ok {
				return invoked, cbErr
			}
			return invoked, errkind.NewCallbackFailed(cbErr, nil)
		}
		invoked = append(invoked, s)
	}
	return invoked, nil
}

// runAbortPhase delivers abort to every subscriber in invoked, in
// reverse order, best effort (§4.G "Abort phase").
func runAbortPhase(bus *Bus, eventID uint64, module, datastore string, diff *tree.Node, orig Originator, invoked []*Subscriber, dl Deadlines) {
	env := envelope(eventID, module, datastore, diff, orig)
	for i := len(invoked) - 1; i >= 0; i-- {
		_ = callWithDeadline(dl.Abort, func() error {
			invoked[i].Handler.OnAbort(env)
			return nil
		})
	}
}

// runDonePhase notifies every change-phase subscriber of success, best
// effort (errors are the caller's concern to log, never roll back), then
// delivers the same done event to DoneOnly subscribers, who receive only
// this phase (§4.F's "done-only" flag) and never saw update/change.
func runDonePhase(bus *Bus, eventID uint64, module, datastore string, diff *tree.Node, orig Originator, invoked []*Subscriber) {
	env := envelope(eventID, module, datastore, diff, orig)
	for _, s := range invoked {
		s.Handler.OnDone(env)
	}
	for _, s := range bus.snapshot(module, datastore) {
		if !s.DoneOnly || s.Suspended {
			continue
		}
		if !matchesFilter(diff, s.Filter) {
			bus.noteFiltered(s.ID)
			continue
		}
		s.Handler.OnDone(env)
	}
}
