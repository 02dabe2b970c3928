// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package conn

import (
	"sync"
	"time"

	"github.com/danos/tsd/diff"
	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/tree"
)

// ApplyFunc publishes one diff through the four-phase protocol and
// returns the diff as finally committed (after any update-phase
// refinement), mirroring event.Publish's return shape. Supplied by the
// caller that already knows how to build a StoreFunc/RefineFunc for a
// given (module, datastore).
type ApplyFunc func(d *tree.Node) (*tree.Node, error)

// ConfirmGuard tracks one outstanding confirmed commit (server/
// confirmed_commit.go analogue): apply accepted an optional
// confirm-timeout; unless a confirming follow-up apply arrives first,
// the timer fires and the transaction is rolled back by applying
// reverse(diff).
type ConfirmGuard struct {
	mu        sync.Mutex
	timer     *time.Timer
	confirmed bool
	diff      *tree.Node
	apply     ApplyFunc
	onRollback func(err error)
}

// ConfirmedApply publishes diff via apply and, if it succeeds, arms a
// rollback timer for timeout. The caller must retain the returned guard
// and call ConfirmCommit before timeout elapses, or the change is
// reverted automatically.
func ConfirmedApply(apply ApplyFunc, d *tree.Node, timeout time.Duration, onRollback func(err error)) (*ConfirmGuard, *tree.Node, error) {
	committed, err := apply(d)
	if err != nil {
		return nil, nil, err
	}
	if timeout <= 0 {
		return nil, committed, nil
	}

	g := &ConfirmGuard{diff: committed, apply: apply, onRollback: onRollback}
	g.timer = time.AfterFunc(timeout, g.rollback)
	return g, committed, nil
}

func (g *ConfirmGuard) rollback() {
	g.mu.Lock()
	if g.confirmed {
		g.mu.Unlock()
		return
	}
	g.confirmed = true // one-shot: either confirmed or rolled back, never both
	g.mu.Unlock()

	reverseDiff := diff.Reverse(g.diff)
	_, err := g.apply(reverseDiff)
	if g.onRollback != nil {
		g.onRollback(err)
	}
}

// ConfirmCommit cancels the pending rollback, making the transaction
// permanent. Calling it twice, or after the timer already fired, is
// OPERATION_FAILED.
func (g *ConfirmGuard) ConfirmCommit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmed {
		return errkind.New(errkind.OperationFailed, "", "confirmed commit already resolved")
	}
	g.confirmed = true
	g.timer.Stop()
	return nil
}
