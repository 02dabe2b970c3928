// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package event implements the event-delivery state machine (component
// G, §4.G): the four-phase change-publication protocol (update, change,
// store, done/abort), priority ordering, per-subscriber xpath-style
// filtering, and originator metadata relay. It generalizes the
// commit/notify sequencing of the teacher's session/commitmgr.go and
// server/dispatcher.go into the state machine the spec describes.
package event

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/tree"
)

// Originator carries the session-supplied name and opaque blob relayed
// to every subscriber in the transaction's envelope (§4.G "Originator
// relay").
type Originator struct {
	Name string
	Data []byte
}

// Envelope is what one phase invocation hands a subscriber.
type Envelope struct {
	EventID    uint64
	Module     string
	Datastore  string
	Diff       *tree.Node
	Originator Originator
}

// Handler is the polymorphic callback surface a subscription provides
// (§9 "Subscriber callbacks as objects... handler is polymorphic over
// the capability set"). A handler need not implement every method
// meaningfully: OnUpdate is only invoked for subscribers flagged Update.
type Handler interface {
	// OnUpdate runs in the update phase; it may return a refinement
	// edit tree to be merged on top of the working diff, or an error to
	// fail the whole transaction. A nil, nil return means "no change".
	OnUpdate(env Envelope) (refinement *tree.Node, err error)
	// OnChange runs in the change phase; an error aborts the
	// transaction for every subscriber already invoked this phase.
	OnChange(env Envelope) error
	// OnDone/OnAbort are best-effort notifications; their errors are
	// logged by the caller, never fail the transaction.
	OnDone(env Envelope)
	OnAbort(env Envelope)
	// OnEnabled delivers the initial-snapshot event (§6 "event kind in
	// {update, change, done, abort, enabled}") once, at registration
	// time, to any subscriber not flagged Passive. Env.Diff carries the
	// subscriber's initial view of current data rather than a diff.
	OnEnabled(env Envelope)
}

// Subscriber is one registered change subscription (§4.F/§4.G).
type Subscriber struct {
	ID       uint64
	Priority int32
	Filter   string // path-prefix filter; see DESIGN.md for scope
	Update   bool
	DoneOnly bool
	Passive  bool
	Suspended bool
	Handler  Handler
}

// Bus holds the in-process change-subscriber lists per (module,
// datastore) and drives the four-phase protocol over them. Cross-process
// subscribers discover each other through package subscribe's
// shared-memory registry; delivery to an in-process Bus is what actually
// invokes Go callbacks (see DESIGN.md's note on this package's
// scope).
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*Subscriber // keyed by module+"/"+datastore

	// FilteredOut counts skipped deliveries per subscriber id, §4.G's
	// "filtered_out counter".
	FilteredOut map[uint64]int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Subscriber), FilteredOut: make(map[uint64]int)}
}

func key(module, datastore string) string { return module + "/" + datastore }

// Register adds sub for (module, datastore). Subscribers are kept
// sorted by descending priority so phase delivery can walk the slice in
// order.
func (b *Bus) Register(module, datastore string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(module, datastore)
	b.subs[k] = append(b.subs[k], sub)
	sort.SliceStable(b.subs[k], func(i, j int) bool { return b.subs[k][i].Priority > b.subs[k][j].Priority })
}

func (b *Bus) Unregister(module, datastore string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(module, datastore)
	out := b.subs[k][:0]
	for _, s := range b.subs[k] {
		if s.ID != id {
			out = append(out, s)
		}
	}
	b.subs[k] = out
}

func (b *Bus) snapshot(module, datastore string) []*Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.subs[key(module, datastore)]
	out := make([]*Subscriber, len(src))
	copy(out, src)
	return out
}

// matchesFilter reports whether the path of any node in the diff
// (whatever its operation) has sub's filter as a prefix or is itself a
// prefix of the filter. An empty filter always matches. Full xpath
// predicate evaluation is out of scope (DESIGN.md's event notes); this
// path-prefix check is the representative subset that's enough to drive
// the four-phase filtering semantics of §4.F.
func matchesFilter(diff *tree.Node, filter string) bool {
	if filter == "" {
		return true
	}
	return anyNodeMatches(diff, filter)
}

func anyNodeMatches(n *tree.Node, filter string) bool {
	path := "/" + strings.Join(n.Path(true), "/")
	if strings.HasPrefix(path, filter) || strings.HasPrefix(filter, path) {
		return true
	}
	for _, c := range n.Children() {
		if anyNodeMatches(c, filter) {
			return true
		}
	}
	return false
}

func (b *Bus) noteFiltered(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FilteredOut[id]++
}

// RefineFunc applies a subscriber-returned refinement edit onto the
// working transaction and returns the recomputed diff, per §4.G
// "refinements are applied through §4.B onto the working data, and a
// fresh diff is computed". Implemented by the caller (package client),
// which owns the data tree the event package does not touch directly.
type RefineFunc func(refinement *tree.Node) (newDiff *tree.Node, err error)

// Timeout per phase (§5 "Suspension points... all of these take
// explicit deadlines").
type Deadlines struct {
	Update time.Duration
	Change time.Duration
	Done   time.Duration
	Abort  time.Duration
}

func DefaultDeadlines() Deadlines {
	return Deadlines{Update: 5 * time.Second, Change: 5 * time.Second, Done: 5 * time.Second, Abort: 5 * time.Second}
}

// callWithDeadline runs fn in a goroutine and returns its error, or a
// LOCKED-flavored timeout error if fn does not return within d. A slow
// subscriber is treated as failed per §4.G "Timeouts".
func callWithDeadline(d time.Duration, fn func() error) error {
	if d <= 0 {
		return fn()
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return errkind.New(errkind.Locked, "", "subscriber timed out")
	}
}
